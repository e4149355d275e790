package option

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mzahrani/backend-voucherhub/internal/events"
	"github.com/mzahrani/backend-voucherhub/internal/pricing"
)

var (
	ErrInvalidRate = errors.New("option: conversion rate must be positive")
)

// persistence is the slice of Repo the service needs. Load seeds the session
// on startup; the CommitSink methods receive the debounced saves.
type persistence interface {
	pricing.CommitSink
	Load(ctx context.Context) (map[string]pricing.PersistedOption, error)
}

type ServiceConfig struct {
	Facts    pricing.FactSource
	Repo     persistence
	Bus      *events.Bus
	Rate     decimal.Decimal
	Currency string
	Debounce time.Duration
	Logger   zerolog.Logger

	// OnRateChange runs after a conversion-rate change has been applied to
	// the session, so other views of store pricing can pick up the new rate.
	OnRateChange func(pricing.Conversion)
}

// Service owns the pricing session for the whole storefront: every price or
// markup edit and every conversion-rate change flows through here.
type Service struct {
	session      *pricing.Session
	repo         persistence
	bus          *events.Bus
	logger       zerolog.Logger
	onRateChange func(pricing.Conversion)
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil {
		return nil, errors.New("option: repo is required")
	}
	session, err := pricing.NewSession(pricing.SessionConfig{
		Facts:      cfg.Facts,
		Sink:       cfg.Repo,
		Conversion: pricing.Conversion{Rate: cfg.Rate, Currency: cfg.Currency},
		Debounce:   cfg.Debounce,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Service{
		session:      session,
		repo:         cfg.Repo,
		bus:          cfg.Bus,
		logger:       cfg.Logger.With().Str("component", "option").Logger(),
		onRateChange: cfg.OnRateChange,
	}, nil
}

// Bootstrap seeds the session from persisted state. Call once after the
// catalog has been refreshed so every persisted code resolves to a fact.
func (s *Service) Bootstrap(ctx context.Context) error {
	persisted, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	loaded := s.session.Load(persisted)
	s.logger.Info().Int("options", loaded).Msg("price session seeded")
	return nil
}

// EditCustomPrice applies a raw custom-price edit and returns the derived
// state. Persistence happens asynchronously after the debounce window.
func (s *Service) EditCustomPrice(ctx context.Context, code, raw string) (pricing.Result, error) {
	results, err := s.session.Apply(ctx, pricing.CustomPriceEdited{Option: code, Raw: raw})
	if err != nil {
		return pricing.Result{}, err
	}
	s.publish(ctx, results)
	return results[0], nil
}

// EditMarkup applies a raw markup edit and returns the derived state.
func (s *Service) EditMarkup(ctx context.Context, code, raw string) (pricing.Result, error) {
	results, err := s.session.Apply(ctx, pricing.MarkupEdited{Option: code, Raw: raw})
	if err != nil {
		return pricing.Result{}, err
	}
	s.publish(ctx, results)
	return results[0], nil
}

// ChangeRate swaps the conversion rate and recomputes every option. Custom
// prices hold; markups absorb the change.
func (s *Service) ChangeRate(ctx context.Context, rate decimal.Decimal, currency string) ([]pricing.Result, error) {
	if rate.Sign() <= 0 {
		return nil, ErrInvalidRate
	}
	next := pricing.Conversion{Rate: rate, Currency: currency}
	results, err := s.session.Apply(ctx, pricing.RateChanged{Next: next})
	if err != nil {
		return nil, err
	}
	if s.onRateChange != nil {
		s.onRateChange(next)
	}
	if s.bus != nil {
		_, emitErr := s.bus.Emit(ctx, events.TopicConversionRateChanged, currency, events.ConversionRateChanged{
			Rate:     rate,
			Currency: currency,
			Options:  len(results),
		})
		if emitErr != nil {
			s.logger.Warn().Err(emitErr).Msg("event_emit_failed")
		}
	}
	s.publish(ctx, results)
	return results, nil
}

// Option returns the current session state for one option code.
func (s *Service) Option(code string) (pricing.Result, error) {
	res, ok := s.session.Snapshot(code)
	if !ok {
		return pricing.Result{}, fmt.Errorf("%w: %s", pricing.ErrUnknownOption, code)
	}
	return res, nil
}

// Options returns the session state for every known option, sorted by code.
func (s *Service) Options() []pricing.Result {
	results := s.session.SnapshotAll()
	sort.Slice(results, func(i, j int) bool { return results[i].Option < results[j].Option })
	return results
}

// Flush commits all pending edits immediately. Used on shutdown.
func (s *Service) Flush(ctx context.Context) error {
	return s.session.Flush(ctx)
}

// Close stops the session's pending timers without committing.
func (s *Service) Close() {
	s.session.Close()
}

func (s *Service) publish(ctx context.Context, results []pricing.Result) {
	if s.bus == nil {
		return
	}
	for _, r := range results {
		_, err := s.bus.Emit(ctx, events.TopicOptionPriceUpdated, r.Option, events.OptionPriceUpdated{
			Option:        r.Option,
			CustomPrice:   r.CustomPrice,
			MarkupPercent: r.MarkupPercent,
			Class:         r.Class.String(),
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("option", r.Option).Msg("event_emit_failed")
		}
	}
}
