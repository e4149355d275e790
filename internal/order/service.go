package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mzahrani/backend-voucherhub/internal/events"
	"github.com/mzahrani/backend-voucherhub/internal/fulfillment"
	"github.com/mzahrani/backend-voucherhub/internal/obs"
	"github.com/mzahrani/backend-voucherhub/internal/provider"
)

const (
	statusPending   = "pending"
	statusSubmitted = "submitted"
	statusFailed    = "failed"
)

var ErrEmptyOrder = errors.New("order: at least one line is required")

type placer interface {
	PlaceOrder(ctx context.Context, reference string, lines []provider.OrderLine) ([]provider.UnitResult, error)
}

type store interface {
	Create(ctx context.Context, reference, upstreamStatus string) (Order, error)
	SetUpstreamStatus(ctx context.Context, orderID, status string) error
	RecordOutcomes(ctx context.Context, orderID string, outcomes []Outcome) error
	Get(ctx context.Context, orderID string) (Order, error)
	Outcomes(ctx context.Context, orderID string) ([]Outcome, error)
	List(ctx context.Context, limit, offset int) ([]Order, error)
	Count(ctx context.Context) (int64, error)
}

type ServiceConfig struct {
	Repo     store
	Provider placer
	Bus      *events.Bus
	Logger   zerolog.Logger
}

// Service places voucher orders upstream and keeps an append-only record of
// per-unit outcomes. Summaries are always derived from the stored rows, never
// cached.
type Service struct {
	repo     store
	provider placer
	bus      *events.Bus
	logger   zerolog.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil {
		return nil, errors.New("order: repo is required")
	}
	if cfg.Provider == nil {
		return nil, errors.New("order: provider is required")
	}
	return &Service{
		repo:     cfg.Repo,
		provider: cfg.Provider,
		bus:      cfg.Bus,
		logger:   cfg.Logger.With().Str("component", "order").Logger(),
	}, nil
}

// Line is one requested voucher unit batch.
type Line struct {
	SKU      string
	Quantity int
}

// Detail is an order with its derived outcome summary.
type Detail struct {
	Order    Order
	Outcomes []Outcome
	Summary  fulfillment.Summary
}

// Place submits the lines upstream, records the immutable outcome rows and
// returns the resulting detail. An upstream failure leaves the order header
// persisted in the failed status so the attempt stays visible.
func (s *Service) Place(ctx context.Context, lines []Line) (Detail, error) {
	if len(lines) == 0 {
		return Detail{}, ErrEmptyOrder
	}
	providerLines := make([]provider.OrderLine, 0, len(lines))
	for _, l := range lines {
		if l.SKU == "" || l.Quantity < 1 {
			return Detail{}, fmt.Errorf("%w: sku and a positive quantity are required", ErrEmptyOrder)
		}
		providerLines = append(providerLines, provider.OrderLine{SKU: l.SKU, Quantity: l.Quantity})
	}

	reference := uuid.NewString()
	o, err := s.repo.Create(ctx, reference, statusPending)
	if err != nil {
		return Detail{}, err
	}

	units, err := s.provider.PlaceOrder(ctx, reference, providerLines)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", o.ID).Msg("upstream_order_failed")
		if stErr := s.repo.SetUpstreamStatus(ctx, o.ID, statusFailed); stErr != nil {
			return Detail{}, errors.Join(err, stErr)
		}
		return Detail{}, err
	}

	outcomes := make([]Outcome, 0, len(units))
	for _, u := range units {
		outcomes = append(outcomes, Outcome{
			SKU:             u.SKU,
			AmountWholesale: u.AmountWholesaleUSD,
			Succeeded:       u.Succeeded,
			FailureReason:   u.FailureReason,
		})
	}
	if err := s.repo.RecordOutcomes(ctx, o.ID, outcomes); err != nil {
		return Detail{}, err
	}
	if err := s.repo.SetUpstreamStatus(ctx, o.ID, statusSubmitted); err != nil {
		return Detail{}, err
	}
	o.UpstreamStatus = statusSubmitted

	detail := s.summarize(o, outcomes)
	s.logger.Info().
		Str("order_id", o.ID).
		Int("units", detail.Summary.Total).
		Int("successful", detail.Summary.Successful).
		Str("status", string(detail.Summary.Status)).
		Msg("order placed")

	if s.bus != nil {
		_, emitErr := s.bus.Emit(ctx, events.TopicOrderOutcomesRecorded, o.ID, events.OrderOutcomesRecorded{
			OrderID:    o.ID,
			Total:      detail.Summary.Total,
			Successful: detail.Summary.Successful,
			Status:     string(detail.Summary.Status),
		})
		if emitErr != nil {
			s.logger.Warn().Err(emitErr).Str("order_id", o.ID).Msg("event_emit_failed")
		}
	}
	return detail, nil
}

// Detail loads the order and folds its stored outcomes into a summary.
func (s *Service) Detail(ctx context.Context, orderID string) (Detail, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return Detail{}, err
	}
	outcomes, err := s.repo.Outcomes(ctx, orderID)
	if err != nil {
		return Detail{}, err
	}
	return s.summarize(o, outcomes), nil
}

// List pages through order headers, newest first.
func (s *Service) List(ctx context.Context, page, perPage int) ([]Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	orders, err := s.repo.List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (s *Service) summarize(o Order, outcomes []Outcome) Detail {
	folded := make([]fulfillment.Outcome, 0, len(outcomes))
	for _, oc := range outcomes {
		folded = append(folded, fulfillment.Outcome{
			AmountWholesale: oc.AmountWholesale,
			Succeeded:       oc.Succeeded,
		})
	}
	summary := fulfillment.Aggregate(folded, o.UpstreamStatus)
	if obs.OrderAggregateTotal != nil {
		obs.OrderAggregateTotal.WithLabelValues(string(summary.Status)).Inc()
	}
	return Detail{Order: o, Outcomes: outcomes, Summary: summary}
}

// TotalCost is a convenience for invoices: the summed wholesale amount of the
// successful units only.
func (s *Service) TotalCost(ctx context.Context, orderID string) (decimal.Decimal, error) {
	d, err := s.Detail(ctx, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Summary.SuccessfulCost, nil
}
