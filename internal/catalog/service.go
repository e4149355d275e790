package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mzahrani/backend-voucherhub/internal/events"
	"github.com/mzahrani/backend-voucherhub/internal/pricing"
	"github.com/mzahrani/backend-voucherhub/internal/provider"
)

// ErrNotFound is returned when a product or option is absent from the current snapshot.
var ErrNotFound = errors.New("catalog: not found")

// ErrEmptySnapshot is returned when the catalog has not been fetched yet.
var ErrEmptySnapshot = errors.New("catalog: snapshot not loaded")

const cacheKey = "catalog:snapshot"

type fetcher interface {
	FetchCatalog(ctx context.Context) ([]provider.CatalogProduct, error)
}

// Option is the presentation view of one sellable denomination.
type Option struct {
	SKU              string          `json:"sku"`
	Name             string          `json:"name"`
	RetailBaseUSD    decimal.Decimal `json:"retailBaseUsd"`
	WholesaleUSD     decimal.Decimal `json:"wholesaleUsd"`
	WholesaleStore   decimal.Decimal `json:"wholesaleStore"`
	SuggestedDisplay decimal.Decimal `json:"suggestedDisplay"`
	Currency         string          `json:"currency"`
}

// Product groups the presentation options of one provider product.
type Product struct {
	ProductCode string   `json:"productCode"`
	Name        string   `json:"name"`
	Options     []Option `json:"options"`
}

// Snapshot is one immutable catalog fetch. Facts are replaced wholesale on the
// next refresh and never mutated in place.
type Snapshot struct {
	Products  []Product
	FetchedAt time.Time

	facts map[string]pricing.Fact
}

// Service owns the current catalog snapshot and serves pricing facts to the
// reconciliation session. It implements pricing.FactSource.
type Service struct {
	provider fetcher
	cache    *Cache
	bus      *events.Bus

	mu     sync.RWMutex
	conv   pricing.Conversion
	raw    []provider.CatalogProduct
	snap   *Snapshot
	onSnap func()
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Provider   fetcher
	Cache      *Cache
	Conversion pricing.Conversion
	Bus        *events.Bus
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Provider == nil {
		return nil, errors.New("catalog: provider client is required")
	}
	if cfg.Conversion.Rate.Sign() <= 0 {
		return nil, errors.New("catalog: conversion rate must be positive")
	}
	return &Service{
		provider: cfg.Provider,
		cache:    cfg.Cache,
		conv:     cfg.Conversion,
		bus:      cfg.Bus,
	}, nil
}

// Refresh fetches the provider catalog, preferring the shared Redis copy when
// another instance refreshed recently, and swaps in a new snapshot.
func (s *Service) Refresh(ctx context.Context) error {
	return s.refresh(ctx, false)
}

// ForceRefresh always hits the provider and overwrites the shared Redis copy,
// so an operator-triggered refresh is never served a stale cache entry.
func (s *Service) ForceRefresh(ctx context.Context) error {
	return s.refresh(ctx, true)
}

func (s *Service) refresh(ctx context.Context, force bool) error {
	var products []provider.CatalogProduct
	hit := false
	if !force {
		var err error
		hit, err = s.cache.GetJSON(ctx, cacheKey, &products)
		if err != nil {
			return fmt.Errorf("catalog: read cache: %w", err)
		}
	}
	if !hit {
		fetched, err := s.provider.FetchCatalog(ctx)
		if err != nil {
			return fmt.Errorf("catalog: fetch: %w", err)
		}
		products = fetched
		if cacheErr := s.cache.SetJSON(ctx, cacheKey, products); cacheErr != nil {
			return fmt.Errorf("catalog: write cache: %w", cacheErr)
		}
	}

	s.mu.Lock()
	s.raw = products
	s.snap = s.buildSnapshotLocked(products)
	count := len(s.snap.Products)
	hook := s.onSnap
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if s.bus != nil {
		// Refresh already succeeded; a failed event write is not worth failing it.
		_, _ = s.bus.Emit(ctx, events.TopicCatalogRefreshed, "catalog", events.CatalogRefreshed{Products: count})
	}
	return nil
}

// SetConversion swaps the store conversion and rebuilds the presentation
// prices from the retained provider catalog, so a rate change shows up on
// the catalog endpoints without waiting for the next refresh.
func (s *Service) SetConversion(conv pricing.Conversion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv = conv
	if s.raw != nil {
		s.snap = s.buildSnapshotLocked(s.raw)
	}
}

// OnSnapshot registers fn to run after every successful snapshot swap.
func (s *Service) OnSnapshot(fn func()) {
	s.mu.Lock()
	s.onSnap = fn
	s.mu.Unlock()
}

// Fact resolves the pricing fact for an option SKU from the current snapshot.
func (s *Service) Fact(option string) (pricing.Fact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return pricing.Fact{}, false
	}
	f, ok := s.snap.facts[option]
	return f, ok
}

// Products lists the current snapshot's products.
func (s *Service) Products() ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil, ErrEmptySnapshot
	}
	return s.snap.Products, nil
}

// Product returns a single product by code.
func (s *Service) Product(code string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return Product{}, ErrEmptySnapshot
	}
	for _, p := range s.snap.Products {
		if p.ProductCode == code {
			return p, nil
		}
	}
	return Product{}, fmt.Errorf("%w: product %s", ErrNotFound, code)
}

// FetchedAt reports when the current snapshot was built.
func (s *Service) FetchedAt() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return time.Time{}, false
	}
	return s.snap.FetchedAt, true
}

// buildSnapshotLocked requires s.mu held, for the conversion read.
func (s *Service) buildSnapshotLocked(products []provider.CatalogProduct) *Snapshot {
	snap := &Snapshot{
		FetchedAt: time.Now(),
		facts:     make(map[string]pricing.Fact),
	}
	for _, p := range products {
		item := Product{
			ProductCode: strings.TrimSpace(p.ProductCode),
			Name:        p.Name,
		}
		for _, opt := range p.Options {
			sku := strings.TrimSpace(opt.SKU)
			if sku == "" {
				continue
			}
			fact := pricing.Fact{
				RetailBaseUSD:        opt.RetailBaseUSD,
				DiscountFraction:     opt.DiscountFraction,
				WholesaleOverrideUSD: opt.WholesaleOverrideUSD,
			}
			snap.facts[sku] = fact

			wholesaleUSD := fact.WholesaleBaseUSD()
			wholesaleStore := pricing.WholesalePrice(fact, s.conv)
			item.Options = append(item.Options, Option{
				SKU:              sku,
				Name:             opt.Name,
				RetailBaseUSD:    opt.RetailBaseUSD,
				WholesaleUSD:     pricing.ToCents(wholesaleUSD),
				WholesaleStore:   pricing.ToMoney(wholesaleStore),
				SuggestedDisplay: pricing.Smart(wholesaleStore),
				Currency:         s.conv.Currency,
			})
		}
		snap.Products = append(snap.Products, item)
	}
	sort.Slice(snap.Products, func(i, j int) bool {
		return snap.Products[i].ProductCode < snap.Products[j].ProductCode
	})
	return snap
}
