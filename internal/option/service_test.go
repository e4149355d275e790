package option_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mzahrani/backend-voucherhub/internal/option"
	"github.com/mzahrani/backend-voucherhub/internal/pricing"
)

type staticFacts map[string]pricing.Fact

func (f staticFacts) Fact(code string) (pricing.Fact, bool) {
	fact, ok := f[code]
	return fact, ok
}

type memRepo struct {
	mu      sync.Mutex
	loaded  map[string]pricing.PersistedOption
	prices  map[string]decimal.Decimal
	markups map[string]decimal.Decimal
}

func newMemRepo() *memRepo {
	return &memRepo{
		loaded:  map[string]pricing.PersistedOption{},
		prices:  map[string]decimal.Decimal{},
		markups: map[string]decimal.Decimal{},
	}
}

func (m *memRepo) Load(context.Context) (map[string]pricing.PersistedOption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded, nil
}

func (m *memRepo) SaveCustomPrice(_ context.Context, code string, price decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[code] = price
	return nil
}

func (m *memRepo) SaveMarkup(_ context.Context, code string, percent decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markups[code] = percent
	return nil
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func testFacts(t *testing.T) staticFacts {
	return staticFacts{
		"GC-10": {RetailBaseUSD: dec(t, "10"), DiscountFraction: dec(t, "0.2")},
		"GC-25": {RetailBaseUSD: dec(t, "25"), DiscountFraction: dec(t, "0.1")},
	}
}

func newTestService(t *testing.T, repo *memRepo) *option.Service {
	t.Helper()
	svc, err := option.NewService(option.ServiceConfig{
		Facts:    testFacts(t),
		Repo:     repo,
		Rate:     dec(t, "3.75"),
		Currency: "SAR",
		Debounce: 20 * time.Millisecond,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func TestEditCustomPriceDerivesMarkup(t *testing.T) {
	svc := newTestService(t, newMemRepo())
	ctx := context.Background()
	require.NoError(t, svc.Bootstrap(ctx))

	res, err := svc.EditCustomPrice(ctx, "GC-10", "36")
	require.NoError(t, err)
	require.True(t, res.MarkupPercent.Equal(dec(t, "20")))
	require.Equal(t, pricing.ClassMargin, res.Class)
}

func TestEditMarkupPersistsAfterDebounce(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.EditMarkup(ctx, "GC-10", "20")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		v, ok := repo.markups["GC-10"]
		return ok && v.Equal(decimal.NewFromInt(20))
	}, time.Second, 5*time.Millisecond)
}

func TestBootstrapSeedsFromPersistedState(t *testing.T) {
	repo := newMemRepo()
	price := dec(t, "36")
	repo.loaded["GC-10"] = pricing.PersistedOption{ID: "opt-1", CustomPrice: &price}
	svc := newTestService(t, repo)
	require.NoError(t, svc.Bootstrap(context.Background()))

	res, err := svc.Option("GC-10")
	require.NoError(t, err)
	require.True(t, res.CustomPrice.Equal(price))
	require.True(t, res.MarkupPercent.Equal(dec(t, "20")))
}

func TestChangeRateRecomputesEveryOption(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.EditCustomPrice(ctx, "GC-10", "36")
	require.NoError(t, err)
	_, err = svc.EditCustomPrice(ctx, "GC-25", "90")
	require.NoError(t, err)

	results, err := svc.ChangeRate(ctx, dec(t, "3.6"), "SAR")
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "GC-10", results[0].Option)
	require.True(t, results[0].CustomPrice.Equal(dec(t, "36")), "custom price holds through a rate change")
	require.True(t, results[0].MarkupPercent.Equal(dec(t, "25")))
}

func TestChangeRateRejectsNonPositive(t *testing.T) {
	svc := newTestService(t, newMemRepo())
	_, err := svc.ChangeRate(context.Background(), decimal.Zero, "SAR")
	require.ErrorIs(t, err, option.ErrInvalidRate)
}

func TestChangeRateNotifiesListener(t *testing.T) {
	var got []pricing.Conversion
	svc, err := option.NewService(option.ServiceConfig{
		Facts:        testFacts(t),
		Repo:         newMemRepo(),
		Rate:         dec(t, "3.75"),
		Currency:     "SAR",
		Debounce:     20 * time.Millisecond,
		Logger:       zerolog.Nop(),
		OnRateChange: func(conv pricing.Conversion) { got = append(got, conv) },
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	ctx := context.Background()

	_, err = svc.ChangeRate(ctx, decimal.Zero, "SAR")
	require.ErrorIs(t, err, option.ErrInvalidRate)
	require.Empty(t, got, "rejected rates must not reach the listener")

	_, err = svc.ChangeRate(ctx, dec(t, "3.6"), "SAR")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Rate.Equal(dec(t, "3.6")))
	require.Equal(t, "SAR", got[0].Currency)
}

func TestFlushCommitsPending(t *testing.T) {
	repo := newMemRepo()
	svc, err := option.NewService(option.ServiceConfig{
		Facts:    testFacts(t),
		Repo:     repo,
		Rate:     dec(t, "3.75"),
		Currency: "SAR",
		Debounce: time.Hour,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	ctx := context.Background()
	_, err = svc.EditCustomPrice(ctx, "GC-10", "36")
	require.NoError(t, err)
	require.NoError(t, svc.Flush(ctx))

	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.True(t, repo.prices["GC-10"].Equal(dec(t, "36")))
}
