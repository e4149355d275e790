package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/mzahrani/backend-voucherhub/internal/catalog"
	"github.com/mzahrani/backend-voucherhub/internal/pricing"
	"github.com/mzahrani/backend-voucherhub/internal/provider"
)

func TestSetConversionRebuildsPresentation(t *testing.T) {
	p := &stubProvider{products: testProducts(t)}
	svc := newTestService(t, p, nil)
	require.NoError(t, svc.Refresh(context.Background()))

	products, err := svc.Products()
	require.NoError(t, err)
	opt := products[0].Options[0]
	require.True(t, opt.WholesaleStore.Equal(dec(t, "30")))
	require.Equal(t, "SAR", opt.Currency)

	svc.SetConversion(pricing.Conversion{Rate: dec(t, "4"), Currency: "AED"})

	products, err = svc.Products()
	require.NoError(t, err)
	opt = products[0].Options[0]
	require.True(t, opt.WholesaleStore.Equal(dec(t, "32")), "store price must follow the new rate")
	require.Equal(t, "AED", opt.Currency)
	require.Equal(t, 1, p.calls, "a rate change must not refetch the catalog")
}

func TestSetConversionBeforeFirstRefresh(t *testing.T) {
	p := &stubProvider{products: testProducts(t)}
	svc := newTestService(t, p, nil)

	svc.SetConversion(pricing.Conversion{Rate: dec(t, "4"), Currency: "AED"})
	_, err := svc.Products()
	require.ErrorIs(t, err, catalog.ErrEmptySnapshot)

	require.NoError(t, svc.Refresh(context.Background()))
	products, err := svc.Products()
	require.NoError(t, err)
	require.True(t, products[0].Options[0].WholesaleStore.Equal(dec(t, "32")))
}

func TestForceRefreshBypassesSharedCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := catalog.NewCache(rdb, time.Minute)

	p := &stubProvider{products: testProducts(t)}
	svc := newTestService(t, p, cache)
	ctx := context.Background()
	require.NoError(t, svc.Refresh(ctx))
	require.Equal(t, 1, p.calls)

	p.products = append(p.products, provider.CatalogProduct{
		ProductCode: "giftcard-music",
		Name:        "Music Gift Card",
		Options: []provider.CatalogOption{
			{SKU: "MC-15", Name: "USD 15", RetailBaseUSD: dec(t, "15"), DiscountFraction: dec(t, "0.1")},
		},
	})
	require.NoError(t, svc.ForceRefresh(ctx))
	require.Equal(t, 2, p.calls, "forced refresh must hit the provider even with a warm cache")
	_, ok := svc.Fact("MC-15")
	require.True(t, ok)

	// The forced fetch replaces the cached copy for the next plain refresh.
	require.NoError(t, svc.Refresh(ctx))
	require.Equal(t, 2, p.calls)
	products, err := svc.Products()
	require.NoError(t, err)
	require.Len(t, products, 2)
}

func TestOnSnapshotRunsAfterEverySwap(t *testing.T) {
	p := &stubProvider{products: testProducts(t)}
	svc := newTestService(t, p, nil)

	var seen []int
	svc.OnSnapshot(func() {
		// The new snapshot is visible by the time the hook runs.
		products, err := svc.Products()
		require.NoError(t, err)
		seen = append(seen, len(products))
	})

	ctx := context.Background()
	require.NoError(t, svc.Refresh(ctx))
	require.NoError(t, svc.ForceRefresh(ctx))
	require.Equal(t, []int{1, 1}, seen)
}
