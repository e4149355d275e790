package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mzahrani/backend-voucherhub/internal/catalog"
	"github.com/mzahrani/backend-voucherhub/internal/pricing"
	"github.com/mzahrani/backend-voucherhub/internal/provider"
)

type stubProvider struct {
	calls    int
	products []provider.CatalogProduct
}

func (s *stubProvider) FetchCatalog(context.Context) ([]provider.CatalogProduct, error) {
	s.calls++
	return s.products, nil
}

func dec(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	require.NoError(t, err)
	return d
}

func testProducts(t *testing.T) []provider.CatalogProduct {
	return []provider.CatalogProduct{
		{
			ProductCode: "giftcard-games",
			Name:        "Games Gift Card",
			Options: []provider.CatalogOption{
				{SKU: "GC-10", Name: "USD 10", RetailBaseUSD: dec(t, "10"), DiscountFraction: dec(t, "0.2")},
				{SKU: "GC-25", Name: "USD 25", RetailBaseUSD: dec(t, "25"), DiscountFraction: dec(t, "0.1")},
			},
		},
	}
}

func newTestService(t *testing.T, p *stubProvider, cache *catalog.Cache) *catalog.Service {
	t.Helper()
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Provider:   p,
		Cache:      cache,
		Conversion: pricing.Conversion{Rate: dec(t, "3.75"), Currency: "SAR"},
	})
	require.NoError(t, err)
	return svc
}

func TestRefreshBuildsFacts(t *testing.T) {
	p := &stubProvider{products: testProducts(t)}
	svc := newTestService(t, p, nil)

	require.NoError(t, svc.Refresh(context.Background()))

	fact, ok := svc.Fact("GC-10")
	require.True(t, ok)
	require.True(t, fact.WholesaleBaseUSD().Equal(dec(t, "8")))

	_, ok = svc.Fact("missing")
	require.False(t, ok)
}

func TestRefreshUsesSharedCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := catalog.NewCache(rdb, time.Minute)

	p := &stubProvider{products: testProducts(t)}
	svc := newTestService(t, p, cache)
	require.NoError(t, svc.Refresh(context.Background()))
	require.NoError(t, svc.Refresh(context.Background()))
	require.Equal(t, 1, p.calls, "second refresh should come from the shared cache")
}

func TestCatalogHandlers(t *testing.T) {
	p := &stubProvider{products: testProducts(t)}
	svc := newTestService(t, p, nil)
	require.NoError(t, svc.Refresh(context.Background()))

	h := catalog.NewHandler(catalog.HandlerConfig{Service: svc})
	router := chi.NewRouter()
	router.Get("/api/v1/catalog/products", h.Products)
	router.Get("/api/v1/catalog/products/{code}", h.ProductDetail)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listResp struct {
		Data []catalog.Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Len(t, listResp.Data, 1)
	require.Len(t, listResp.Data[0].Options, 2)
	opt := listResp.Data[0].Options[0]
	require.Equal(t, "GC-10", opt.SKU)
	require.True(t, opt.WholesaleStore.Equal(dec(t, "30")))
	require.Equal(t, "SAR", opt.Currency)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products/unknown", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlersBeforeFirstRefresh(t *testing.T) {
	p := &stubProvider{products: testProducts(t)}
	svc := newTestService(t, p, nil)

	h := catalog.NewHandler(catalog.HandlerConfig{Service: svc})
	rec := httptest.NewRecorder()
	h.Products(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
