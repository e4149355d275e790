package stockmon_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mzahrani/backend-voucherhub/internal/stockmon"
)

func newStockRouter(t *testing.T, repo *memLevels, q *captureQueue) *chi.Mux {
	t.Helper()
	svc, err := stockmon.NewService(stockmon.ServiceConfig{
		Repo:   repo,
		Queue:  q,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	handler, err := stockmon.NewHandler(stockmon.HandlerConfig{Service: svc})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Get("/api/v1/stock/plans", handler.Plans)
	r.Put("/api/v1/stock/{code}/threshold", handler.SetThreshold)
	r.Post("/api/v1/stock/replenish", handler.Replenish)
	return r
}

func TestPlansEndpoint(t *testing.T) {
	repo := newMemLevels(
		stockmon.Level{OptionCode: "GC-10", CurrentStock: 3, MinimumThreshold: 10},
		stockmon.Level{OptionCode: "GC-25", CurrentStock: 10, MinimumThreshold: 3},
	)
	router := newStockRouter(t, repo, &captureQueue{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stock/plans", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items []struct {
			Option        string `json:"option"`
			QtyToPurchase int    `json:"qty_to_purchase"`
			Selected      bool   `json:"selected"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	require.Equal(t, "GC-10", body.Items[0].Option)
	require.Equal(t, 7, body.Items[0].QtyToPurchase)
	require.True(t, body.Items[0].Selected)
	require.False(t, body.Items[1].Selected)
}

func TestSetThresholdEndpoint(t *testing.T) {
	repo := newMemLevels(stockmon.Level{OptionCode: "GC-10", CurrentStock: 3, MinimumThreshold: 10})
	router := newStockRouter(t, repo, &captureQueue{})

	req := httptest.NewRequest(http.MethodPut, "/api/v1/stock/GC-10/threshold", strings.NewReader(`{"minimum_threshold":5}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	level, err := repo.Get(req.Context(), "GC-10")
	require.NoError(t, err)
	require.Equal(t, 5, level.MinimumThreshold)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/stock/GC-10/threshold", strings.NewReader(`{"minimum_threshold":-2}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/stock/GC-10/threshold", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReplenishEndpoint(t *testing.T) {
	repo := newMemLevels(stockmon.Level{OptionCode: "GC-10", CurrentStock: 3, MinimumThreshold: 10})
	q := &captureQueue{}
	router := newStockRouter(t, repo, q)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stock/replenish", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	require.Len(t, q.tasks, 1)
}
