package option_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mzahrani/backend-voucherhub/internal/option"
)

func newTestRouter(t *testing.T) (*chi.Mux, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	svc, err := option.NewService(option.ServiceConfig{
		Facts:    testFacts(t),
		Repo:     repo,
		Rate:     dec(t, "3.75"),
		Currency: "SAR",
		Debounce: 10 * time.Millisecond,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	require.NoError(t, svc.Bootstrap(context.Background()))

	handler, err := option.NewHandler(option.HandlerConfig{Service: svc})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Get("/api/v1/options", handler.List)
	r.Get("/api/v1/options/{code}", handler.Detail)
	r.Patch("/api/v1/options/{code}/price", handler.EditCustomPrice)
	r.Patch("/api/v1/options/{code}/markup", handler.EditMarkup)
	r.Post("/api/v1/pricing/conversion-rate", handler.ChangeRate)
	return r, repo
}

func TestEditPriceEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/options/GC-10/price", strings.NewReader(`{"value":"36"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Option        string `json:"option"`
		CustomPrice   string `json:"custom_price"`
		MarkupPercent string `json:"markup_percent"`
		Class         string `json:"class"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "GC-10", body.Option)
	require.Equal(t, "36", body.CustomPrice)
	require.Equal(t, "20", body.MarkupPercent)
	require.Equal(t, "margin", body.Class)
}

func TestEditPriceUnparsableValueWarns(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/options/GC-10/price", strings.NewReader(`{"value":"abc"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		CustomPrice string `json:"custom_price"`
		Warning     string `json:"warning"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "0", body.CustomPrice)
	require.Equal(t, "unparsable_input", body.Warning)
}

func TestEditMarkupLossClass(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/options/GC-10/markup", strings.NewReader(`{"value":"-10"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		CustomPrice string `json:"custom_price"`
		Class       string `json:"class"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "27", body.CustomPrice)
	require.Equal(t, "loss", body.Class)
}

func TestUnknownOptionReturns404(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/options/NOPE/price", strings.NewReader(`{"value":"10"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMissingValueRejected(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/options/GC-10/price", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversionRateEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/options/GC-10/price", strings.NewReader(`{"value":"36"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/pricing/conversion-rate", strings.NewReader(`{"rate":"3.6","currency":"SAR"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items []struct {
			Option        string `json:"option"`
			CustomPrice   string `json:"custom_price"`
			MarkupPercent string `json:"markup_percent"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Items)
	require.Equal(t, "GC-10", body.Items[0].Option)
	require.Equal(t, "36", body.Items[0].CustomPrice)
	require.Equal(t, "25", body.Items[0].MarkupPercent)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/pricing/conversion-rate", strings.NewReader(`{"rate":"-1"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
