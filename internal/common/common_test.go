package common_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mzahrani/backend-voucherhub/internal/common"
)

func TestJSONErrorEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	common.JSONError(rr, http.StatusNotFound, "NOT_FOUND", "option not found", nil)

	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body struct {
		Error common.ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "NOT_FOUND", body.Error.Code)
	require.Equal(t, "option not found", body.Error.Message)
}

func TestRenderErrorUsesAppError(t *testing.T) {
	cause := common.NewAppError("VALIDATION", "rate must be positive", http.StatusBadRequest, nil).
		WithDetails(map[string]any{"field": "rate"})
	wrapped := fmt.Errorf("change rate: %w", cause)

	rr := httptest.NewRecorder()
	common.RenderError(rr, wrapped)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), `"VALIDATION"`)
	require.Contains(t, rr.Body.String(), `"rate"`)
}

func TestRenderErrorHidesUnknownErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	common.RenderError(rr, errors.New("pq: connection refused"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "connection refused")
	require.Contains(t, rr.Body.String(), `"INTERNAL"`)
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:4321"
	require.Equal(t, "192.0.2.7", common.ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	require.Equal(t, "198.51.100.2", common.ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "203.0.113.9", common.ClientIP(req))
}

func TestParsePagination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?page=3&per_page=25", nil)
	page, perPage := common.ParsePagination(req, 50)
	require.Equal(t, 3, page)
	require.Equal(t, 25, perPage)

	// "limit" is accepted as an alias but loses to an explicit per_page.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=10", nil)
	_, perPage = common.ParsePagination(req, 50)
	require.Equal(t, 10, perPage)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders?per_page=2&limit=10", nil)
	_, perPage = common.ParsePagination(req, 50)
	require.Equal(t, 2, perPage)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders?page=-1&per_page=abc", nil)
	page, perPage = common.ParsePagination(req, 50)
	require.Equal(t, 1, page)
	require.Equal(t, 50, perPage)
}

func TestAtoiDefault(t *testing.T) {
	require.Equal(t, 9, common.AtoiDefault("9", 5))
	require.Equal(t, 5, common.AtoiDefault("", 5))
	require.Equal(t, 5, common.AtoiDefault("x", 5))
}
