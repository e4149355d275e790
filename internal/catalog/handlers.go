package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mzahrani/backend-voucherhub/internal/common"
)

// Handler exposes the catalog endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Products handles GET /api/v1/catalog/products.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	products, err := h.service.Products()
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": products})
}

// ProductDetail handles GET /api/v1/catalog/products/{code}.
func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	code := chi.URLParam(r, "code")
	product, err := h.service.Product(code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": product})
}

// Refresh handles POST /api/v1/catalog/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	if err := h.service.ForceRefresh(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	fetchedAt, _ := h.service.FetchedAt()
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"fetchedAt": fetchedAt}})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
	case errors.Is(err, ErrEmptySnapshot):
		common.JSONError(w, http.StatusServiceUnavailable, "CATALOG_EMPTY", "catalog not loaded yet", nil)
	default:
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM", "catalog refresh failed", nil)
	}
}
