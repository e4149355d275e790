package stockmon

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mzahrani/backend-voucherhub/internal/common"
	"github.com/mzahrani/backend-voucherhub/internal/stock"
)

type Handler struct {
	service  *Service
	validate *validator.Validate
}

type HandlerConfig struct {
	Service *Service
}

func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Service == nil {
		return nil, errors.New("stockmon: service is required")
	}
	return &Handler{
		service:  cfg.Service,
		validate: validator.New(),
	}, nil
}

type thresholdRequest struct {
	MinimumThreshold *int `json:"minimum_threshold" validate:"required,min=0"`
}

type planResponse struct {
	Option           string `json:"option"`
	CurrentStock     int    `json:"current_stock"`
	MinimumThreshold int    `json:"minimum_threshold"`
	QtyToPurchase    int    `json:"qty_to_purchase"`
	Selected         bool   `json:"selected"`
}

// Plans handles GET /api/v1/stock/plans.
func (h *Handler) Plans(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Plans(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]planResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, planResponse{
			Option:           row.Level.OptionCode,
			CurrentStock:     row.Level.CurrentStock,
			MinimumThreshold: row.Level.MinimumThreshold,
			QtyToPurchase:    row.Plan.QtyToPurchase,
			Selected:         row.Plan.ShouldSelect,
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{"items": items})
}

// SetThreshold handles PUT /api/v1/stock/{code}/threshold.
func (h *Handler) SetThreshold(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var req thresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "minimum_threshold must be zero or greater", nil)
		return
	}
	if err := h.service.SetThreshold(r.Context(), code, *req.MinimumThreshold); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"option":            code,
		"minimum_threshold": *req.MinimumThreshold,
	})
}

// Replenish handles POST /api/v1/stock/replenish: it sweeps the plans and
// queues one purchase task per selected option.
func (h *Handler) Replenish(w http.ResponseWriter, r *http.Request) {
	queued, err := h.service.RequestReplenishment(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"queued": queued, "count": len(queued)})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "stock level not found", nil)
	case errors.Is(err, stock.ErrNegativeThreshold), errors.Is(err, stock.ErrNegativeStock):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	default:
		common.RenderError(w, err)
	}
}
