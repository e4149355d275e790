package order

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mzahrani/backend-voucherhub/internal/common"
	"github.com/mzahrani/backend-voucherhub/internal/fulfillment"
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
		return nil, errors.New("order: service is required")
	}
	return &Handler{
		service:  cfg.Service,
		validate: validator.New(),
	}, nil
}

type placeRequest struct {
	Lines []placeLine `json:"lines" validate:"required,min=1,dive"`
}

type placeLine struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

type outcomeResponse struct {
	SKU             string          `json:"sku"`
	AmountWholesale decimal.Decimal `json:"amount_wholesale"`
	Succeeded       bool            `json:"succeeded"`
	FailureReason   string          `json:"failure_reason,omitempty"`
}

type summaryResponse struct {
	Total           int             `json:"total"`
	Successful      int             `json:"successful"`
	Failed          int             `json:"failed"`
	SuccessRate     *int            `json:"success_rate,omitempty"`
	SuccessfulCost  decimal.Decimal `json:"successful_cost"`
	Status          string          `json:"status"`
	StatusClass     string          `json:"status_class"`
	UpstreamStatus  string          `json:"upstream_status"`
	InvoiceEligible bool            `json:"invoice_eligible"`
}

type detailResponse struct {
	ID        string            `json:"id"`
	Reference string            `json:"reference"`
	CreatedAt string            `json:"created_at"`
	Outcomes  []outcomeResponse `json:"outcomes"`
	Summary   summaryResponse   `json:"summary"`
}

func toDetailResponse(d Detail) detailResponse {
	out := detailResponse{
		ID:        d.Order.ID,
		Reference: d.Order.Reference,
		CreatedAt: d.Order.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Outcomes:  make([]outcomeResponse, 0, len(d.Outcomes)),
		Summary:   toSummaryResponse(d.Summary),
	}
	for _, oc := range d.Outcomes {
		out.Outcomes = append(out.Outcomes, outcomeResponse{
			SKU:             oc.SKU,
			AmountWholesale: oc.AmountWholesale,
			Succeeded:       oc.Succeeded,
			FailureReason:   oc.FailureReason,
		})
	}
	return out
}

func toSummaryResponse(s fulfillment.Summary) summaryResponse {
	return summaryResponse{
		Total:           s.Total,
		Successful:      s.Successful,
		Failed:          s.Failed,
		SuccessRate:     s.SuccessRate,
		SuccessfulCost:  s.SuccessfulCost,
		Status:          string(s.Status),
		StatusClass:     string(s.StatusClass),
		UpstreamStatus:  s.UpstreamStatus,
		InvoiceEligible: s.InvoiceEligible,
	}
}

// Place handles POST /api/v1/orders.
func (h *Handler) Place(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "each line needs a sku and a positive quantity", nil)
		return
	}
	lines := make([]Line, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, Line{SKU: l.SKU, Quantity: l.Quantity})
	}
	detail, err := h.service.Place(r.Context(), lines)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, toDetailResponse(detail))
}

// Get handles GET /api/v1/orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detail, err := h.service.Detail(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, toDetailResponse(detail))
}

// List handles GET /api/v1/orders with page/per_page pagination.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	if perPage > 100 {
		perPage = 100
	}
	orders, total, err := h.service.List(r.Context(), page, perPage)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		items = append(items, map[string]any{
			"id":              o.ID,
			"reference":       o.Reference,
			"upstream_status": o.UpstreamStatus,
			"created_at":      o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"items": items,
		"meta":  map[string]any{"page": page, "per_page": perPage, "total": total},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, ErrEmptyOrder):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM", "order placement failed upstream", nil)
	}
}
