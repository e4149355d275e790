package option

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mzahrani/backend-voucherhub/internal/common"
	"github.com/mzahrani/backend-voucherhub/internal/pricing"
)

// Handler exposes option price state over HTTP.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

type HandlerConfig struct {
	Service *Service
}

func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Service == nil {
		return nil, errors.New("option: service is required")
	}
	return &Handler{
		service:  cfg.Service,
		validate: validator.New(),
	}, nil
}

type editRequest struct {
	Value string `json:"value" validate:"required"`
}

type rateRequest struct {
	Rate     string `json:"rate" validate:"required"`
	Currency string `json:"currency"`
}

type optionResponse struct {
	Option        string          `json:"option"`
	CustomPrice   decimal.Decimal `json:"custom_price"`
	MarkupPercent decimal.Decimal `json:"markup_percent"`
	Wholesale     decimal.Decimal `json:"wholesale"`
	Class         string          `json:"class"`
	Warning       string          `json:"warning,omitempty"`
}

func toResponse(r pricing.Result) optionResponse {
	out := optionResponse{
		Option:        r.Option,
		CustomPrice:   r.CustomPrice,
		MarkupPercent: r.MarkupPercent,
		Wholesale:     r.Wholesale,
		Class:         r.Class.String(),
	}
	if r.Warning != pricing.WarnNone {
		out.Warning = r.Warning.String()
	}
	return out
}

// List handles GET /api/v1/options.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	results := h.service.Options()
	items := make([]optionResponse, 0, len(results))
	for _, res := range results {
		items = append(items, toResponse(res))
	}
	common.JSON(w, http.StatusOK, map[string]any{"items": items})
}

// Detail handles GET /api/v1/options/{code}.
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	res, err := h.service.Option(code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, toResponse(res))
}

// EditCustomPrice handles PATCH /api/v1/options/{code}/price. The raw value
// is forwarded as typed: an unparsable value coerces to zero with a warning
// rather than rejecting the request.
func (h *Handler) EditCustomPrice(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, func(code, raw string) (pricing.Result, error) {
		return h.service.EditCustomPrice(r.Context(), code, raw)
	})
}

// EditMarkup handles PATCH /api/v1/options/{code}/markup.
func (h *Handler) EditMarkup(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, func(code, raw string) (pricing.Result, error) {
		return h.service.EditMarkup(r.Context(), code, raw)
	})
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request, apply func(code, raw string) (pricing.Result, error)) {
	code := chi.URLParam(r, "code")
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "value is required", nil)
		return
	}
	res, err := apply(code, req.Value)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, toResponse(res))
}

// ChangeRate handles POST /api/v1/pricing/conversion-rate. Every option is
// recomputed under the new rate and the full set is returned.
func (h *Handler) ChangeRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "rate is required", nil)
		return
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "rate must be a decimal number", nil)
		return
	}
	results, err := h.service.ChangeRate(r.Context(), rate, req.Currency)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]optionResponse, 0, len(results))
	for _, res := range results {
		items = append(items, toResponse(res))
	}
	common.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pricing.ErrUnknownOption):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "option not found", nil)
	case errors.Is(err, ErrInvalidRate):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "conversion rate must be positive", nil)
	default:
		common.RenderError(w, err)
	}
}
