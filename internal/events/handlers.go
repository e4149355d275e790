package events

import (
	"net/http"
	"strings"

	"github.com/mzahrani/backend-voucherhub/internal/common"
)

// Handler exposes read-only admin endpoints over the event store.
type Handler struct {
	Store *Store
}

// Recent handles GET /admin/events?topic=...&limit=. The topic must be one of
// the canonical emitted topics.
func (h Handler) Recent(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "event store unavailable", nil)
		return
	}
	topic := strings.TrimSpace(r.URL.Query().Get("topic"))
	if !knownTopic(topic) {
		common.RenderError(w, common.NewAppError(
			"VALIDATION", "unknown topic", http.StatusBadRequest, nil,
		).WithDetails(map[string]any{"topics": DefaultTopics()}))
		return
	}
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 50)
	items, err := h.Store.Recent(r.Context(), topic, limit)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items, "topic": topic})
}

func knownTopic(topic string) bool {
	for _, t := range DefaultTopics() {
		if t == topic {
			return true
		}
	}
	return false
}
