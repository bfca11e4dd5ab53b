package audit

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/gateway/respond"
)

type HTTPHandler struct {
	store *Store
}

func NewHTTPHandler(store *Store) *HTTPHandler {
	return &HTTPHandler{store: store}
}

func (h *HTTPHandler) Register(r *mux.Router) {
	r.HandleFunc("/audit/events/", h.handleList).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		Type:      q.Get("type"),
		SessionID: q.Get("session_id"),
		UserID:    q.Get("user_id"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			respond.Error(w, http.StatusBadRequest, "Некорректный параметр limit")
			return
		}
		filter.Limit = limit
	}

	events, err := h.store.Query(r.Context(), filter)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list audit events")
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, events)
}
