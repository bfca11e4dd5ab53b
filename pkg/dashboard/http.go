package dashboard

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/gateway/respond"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

// Register expects a router already restricted to administrators.
func (h *HTTPHandler) Register(r *mux.Router) {
	r.HandleFunc("/dashboard/", h.handleOverview).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to build dashboard")
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, overview)
}
