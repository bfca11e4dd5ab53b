package diseases

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/gateway/auth"
	"github.com/medtriage/platform/pkg/gateway/respond"
)

type HTTPHandler struct {
	reconciler *Reconciler
}

func NewHTTPHandler(reconciler *Reconciler) *HTTPHandler {
	return &HTTPHandler{reconciler: reconciler}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/diseases/", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/diseases/{id}/deactivate/", h.handleDeactivate).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Требуется авторизация")
		return
	}

	records, err := h.reconciler.List(r.Context(), userID)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list disease history")
		respond.Internal(w)
		return
	}
	if records == nil {
		records = []Record{}
	}
	respond.JSON(w, http.StatusOK, records)
}

func (h *HTTPHandler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Требуется авторизация")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respond.Error(w, http.StatusNotFound, "Заболевание не найдено")
		return
	}

	err = h.reconciler.Deactivate(r.Context(), userID, id)
	if errors.Is(err, ErrNotFound) {
		respond.Error(w, http.StatusNotFound, "Заболевание не найдено")
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to deactivate disease record")
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Заболевание отмечено как вылеченное",
	})
}
