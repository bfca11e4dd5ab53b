package files

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/gateway/auth"
	"github.com/medtriage/platform/pkg/gateway/respond"
)

// Deleter removes a file together with its analyses and stored bytes.
type Deleter interface {
	DeleteFile(ctx context.Context, userID, fileID uuid.UUID) error
}

type HTTPHandler struct {
	service *Service
	deleter Deleter
}

func NewHTTPHandler(service *Service, deleter Deleter) *HTTPHandler {
	return &HTTPHandler{service: service, deleter: deleter}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/files/", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/files/stats/", h.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/files/{id}/", h.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/files/{id}/", h.handleDelete).Methods(http.MethodDelete)
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Требуется авторизация")
		return
	}

	list, err := h.service.List(r.Context(), userID)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list files")
		respond.Internal(w)
		return
	}
	if list == nil {
		list = []MedicalFile{}
	}
	respond.JSON(w, http.StatusOK, list)
}

func (h *HTTPHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Требуется авторизация")
		return
	}

	stats, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		logger.Log.WithError(err).Error("failed to compute file stats")
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, stats)
}

func (h *HTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	userID, fileID, ok := h.ids(w, r)
	if !ok {
		return
	}

	f, err := h.service.Get(r.Context(), userID, fileID)
	if errors.Is(err, ErrNotFound) {
		respond.Error(w, http.StatusNotFound, "Файл не найден")
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to fetch file")
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, f)
}

func (h *HTTPHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID, fileID, ok := h.ids(w, r)
	if !ok {
		return
	}

	err := h.deleter.DeleteFile(r.Context(), userID, fileID)
	if errors.Is(err, ErrNotFound) {
		respond.Error(w, http.StatusNotFound, "Файл не найден")
		return
	}
	if err != nil {
		logger.Log.WithError(err).WithField("file_id", fileID).Error("failed to delete file")
		respond.Internal(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) ids(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Требуется авторизация")
		return uuid.Nil, uuid.Nil, false
	}
	fileID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respond.Error(w, http.StatusNotFound, "Файл не найден")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, fileID, true
}
