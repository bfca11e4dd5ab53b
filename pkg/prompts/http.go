package prompts

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/gateway/auth"
	"github.com/medtriage/platform/pkg/gateway/respond"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

// Register expects a router already restricted to administrators.
func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/prompts/", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/prompts/", h.handleCreate).Methods(http.MethodPost)
	router.HandleFunc("/prompts/stats/", h.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/prompts/{id}/", h.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/prompts/{id}/", h.handleUpdate).Methods(http.MethodPut)
	router.HandleFunc("/prompts/{id}/", h.handleDelete).Methods(http.MethodDelete)
	router.HandleFunc("/prompts/{id}/activate/", h.handleActivate).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := Filter{FileType: r.URL.Query().Get("file_type")}
	if raw := r.URL.Query().Get("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, "Некорректное значение is_active")
			return
		}
		filter.Active = &active
	}

	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list prompts")
		respond.Internal(w)
		return
	}
	if list == nil {
		list = []Prompt{}
	}
	respond.JSON(w, http.StatusOK, list)
}

func (h *HTTPHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	p, err := h.service.Create(r.Context(), in, actor(r))
	if IsValidationError(err) {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to create prompt")
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusCreated, p)
}

func (h *HTTPHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to compute prompt stats")
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, stats)
}

func (h *HTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := promptID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if !h.check(w, err, "failed to load prompt") {
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

func (h *HTTPHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := promptID(w, r)
	if !ok {
		return
	}
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	p, err := h.service.Update(r.Context(), id, in, actor(r))
	if IsValidationError(err) {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.check(w, err, "failed to update prompt") {
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

func (h *HTTPHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := promptID(w, r)
	if !ok {
		return
	}
	if !h.check(w, h.service.Delete(r.Context(), id), "failed to delete prompt") {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) handleActivate(w http.ResponseWriter, r *http.Request) {
	id, ok := promptID(w, r)
	if !ok {
		return
	}
	active, err := h.service.ToggleActive(r.Context(), id)
	if !h.check(w, err, "failed to toggle prompt") {
		return
	}
	msg := "Промт деактивирован"
	if active {
		msg = "Промт активирован"
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"message":   msg,
		"is_active": active,
	})
}

func (h *HTTPHandler) check(w http.ResponseWriter, err error, logMsg string) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrNotFound) {
		respond.Error(w, http.StatusNotFound, "Промт не найден")
		return false
	}
	logger.Log.WithError(err).Error(logMsg)
	respond.Internal(w)
	return false
}

func decodeInput(w http.ResponseWriter, r *http.Request) (Input, bool) {
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.Error(w, http.StatusBadRequest, "Некорректное тело запроса")
		return Input{}, false
	}
	return in, true
}

func promptID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respond.Error(w, http.StatusNotFound, "Промт не найден")
		return uuid.Nil, false
	}
	return id, true
}

func actor(r *http.Request) *uuid.UUID {
	id, ok := auth.UserIDFrom(r.Context())
	if !ok {
		return nil
	}
	return &id
}
