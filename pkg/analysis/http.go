package analysis

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/files"
	"github.com/medtriage/platform/pkg/gateway/auth"
	"github.com/medtriage/platform/pkg/gateway/respond"
)

const multipartMemory = 32 << 20

type HTTPHandler struct {
	service *Service
	limiter func(http.Handler) http.Handler
}

// NewHTTPHandler wires the analysis routes. limiter, when set, guards the
// routes that call the model.
func NewHTTPHandler(service *Service, limiter func(http.Handler) http.Handler) *HTTPHandler {
	return &HTTPHandler{service: service, limiter: limiter}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	expensive := router.NewRoute().Subrouter()
	if h.limiter != nil {
		expensive.Use(h.limiter)
	}
	expensive.HandleFunc("/analysis/upload/", h.handleUpload).Methods(http.MethodPost)
	expensive.HandleFunc("/analysis/retry/{file_id}/", h.handleRetry).Methods(http.MethodPost)

	router.HandleFunc("/analysis/file/{file_id}/", h.handleResult).Methods(http.MethodGet)
	router.HandleFunc("/analysis/session/{session_id}/", h.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/analysis/history/", h.handleHistory).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Требуется авторизация")
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(w, http.StatusBadRequest, "Файл слишком большой")
			return
		}
		respond.Error(w, http.StatusBadRequest, "Некорректный запрос")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "Файл не загружен")
		return
	}
	defer file.Close()

	result, err := h.service.Upload(r.Context(), userID, files.Upload{
		Name:        header.Filename,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
		Description: r.FormValue("description"),
		Body:        file,
	})
	switch {
	case err == nil:
		respond.JSON(w, http.StatusCreated, result)
	case files.IsValidationError(err):
		respond.Error(w, http.StatusBadRequest, err.Error())
	case IsAnalysisError(err):
		analysisFailed(w, err)
	default:
		logger.Log.WithError(err).WithField("user_id", userID).Error("upload failed")
		respond.Error(w, http.StatusInternalServerError, "Ошибка загрузки файла")
	}
}

func (h *HTTPHandler) handleRetry(w http.ResponseWriter, r *http.Request) {
	userID, fileID, ok := pathIDs(w, r, "file_id", "Файл не найден")
	if !ok {
		return
	}

	result, err := h.service.Retry(r.Context(), userID, fileID)
	switch {
	case err == nil:
		respond.JSON(w, http.StatusOK, result)
	case errors.Is(err, files.ErrNotFound):
		respond.Error(w, http.StatusNotFound, "Файл не найден")
	case IsAnalysisError(err):
		analysisFailed(w, err)
	default:
		logger.Log.WithError(err).WithField("file_id", fileID).Error("retry failed")
		respond.Internal(w)
	}
}

func analysisFailed(w http.ResponseWriter, err error) {
	var ae *AnalysisError
	errors.As(err, &ae)
	logger.Log.WithError(err).WithFields(map[string]interface{}{
		"file_id":    ae.FileID,
		"session_id": ae.SessionID,
	}).Warn("analysis session failed")
	respond.ErrorWithDetails(w, http.StatusInternalServerError, "Ошибка анализа", ae.Detail)
}

func (h *HTTPHandler) handleResult(w http.ResponseWriter, r *http.Request) {
	userID, fileID, ok := pathIDs(w, r, "file_id", "Анализ не найден")
	if !ok {
		return
	}

	view, err := h.service.Result(r.Context(), userID, fileID)
	if errors.Is(err, ErrNotFound) {
		respond.Error(w, http.StatusNotFound, "Анализ не найден")
		return
	}
	if err != nil {
		logger.Log.WithError(err).WithField("file_id", fileID).Error("failed to load analysis result")
		respond.Error(w, http.StatusInternalServerError, "Ошибка сервера")
		return
	}
	respond.JSON(w, http.StatusOK, view)
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := pathIDs(w, r, "session_id", "Сессия не найдена")
	if !ok {
		return
	}

	view, err := h.service.Status(r.Context(), userID, sessionID)
	if errors.Is(err, ErrNotFound) {
		respond.Error(w, http.StatusNotFound, "Сессия не найдена")
		return
	}
	if err != nil {
		logger.Log.WithError(err).WithField("session_id", sessionID).Error("failed to load session status")
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, view)
}

func (h *HTTPHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Требуется авторизация")
		return
	}

	items, err := h.service.History(r.Context(), userID)
	if err != nil {
		logger.Log.WithError(err).Error("failed to load analysis history")
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, items)
}

func pathIDs(w http.ResponseWriter, r *http.Request, key, notFound string) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Требуется авторизация")
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(mux.Vars(r)[key])
	if err != nil {
		respond.Error(w, http.StatusNotFound, notFound)
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}
