package respond

import (
	"encoding/json"
	"net/http"

	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/common/models"
)

func JSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Warn("failed to encode response")
	}
}

func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, models.ErrorResponse{Error: message})
}

// ErrorWithDetails adds a short diagnostic to the message, used where the
// caller needs to know why an analysis failed.
func ErrorWithDetails(w http.ResponseWriter, status int, message, details string) {
	JSON(w, status, models.ErrorResponse{Error: message, Details: details})
}

func NotFound(w http.ResponseWriter) {
	Error(w, http.StatusNotFound, "Не найдено")
}

func Internal(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, "Внутренняя ошибка сервера")
}
