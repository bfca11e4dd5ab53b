package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/common/models"
	"github.com/medtriage/platform/pkg/observability/metrics"
	"gorm.io/datatypes"
)

type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// Handle matches kafka.EventHandler. Events of unknown types are skipped so
// that the consumer commits past them.
func (h *Handler) Handle(ctx context.Context, event models.Event) error {
	switch event.Type {
	case models.EventAnalysisCompleted, models.EventAnalysisFailed:
	default:
		logger.Log.WithField("event_type", event.Type).Debug("ignoring event")
		return nil
	}
	if event.ID == "" {
		return fmt.Errorf("event of type %s has no id", event.Type)
	}

	occurred := event.Timestamp
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	row := &Event{
		EventID:    event.ID,
		Type:       event.Type,
		Source:     event.Source,
		SessionID:  stringField(event.Data, "session_id"),
		FileID:     stringField(event.Data, "file_id"),
		UserID:     stringField(event.Data, "user_id"),
		Status:     stringField(event.Data, "status"),
		Payload:    datatypes.JSONMap(event.Data),
		OccurredAt: occurred.UTC(),
	}

	inserted, err := h.store.Write(ctx, row)
	if err != nil {
		return fmt.Errorf("store event %s: %w", event.ID, err)
	}
	if !inserted {
		logger.Log.WithField("event_id", event.ID).Debug("duplicate event skipped")
		return nil
	}

	metrics.AuditEventsStored.WithLabelValues(event.Type).Inc()
	logger.Log.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
		"session_id": row.SessionID,
	}).Info("analysis event recorded")
	return nil
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
