package analysis

import (
	"context"
	"time"

	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/common/models"
)

const (
	eventSource = "analysis-orchestrator"

	// DefaultPublishTimeout bounds the event write that follows a committed
	// session, so an unreachable broker cannot hold the request.
	DefaultPublishTimeout = 2 * time.Second
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType, source, key string, data map[string]interface{}) error
}

func (o *Orchestrator) publish(ctx context.Context, session *Session, data map[string]interface{}) {
	if o.events == nil {
		return
	}
	eventType := models.EventAnalysisCompleted
	if session.Status == StatusFailed {
		eventType = models.EventAnalysisFailed
	}
	data["session_id"] = session.ID.String()
	data["file_id"] = session.FileID.String()
	data["status"] = session.Status
	data["model_version"] = session.ModelVersion

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.publishTimeout)
	defer cancel()
	if err := o.events.PublishEvent(pubCtx, eventType, eventSource, session.ID.String(), data); err != nil {
		logger.Log.WithError(err).WithField("session_id", session.ID).Warn("analysis event not published")
	}
}
