package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/diseases"
	"github.com/medtriage/platform/pkg/files"
	"github.com/medtriage/platform/pkg/gigachat"
	"github.com/medtriage/platform/pkg/observability/metrics"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	// ConditionThreshold is the confidence a condition must exceed to be
	// stored as a detected condition row.
	ConditionThreshold = 0.1

	minExtractedChars = 50
	maxErrorMessage   = 500
)

type TextExtractor interface {
	Extract(ctx context.Context, path, mediaType string) (string, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, req gigachat.Request) gigachat.Outcome
}

// PromptSource returns the template to use for a file type, or "" for the
// built-in one.
type PromptSource interface {
	ActiveTemplate(ctx context.Context, fileType string) (string, error)
}

type Redactor interface {
	Redact(text string) (string, map[string]int)
}

type RunResult struct {
	Outcome          gigachat.Outcome
	Confidence       float64
	ConditionsStored int
	DiseasesUpserted int
	ProcessingTime   time.Duration
}

type Orchestrator struct {
	store     Store
	extractor TextExtractor
	analyzer  Analyzer
	prompts   PromptSource
	events    Publisher
	redactor  Redactor
	timeout   time.Duration
	nowFunc   func() time.Time

	publishTimeout time.Duration
}

type Option func(*Orchestrator)

func WithPrompts(p PromptSource) Option {
	return func(o *Orchestrator) { o.prompts = p }
}

func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.events = p }
}

// WithRedactor masks personal identifiers in extracted text before the
// model call.
func WithRedactor(r Redactor) Option {
	return func(o *Orchestrator) { o.redactor = r }
}

func WithPublishTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.publishTimeout = d
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func NewOrchestrator(store Store, extractor TextExtractor, analyzer Analyzer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		extractor: extractor,
		analyzer:  analyzer,
		timeout:   gigachat.DefaultTimeout,
		nowFunc:   time.Now,

		publishTimeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run drives one session from pending to a terminal state. On error the
// session is already marked failed and the file carries the message.
func (o *Orchestrator) Run(ctx context.Context, file *files.MedicalFile, session *Session) (RunResult, error) {
	start := o.nowFunc()
	log := logger.Log.WithFields(map[string]interface{}{
		"session_id": session.ID,
		"file_id":    file.ID,
		"user_id":    file.UserID,
	})

	res, err := o.run(ctx, file, session, start)
	res.ProcessingTime = o.nowFunc().Sub(start)
	metrics.SessionDuration.Observe(res.ProcessingTime.Seconds())

	if err != nil {
		o.fail(ctx, file, session, err, log)
		metrics.SessionsFinished.WithLabelValues(StatusFailed).Inc()
		o.publish(ctx, session, map[string]interface{}{
			"user_id": file.UserID.String(),
			"error":   session.ErrorMessage,
		})
		return res, err
	}

	metrics.SessionsFinished.WithLabelValues(StatusCompleted).Inc()
	log.WithFields(map[string]interface{}{
		"confidence":  res.Confidence,
		"conditions":  res.ConditionsStored,
		"diseases":    res.DiseasesUpserted,
		"duration_ms": res.ProcessingTime.Milliseconds(),
	}).Info("analysis session completed")
	o.publish(ctx, session, map[string]interface{}{
		"user_id":          file.UserID.String(),
		"confidence":       res.Confidence,
		"conditions_count": res.ConditionsStored,
		"outcome":          string(res.Outcome.Kind),
	})
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, file *files.MedicalFile, session *Session, start time.Time) (RunResult, error) {
	if err := o.store.MarkInProgress(ctx, session.ID); err != nil {
		return RunResult{}, fmt.Errorf("mark session in progress: %w", err)
	}
	session.Status = StatusInProgress

	text := o.extract(ctx, file)

	template, err := o.template(ctx, file)
	if err != nil {
		logger.Log.WithError(err).WithField("file_id", file.ID).Warn("prompt lookup failed, using built-in template")
	}

	outcome := o.analyzer.Analyze(ctx, gigachat.Request{
		Text:      text,
		MediaType: file.MimeType,
		FileName:  file.Filename,
		Template:  template,
		Timeout:   o.timeout,
	})
	res := RunResult{Outcome: outcome}
	if outcome.Kind == gigachat.KindFailed {
		return res, fmt.Errorf("analysis failed: %s", outcome.Error)
	}

	res.Confidence = overallConfidence(outcome)
	payload, err := json.Marshal(outcome.Payload())
	if err != nil {
		return res, fmt.Errorf("encode analysis payload: %w", err)
	}

	end := o.nowFunc()
	result := &Result{
		ID:              uuid.New(),
		SessionID:       session.ID,
		Confidence:      res.Confidence,
		ResultJSON:      datatypes.JSON(payload),
		Recommendations: outcome.Recommendations,
		ProcessingTime:  end.Sub(start).Seconds(),
		CreatedAt:       end.UTC(),
	}
	conditions := detectedConditions(result.ID, outcome.Conditions, end.UTC())
	findings := make([]diseases.Finding, 0, len(outcome.Conditions))
	for _, c := range outcome.Conditions {
		findings = append(findings, diseases.Finding{Name: c.Name, Code: c.Code, Confidence: c.Confidence})
	}

	err = o.store.InTx(ctx, func(tx Tx) error {
		if err := tx.CreateResult(ctx, result); err != nil {
			return fmt.Errorf("create result: %w", err)
		}
		if err := tx.CreateConditions(ctx, conditions); err != nil {
			return fmt.Errorf("create conditions: %w", err)
		}
		if err := tx.CompleteSession(ctx, session.ID, end.UTC()); err != nil {
			return fmt.Errorf("complete session: %w", err)
		}
		if err := tx.MarkFileProcessed(ctx, file.ID); err != nil {
			return fmt.Errorf("mark file processed: %w", err)
		}
		n, err := tx.Reconcile(ctx, file.UserID, session.ID, findings)
		if err != nil {
			return err
		}
		res.DiseasesUpserted = n
		return nil
	})
	if err != nil {
		res.DiseasesUpserted = 0
		return res, err
	}

	endUTC := end.UTC()
	session.Status = StatusCompleted
	session.EndTime = &endUTC
	result.Conditions = conditions
	session.Result = result
	file.IsProcessed = true
	file.ProcessingError = ""
	res.ConditionsStored = len(conditions)
	return res, nil
}

func (o *Orchestrator) extract(ctx context.Context, file *files.MedicalFile) string {
	text, err := o.extractor.Extract(ctx, file.StoragePath, file.MimeType)
	if err != nil {
		logger.Log.WithError(err).WithField("file_id", file.ID).Warn("text extraction failed")
		text = ""
	}
	if countNonSpace(text) < minExtractedChars {
		return fmt.Sprintf("Файл: %s\nТип: %s\nТекст не извлечён", file.Filename, file.MimeType)
	}
	if o.redactor != nil {
		masked, found := o.redactor.Redact(text)
		if len(found) > 0 {
			logger.Log.WithFields(map[string]interface{}{
				"file_id":  file.ID,
				"redacted": found,
			}).Info("personal identifiers masked")
		}
		text = masked
	}
	return text
}

func (o *Orchestrator) template(ctx context.Context, file *files.MedicalFile) (string, error) {
	if o.prompts == nil {
		return "", nil
	}
	return o.prompts.ActiveTemplate(ctx, file.Category())
}

func (o *Orchestrator) fail(ctx context.Context, file *files.MedicalFile, session *Session, cause error, log *logrus.Entry) {
	msg := truncateMessage(cause.Error())
	end := o.nowFunc().UTC()
	// The caller's context may already be done; the failure must still land.
	bg := context.WithoutCancel(ctx)

	if err := o.store.MarkFailed(bg, session.ID, msg, end); err != nil {
		log.WithError(err).Error("failed to mark session failed")
	}
	if err := o.store.SetFileError(bg, file.ID, msg); err != nil {
		log.WithError(err).Error("failed to record file processing error")
	}
	session.Status = StatusFailed
	session.EndTime = &end
	session.ErrorMessage = msg
	session.Result = nil
	file.ProcessingError = msg

	log.WithError(cause).Error("analysis session failed")
}

// overallConfidence falls back to the strongest condition when the model
// reported no confidence of its own.
func overallConfidence(out gigachat.Outcome) float64 {
	if out.Confidence > 0 {
		return out.Confidence
	}
	best := 0.0
	for _, c := range out.Conditions {
		if c.Confidence > best {
			best = c.Confidence
		}
	}
	return best
}

func detectedConditions(resultID uuid.UUID, conds []gigachat.Condition, at time.Time) []DetectedCondition {
	out := make([]DetectedCondition, 0, len(conds))
	for _, c := range conds {
		if c.Confidence <= ConditionThreshold {
			continue
		}
		code := c.Code
		if code == "" {
			code = gigachat.DefaultConditionCode
		}
		severity := gigachat.NormalizeSeverity(c.Severity)
		out = append(out, DetectedCondition{
			ID:            uuid.New(),
			ResultID:      resultID,
			ConditionCode: code,
			ConditionName: c.Name,
			Confidence:    c.Confidence,
			Severity:      severity,
			Description:   c.Description,
			DetectedAt:    at,
		})
	}
	return out
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

func truncateMessage(s string) string {
	if utf8.RuneCountInString(s) <= maxErrorMessage {
		return s
	}
	return string([]rune(s)[:maxErrorMessage])
}
