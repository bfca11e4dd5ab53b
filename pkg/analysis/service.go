package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/diseases"
	"github.com/medtriage/platform/pkg/files"
	"github.com/medtriage/platform/pkg/gigachat"
	"gorm.io/gorm"
)

const (
	DefaultModelVersion = "GigaChat-v1.0"
	ModelType           = "GigaChat AI"
	HistoryLimit        = 20

	analysisDateLayout = "02.01.2006, 15:04:05"
	retrySuffix        = "-retry"
)

// AnalysisError reports a session that ran and ended failed. Detail is safe
// to show to the caller; Err may carry storage internals and is only logged.
type AnalysisError struct {
	FileID    uuid.UUID
	SessionID uuid.UUID
	Detail    string
	Err       error
}

const storageFailureDetail = "Не удалось сохранить результат анализа"

func newAnalysisError(fileID, sessionID uuid.UUID, res RunResult, err error) *AnalysisError {
	detail := storageFailureDetail
	if res.Outcome.Kind == gigachat.KindFailed && res.Outcome.Error != "" {
		detail = truncateMessage(res.Outcome.Error)
	}
	return &AnalysisError{FileID: fileID, SessionID: sessionID, Detail: detail, Err: err}
}

func (e *AnalysisError) Error() string {
	return e.Err.Error()
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

type UploadResult struct {
	ID              uuid.UUID `json:"id"`
	SessionID       uuid.UUID `json:"session_id"`
	Message         string    `json:"message"`
	ModelType       string    `json:"model_type"`
	Status          string    `json:"status"`
	ConditionsCount int       `json:"conditions_count"`
}

type RetryResult struct {
	Message      string    `json:"message"`
	NewSessionID uuid.UUID `json:"new_session_id"`
}

type ConditionView struct {
	ConditionName string  `json:"condition_name"`
	Code          string  `json:"code"`
	Confidence    float64 `json:"confidence"`
	Severity      string  `json:"severity"`
}

// Findings is present in a ResultView only for completed sessions.
type Findings struct {
	ResultID           uuid.UUID       `json:"result_id"`
	Summary            string          `json:"summary"`
	DetectedConditions []ConditionView `json:"detected_conditions"`
	Recommendations    string          `json:"recommendations"`
	Confidence         float64         `json:"confidence"`
}

type ResultView struct {
	SessionID    uuid.UUID  `json:"session_id"`
	Status       string     `json:"status"`
	ModelVersion string     `json:"model_version"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	Filename     string     `json:"filename"`
	AnalysisDate *string    `json:"analysis_date"`
	ErrorMessage string     `json:"error_message,omitempty"`
	*Findings
}

type StatusView struct {
	SessionID uuid.UUID `json:"session_id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	FileID    uuid.UUID `json:"file_id"`
	Filename  string    `json:"filename"`
}

type HistoryItem struct {
	ID           uuid.UUID  `json:"id"`
	Filename     string     `json:"filename"`
	ModelVersion string     `json:"model_version"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	Status       string     `json:"status"`
	Result       *Result    `json:"result"`
}

type Service struct {
	db           *gorm.DB
	repo         *Repository
	files        *files.Service
	diseases     *diseases.Repository
	orchestrator *Orchestrator
	modelVersion string
}

func NewService(db *gorm.DB, repo *Repository, fileService *files.Service, diseaseRepo *diseases.Repository, orchestrator *Orchestrator, modelVersion string) *Service {
	if modelVersion == "" {
		modelVersion = DefaultModelVersion
	}
	return &Service{
		db:           db,
		repo:         repo,
		files:        fileService,
		diseases:     diseaseRepo,
		orchestrator: orchestrator,
		modelVersion: modelVersion,
	}
}

// Upload stores the file, opens a session and analyzes it before returning.
func (s *Service) Upload(ctx context.Context, userID uuid.UUID, up files.Upload) (*UploadResult, error) {
	f, err := s.files.Store(ctx, userID, up)
	if err != nil {
		return nil, err
	}

	session, res, err := s.analyze(ctx, f, s.modelVersion)
	if err != nil {
		return nil, err
	}
	return &UploadResult{
		ID:              f.ID,
		SessionID:       session.ID,
		Message:         "Файл загружен и проанализирован",
		ModelType:       ModelType,
		Status:          session.Status,
		ConditionsCount: res.ConditionsStored,
	}, nil
}

// Retry runs a fresh session for a file the user owns. Earlier sessions are
// left as they are.
func (s *Service) Retry(ctx context.Context, userID, fileID uuid.UUID) (*RetryResult, error) {
	f, err := s.files.Get(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	session, _, err := s.analyze(ctx, f, s.modelVersion+retrySuffix)
	if err != nil {
		return nil, err
	}
	return &RetryResult{Message: "Повторный анализ завершён", NewSessionID: session.ID}, nil
}

func (s *Service) analyze(ctx context.Context, f *files.MedicalFile, modelVersion string) (*Session, RunResult, error) {
	session := &Session{FileID: f.ID, ModelVersion: modelVersion, Status: StatusPending}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, RunResult{}, fmt.Errorf("create analysis session: %w", err)
	}

	res, err := s.orchestrator.Run(ctx, f, session)
	if err != nil {
		return session, res, newAnalysisError(f.ID, session.ID, res, err)
	}
	return session, res, nil
}

// Result describes the latest session of a file.
func (s *Service) Result(ctx context.Context, userID, fileID uuid.UUID) (*ResultView, error) {
	session, err := s.repo.LatestForFile(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}

	view := &ResultView{
		SessionID:    session.ID,
		Status:       session.Status,
		ModelVersion: session.ModelVersion,
		StartTime:    session.StartTime,
		EndTime:      session.EndTime,
		ErrorMessage: session.ErrorMessage,
	}
	if session.File != nil {
		view.Filename = session.File.Filename
	}
	if session.EndTime != nil {
		date := session.EndTime.Format(analysisDateLayout)
		view.AnalysisDate = &date
	}
	if session.Status == StatusCompleted && session.Result != nil {
		view.Findings = findingsOf(session.Result)
	}
	return view, nil
}

func (s *Service) Status(ctx context.Context, userID, sessionID uuid.UUID) (*StatusView, error) {
	session, err := s.repo.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	view := &StatusView{
		SessionID: session.ID,
		Status:    session.Status,
		Progress:  Progress(session.Status),
		FileID:    session.FileID,
	}
	if session.File != nil {
		view.Filename = session.File.Filename
	}
	return view, nil
}

func (s *Service) History(ctx context.Context, userID uuid.UUID) ([]HistoryItem, error) {
	sessions, err := s.repo.History(ctx, userID, HistoryLimit)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryItem, 0, len(sessions))
	for _, session := range sessions {
		item := HistoryItem{
			ID:           session.ID,
			ModelVersion: session.ModelVersion,
			StartTime:    session.StartTime,
			EndTime:      session.EndTime,
			Status:       session.Status,
			Result:       session.Result,
		}
		if session.File != nil {
			item.Filename = session.File.Filename
		}
		out = append(out, item)
	}
	return out, nil
}

// DeleteFile removes the file row with its sessions, results and conditions
// in one transaction, detaches disease records from those sessions and then
// removes the stored bytes.
func (s *Service) DeleteFile(ctx context.Context, userID, fileID uuid.UUID) error {
	f, err := s.files.Get(ctx, userID, fileID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sessionIDs, err := s.repo.WithTx(tx).DeleteForFile(ctx, f.ID)
		if err != nil {
			return fmt.Errorf("delete analyses: %w", err)
		}
		if err := s.diseases.WithTx(tx).ClearAnalysis(ctx, sessionIDs); err != nil {
			return fmt.Errorf("detach disease records: %w", err)
		}
		return s.files.Repository().WithTx(tx).Delete(ctx, f.ID)
	})
	if err != nil {
		return err
	}

	if err := s.files.Storage().Remove(f.StoragePath); err != nil {
		logger.Log.WithError(err).WithField("file_id", f.ID).Warn("stored file not removed")
	}
	logger.Log.WithFields(map[string]interface{}{
		"file_id": f.ID,
		"user_id": userID,
	}).Info("medical file deleted")
	return nil
}

func findingsOf(res *Result) *Findings {
	out := &Findings{
		ResultID:        res.ID,
		Summary:         gigachat.DefaultSummary,
		Recommendations: res.Recommendations,
		Confidence:      res.Confidence,
	}

	var stored map[string]json.RawMessage
	if len(res.ResultJSON) > 0 {
		if err := json.Unmarshal(res.ResultJSON, &stored); err != nil {
			logger.Log.WithError(err).WithField("result_id", res.ID).Warn("stored analysis payload unreadable")
		}
	}

	var summary, recommendations string
	if decodeField(stored, "summary", &summary) && summary != "" {
		out.Summary = summary
	}
	if decodeField(stored, "recommendations", &recommendations) && recommendations != "" {
		out.Recommendations = recommendations
	}
	if out.Recommendations == "" {
		out.Recommendations = gigachat.DefaultRecommendations
	}
	var confidence float64
	if decodeField(stored, "confidence", &confidence) {
		out.Confidence = confidence
	}

	conditions := storedConditions(stored)
	if len(conditions) == 0 {
		for _, c := range res.Conditions {
			conditions = append(conditions, ConditionView{
				ConditionName: c.ConditionName,
				Code:          c.ConditionCode,
				Confidence:    c.Confidence,
				Severity:      c.Severity,
			})
		}
	}
	if conditions == nil {
		conditions = []ConditionView{}
	}
	out.DetectedConditions = conditions
	return out
}

type storedCondition struct {
	ConditionName string   `json:"condition_name"`
	Name          string   `json:"name"`
	Code          string   `json:"code"`
	Confidence    *float64 `json:"confidence"`
	Severity      string   `json:"severity"`
}

func storedConditions(stored map[string]json.RawMessage) []ConditionView {
	var raw []storedCondition
	if !decodeField(stored, "detected_conditions", &raw) || len(raw) == 0 {
		if !decodeField(stored, "conditions", &raw) {
			return nil
		}
	}

	out := make([]ConditionView, 0, len(raw))
	for _, c := range raw {
		view := ConditionView{
			ConditionName: c.ConditionName,
			Code:          c.Code,
			Severity:      c.Severity,
		}
		if view.ConditionName == "" {
			view.ConditionName = c.Name
		}
		if view.ConditionName == "" {
			view.ConditionName = "Неизвестное состояние"
		}
		if view.Code == "" {
			view.Code = gigachat.DefaultConditionCode
		}
		if view.Severity == "" {
			view.Severity = gigachat.DefaultSeverity
		}
		if c.Confidence != nil {
			view.Confidence = *c.Confidence
		}
		out = append(out, view)
	}
	return out
}

func decodeField(stored map[string]json.RawMessage, key string, dst interface{}) bool {
	raw, ok := stored[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// IsAnalysisError reports whether err came from a session that ran and failed.
func IsAnalysisError(err error) bool {
	var ae *AnalysisError
	return errors.As(err, &ae)
}
