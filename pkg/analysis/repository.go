package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("analysis not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// AutoMigrate expects medical_files to exist already.
func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Session{}, &Result{}, &DetectedCondition{})
}

func (r *Repository) CreateSession(ctx context.Context, s *Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.StartTime.IsZero() {
		s.StartTime = time.Now().UTC()
	}
	if s.Status == "" {
		s.Status = StatusPending
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(s).Error
}

func (r *Repository) MarkInProgress(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", id).
		Update("status", StatusInProgress).Error
}

func (r *Repository) CompleteSession(ctx context.Context, id uuid.UUID, end time.Time) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":   StatusCompleted,
			"end_time": end,
		}).Error
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, msg string, end time.Time) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        StatusFailed,
			"end_time":      end,
			"error_message": msg,
		}).Error
}

func (r *Repository) CreateResult(ctx context.Context, res *Result) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(res).Error
}

func (r *Repository) CreateConditions(ctx context.Context, conds []DetectedCondition) error {
	if len(conds) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&conds).Error
}

func (r *Repository) ownedSessions(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Joins("JOIN medical_files ON medical_files.id = analysis_sessions.file_id").
		Where("medical_files.user_id = ?", userID).
		Preload("File").
		Preload("Result.Conditions")
}

// LatestForFile returns the most recently started session of a file owned by
// userID.
func (r *Repository) LatestForFile(ctx context.Context, userID, fileID uuid.UUID) (*Session, error) {
	var s Session
	err := r.ownedSessions(ctx, userID).
		Where("analysis_sessions.file_id = ?", fileID).
		Order("analysis_sessions.start_time DESC").
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*Session, error) {
	var s Session
	err := r.ownedSessions(ctx, userID).
		Where("analysis_sessions.id = ?", sessionID).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) History(ctx context.Context, userID uuid.UUID, limit int) ([]Session, error) {
	var out []Session
	err := r.ownedSessions(ctx, userID).
		Order("analysis_sessions.start_time DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *Repository) ListForFile(ctx context.Context, fileID uuid.UUID) ([]Session, error) {
	var out []Session
	err := r.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("start_time ASC").
		Find(&out).Error
	return out, err
}

// DeleteForFile removes every session of a file with its results and
// conditions.
func (r *Repository) DeleteForFile(ctx context.Context, fileID uuid.UUID) ([]uuid.UUID, error) {
	var sessionIDs []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&Session{}).
		Where("file_id = ?", fileID).
		Pluck("id", &sessionIDs).Error; err != nil {
		return nil, err
	}
	if len(sessionIDs) == 0 {
		return nil, nil
	}

	results := r.db.Model(&Result{}).Select("id").Where("session_id IN ?", sessionIDs)
	if err := r.db.WithContext(ctx).Where("result_id IN (?)", results).Delete(&DetectedCondition{}).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("session_id IN ?", sessionIDs).Delete(&Result{}).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", sessionIDs).Delete(&Session{}).Error; err != nil {
		return nil, err
	}
	return sessionIDs, nil
}
