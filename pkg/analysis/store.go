package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/medtriage/platform/pkg/diseases"
	"github.com/medtriage/platform/pkg/files"
	"gorm.io/gorm"
)

// Store is the persistence used by the orchestrator. Writes that must land
// together go through InTx.
type Store interface {
	MarkInProgress(ctx context.Context, sessionID uuid.UUID) error
	MarkFailed(ctx context.Context, sessionID uuid.UUID, msg string, end time.Time) error
	SetFileError(ctx context.Context, fileID uuid.UUID, msg string) error
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	CreateResult(ctx context.Context, res *Result) error
	CreateConditions(ctx context.Context, conds []DetectedCondition) error
	CompleteSession(ctx context.Context, sessionID uuid.UUID, end time.Time) error
	MarkFileProcessed(ctx context.Context, fileID uuid.UUID) error
	Reconcile(ctx context.Context, userID, sessionID uuid.UUID, findings []diseases.Finding) (int, error)
}

type GormStore struct {
	db         *gorm.DB
	sessions   *Repository
	files      *files.Repository
	reconciler *diseases.Reconciler
}

func NewGormStore(db *gorm.DB, sessions *Repository, fileRepo *files.Repository, reconciler *diseases.Reconciler) *GormStore {
	return &GormStore{db: db, sessions: sessions, files: fileRepo, reconciler: reconciler}
}

func (s *GormStore) MarkInProgress(ctx context.Context, sessionID uuid.UUID) error {
	return s.sessions.MarkInProgress(ctx, sessionID)
}

func (s *GormStore) MarkFailed(ctx context.Context, sessionID uuid.UUID, msg string, end time.Time) error {
	return s.sessions.MarkFailed(ctx, sessionID, msg, end)
}

func (s *GormStore) SetFileError(ctx context.Context, fileID uuid.UUID, msg string) error {
	return s.files.SetProcessingError(ctx, fileID, msg)
}

func (s *GormStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{
			sessions:   s.sessions.WithTx(tx),
			files:      s.files.WithTx(tx),
			reconciler: s.reconciler.WithTx(tx),
		})
	})
}

type gormTx struct {
	sessions   *Repository
	files      *files.Repository
	reconciler *diseases.Reconciler
}

func (t *gormTx) CreateResult(ctx context.Context, res *Result) error {
	return t.sessions.CreateResult(ctx, res)
}

func (t *gormTx) CreateConditions(ctx context.Context, conds []DetectedCondition) error {
	return t.sessions.CreateConditions(ctx, conds)
}

func (t *gormTx) CompleteSession(ctx context.Context, sessionID uuid.UUID, end time.Time) error {
	return t.sessions.CompleteSession(ctx, sessionID, end)
}

func (t *gormTx) MarkFileProcessed(ctx context.Context, fileID uuid.UUID) error {
	return t.files.MarkProcessed(ctx, fileID)
}

func (t *gormTx) Reconcile(ctx context.Context, userID, sessionID uuid.UUID, findings []diseases.Finding) (int, error) {
	return t.reconciler.Reconcile(ctx, userID, sessionID, findings)
}
