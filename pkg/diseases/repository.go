package diseases

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("disease record not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Record{})
}

// UpsertBatch inserts new (user, code) pairs and refreshes existing ones in
// a single transaction. first_detected is never overwritten. Codes must be
// unique within the batch.
func (r *Repository) UpsertBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		if records[i].ID == uuid.Nil {
			records[i].ID = uuid.New()
		}
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "disease_code"}},
			DoUpdates: clause.AssignmentColumns([]string{"disease_name", "last_detected", "is_active", "last_analysis_id"}),
		}).Create(&records).Error
	})
}

func (r *Repository) List(ctx context.Context, userID uuid.UUID) ([]Record, error) {
	var out []Record
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_detected DESC").
		Find(&out).Error
	return out, err
}

func (r *Repository) Get(ctx context.Context, userID uuid.UUID, code string) (*Record, error) {
	var rec Record
	err := r.db.WithContext(ctx).First(&rec, "user_id = ? AND disease_code = ?", userID, code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) Deactivate(ctx context.Context, userID, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&Record{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearAnalysis detaches records from sessions that are being deleted.
func (r *Repository) ClearAnalysis(ctx context.Context, sessionIDs []uuid.UUID) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&Record{}).
		Where("last_analysis_id IN ?", sessionIDs).
		Update("last_analysis_id", nil).Error
}
