package files

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("medical file not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to an open transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&MedicalFile{})
}

func (r *Repository) Create(ctx context.Context, f *MedicalFile) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.UploadDate.IsZero() {
		f.UploadDate = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(f).Error
}

// Get returns a file only when it belongs to userID.
func (r *Repository) Get(ctx context.Context, userID, id uuid.UUID) (*MedicalFile, error) {
	var f MedicalFile
	err := r.db.WithContext(ctx).First(&f, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *Repository) List(ctx context.Context, userID uuid.UUID) ([]MedicalFile, error) {
	var out []MedicalFile
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("upload_date DESC").
		Find(&out).Error
	return out, err
}

func (r *Repository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&MedicalFile{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_processed":     true,
			"processing_error": "",
		}).Error
}

func (r *Repository) SetProcessingError(ctx context.Context, id uuid.UUID, msg string) error {
	return r.db.WithContext(ctx).Model(&MedicalFile{}).
		Where("id = ?", id).
		Update("processing_error", msg).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&MedicalFile{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Stats(ctx context.Context, userID uuid.UUID) (Stats, error) {
	files, err := r.List(ctx, userID)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{FileTypes: map[string]int{}}
	for i, f := range files {
		stats.TotalFiles++
		stats.TotalBytes += f.Filesize
		top, _, _ := strings.Cut(f.MimeType, "/")
		if top == "" {
			top = "unknown"
		}
		stats.FileTypes[top]++
		if i == 0 {
			last := f.UploadDate
			stats.LastUpload = &last
		}
	}
	stats.TotalSize = HumanSize(stats.TotalBytes)
	return stats, nil
}
