package prompts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("prompt not found")

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
	return r.db.AutoMigrate(&Prompt{}, &Version{})
}

func (r *Repository) Transaction(ctx context.Context, fn func(repo *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}

func (r *Repository) Create(ctx context.Context, p *Prompt) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(p).Error
}

func (r *Repository) Save(ctx context.Context, p *Prompt) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(p).Error
}

func (r *Repository) CreateVersion(ctx context.Context, v *Version) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *Repository) LatestVersion(ctx context.Context, promptID uuid.UUID) (int, error) {
	var latest int
	err := r.db.WithContext(ctx).Model(&Version{}).
		Where("prompt_id = ?", promptID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&latest).Error
	return latest, err
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Prompt, error) {
	var p Prompt
	err := r.db.WithContext(ctx).
		Preload("Versions", func(db *gorm.DB) *gorm.DB { return db.Order("version DESC") }).
		First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) List(ctx context.Context, f Filter) ([]Prompt, error) {
	q := r.db.WithContext(ctx).
		Preload("Versions", func(db *gorm.DB) *gorm.DB { return db.Order("version DESC") })
	if f.FileType != "" {
		q = q.Where("file_type = ?", f.FileType)
	}
	if f.Active != nil {
		q = q.Where("is_active = ?", *f.Active)
	}
	var out []Prompt
	err := q.Order("updated_at DESC").Find(&out).Error
	return out, err
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("prompt_id = ?", id).Delete(&Version{}).Error; err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Delete(&Prompt{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ActiveFor returns the most recently updated active prompt of a file type.
func (r *Repository) ActiveFor(ctx context.Context, fileType string) (*Prompt, error) {
	var p Prompt
	err := r.db.WithContext(ctx).
		Where("file_type = ? AND is_active = ?", fileType, true).
		Order("updated_at DESC").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Prompt{}).Where("name = ?", name).Count(&n).Error
	return n > 0, err
}

func (r *Repository) Stats(ctx context.Context, since time.Time) (Stats, error) {
	var s Stats
	db := r.db.WithContext(ctx)
	if err := db.Model(&Prompt{}).Count(&s.Total).Error; err != nil {
		return s, err
	}
	if err := db.Model(&Prompt{}).Where("is_active = ?", true).Count(&s.Active).Error; err != nil {
		return s, err
	}
	if err := db.Model(&Prompt{}).
		Select("file_type, COUNT(*) AS count").
		Group("file_type").
		Order("count DESC").
		Scan(&s.ByType).Error; err != nil {
		return s, err
	}
	if err := db.Model(&Prompt{}).Where("updated_at >= ?", since).Count(&s.RecentUpdates).Error; err != nil {
		return s, err
	}
	if s.ByType == nil {
		s.ByType = []TypeCount{}
	}
	return s, nil
}
