package files

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/observability/metrics"
)

// Upload is one received multipart file.
type Upload struct {
	Name        string
	Size        int64
	ContentType string
	Description string
	Body        io.Reader
}

type Service struct {
	validator *Validator
	repo      *Repository
	storage   *Storage
}

func NewService(validator *Validator, repo *Repository, storage *Storage) *Service {
	return &Service{validator: validator, repo: repo, storage: storage}
}

func (s *Service) Repository() *Repository {
	return s.repo
}

func (s *Service) Storage() *Storage {
	return s.storage
}

// Store validates and persists an upload; the returned file has no analysis
// attached yet.
func (s *Service) Store(ctx context.Context, userID uuid.UUID, up Upload) (*MedicalFile, error) {
	if err := s.validator.Validate(up.Name, up.Size, up.ContentType); err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	path, written, err := s.storage.Save(userID, up.Name, up.Body)
	if err != nil {
		return nil, fmt.Errorf("Ошибка сохранения файла: %w", err)
	}

	mediaType, _, _ := strings.Cut(up.ContentType, ";")
	f := &MedicalFile{
		UserID:      userID,
		Filename:    up.Name,
		Filesize:    written,
		MimeType:    strings.TrimSpace(mediaType),
		StoragePath: path,
		Description: up.Description,
	}
	if err := s.repo.Create(ctx, f); err != nil {
		if rmErr := s.storage.Remove(path); rmErr != nil {
			logger.Log.WithError(rmErr).WithField("path", path).Warn("failed to remove orphaned upload")
		}
		return nil, fmt.Errorf("Ошибка создания записи: %w", err)
	}

	metrics.UploadsTotal.WithLabelValues("accepted").Inc()
	logger.Log.WithFields(map[string]interface{}{
		"file_id": f.ID,
		"user_id": userID,
		"size":    written,
	}).Info("medical file stored")
	return f, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]MedicalFile, error) {
	return s.repo.List(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*MedicalFile, error) {
	return s.repo.Get(ctx, userID, id)
}

func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (Stats, error) {
	return s.repo.Stats(ctx, userID)
}

// HumanSize renders a byte count as 1.5KB, 12.0MB and so on.
func HumanSize(n int64) string {
	num := float64(n)
	for _, unit := range []string{"", "K", "M", "G", "T", "P", "E", "Z"} {
		if num < 1024 && num > -1024 {
			return fmt.Sprintf("%3.1f%sB", num, unit)
		}
		num /= 1024
	}
	return fmt.Sprintf("%.1fYiB", num)
}
