package prompts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/medtriage/platform/pkg/common/logger"
)

const (
	maxNameLength = 100
	recentWindow  = 7 * 24 * time.Hour
)

// RequiredPlaceholders must appear in every prompt text.
var RequiredPlaceholders = []string{"{text_data}", "{file_type}"}

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

type Service struct {
	repo    *Repository
	nowFunc func() time.Time
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo, nowFunc: time.Now}
}

func (s *Service) Validate(in Input) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return ValidationError{Field: "name", Message: "Название промта обязательно"}
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return ValidationError{Field: "name", Message: fmt.Sprintf("Название промта длиннее %d символов", maxNameLength)}
	}
	if strings.TrimSpace(in.PromptText) == "" {
		return ValidationError{Field: "prompt_text", Message: "Текст промта обязателен"}
	}
	for _, ph := range RequiredPlaceholders {
		if !strings.Contains(in.PromptText, ph) {
			return ValidationError{Field: "prompt_text", Message: fmt.Sprintf("Промт должен содержать %s", ph)}
		}
	}
	if _, ok := FileTypes[in.FileType]; !ok && in.FileType != "" {
		return ValidationError{Field: "file_type", Message: "Неизвестный тип файла"}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in Input, by *uuid.UUID) (*Prompt, error) {
	if err := s.Validate(in); err != nil {
		return nil, err
	}
	now := s.nowFunc().UTC()
	p := &Prompt{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(in.Name),
		PromptText:  in.PromptText,
		Description: in.Description,
		FileType:    fileTypeOrAll(in.FileType),
		IsActive:    in.IsActive == nil || *in.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   by,
	}

	err := s.repo.Transaction(ctx, func(repo *Repository) error {
		if err := repo.Create(ctx, p); err != nil {
			return err
		}
		return repo.CreateVersion(ctx, &Version{
			PromptID:     p.ID,
			PromptText:   p.PromptText,
			Version:      1,
			ChangeReason: in.ChangeReason,
			CreatedAt:    now,
			CreatedBy:    by,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create prompt: %w", err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"prompt_id": p.ID,
		"file_type": p.FileType,
	}).Info("prompt created")
	return s.repo.Get(ctx, p.ID)
}

// Update replaces the prompt's fields. A changed text is recorded as the next
// version.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input, by *uuid.UUID) (*Prompt, error) {
	if err := s.Validate(in); err != nil {
		return nil, err
	}

	err := s.repo.Transaction(ctx, func(repo *Repository) error {
		p, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		now := s.nowFunc().UTC()
		if p.PromptText != in.PromptText {
			latest, err := repo.LatestVersion(ctx, p.ID)
			if err != nil {
				return err
			}
			if err := repo.CreateVersion(ctx, &Version{
				PromptID:     p.ID,
				PromptText:   in.PromptText,
				Version:      latest + 1,
				ChangeReason: in.ChangeReason,
				CreatedAt:    now,
				CreatedBy:    by,
			}); err != nil {
				return err
			}
		}

		p.Name = strings.TrimSpace(in.Name)
		p.PromptText = in.PromptText
		p.Description = in.Description
		p.FileType = fileTypeOrAll(in.FileType)
		if in.IsActive != nil {
			p.IsActive = *in.IsActive
		}
		p.UpdatedAt = now
		p.Versions = nil
		return repo.Save(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prompt, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.FileTypeDisplay = FileTypes[p.FileType]
	return p, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]Prompt, error) {
	list, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].FileTypeDisplay = FileTypes[list[i].FileType]
	}
	return list, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Transaction(ctx, func(repo *Repository) error {
		return repo.Delete(ctx, id)
	})
}

// ToggleActive flips the active flag and returns the new value.
func (s *Service) ToggleActive(ctx context.Context, id uuid.UUID) (bool, error) {
	var active bool
	err := s.repo.Transaction(ctx, func(repo *Repository) error {
		p, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		p.IsActive = !p.IsActive
		p.UpdatedAt = s.nowFunc().UTC()
		p.Versions = nil
		active = p.IsActive
		return repo.Save(ctx, p)
	})
	return active, err
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx, s.nowFunc().UTC().Add(-recentWindow))
}

// ActiveTemplate picks the active prompt for fileType, falling back to one
// targeting all types. An empty result means the built-in template applies.
func (s *Service) ActiveTemplate(ctx context.Context, fileType string) (string, error) {
	candidates := []string{FileTypeAll}
	if fileType != "" && fileType != FileTypeAll {
		candidates = []string{fileType, FileTypeAll}
	}
	for _, ft := range candidates {
		p, err := s.repo.ActiveFor(ctx, ft)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		return p.PromptText, nil
	}
	return "", nil
}

func fileTypeOrAll(ft string) string {
	if ft == "" {
		return FileTypeAll
	}
	return ft
}
