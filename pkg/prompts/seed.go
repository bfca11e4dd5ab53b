package prompts

import (
	"context"
	"fmt"
	"os"

	"github.com/medtriage/platform/pkg/common/logger"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Prompts []struct {
		Name        string `yaml:"name"`
		FileType    string `yaml:"file_type"`
		Description string `yaml:"description"`
		Active      *bool  `yaml:"active"`
		Text        string `yaml:"text"`
	} `yaml:"prompts"`
}

// Seed creates the prompts listed in a YAML file whose names are not taken
// yet. It returns how many were created.
func (s *Service) Seed(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read prompt seed: %w", err)
	}
	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return 0, fmt.Errorf("parse prompt seed %s: %w", path, err)
	}

	created := 0
	for _, entry := range file.Prompts {
		exists, err := s.repo.ExistsByName(ctx, entry.Name)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}
		_, err = s.Create(ctx, Input{
			Name:         entry.Name,
			PromptText:   entry.Text,
			Description:  entry.Description,
			FileType:     entry.FileType,
			IsActive:     entry.Active,
			ChangeReason: "seed",
		}, nil)
		if err != nil {
			return created, fmt.Errorf("seed prompt %q: %w", entry.Name, err)
		}
		created++
	}

	logger.Log.WithFields(map[string]interface{}{
		"path":    path,
		"created": created,
	}).Info("prompt seed applied")
	return created, nil
}
