package extraction

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// TesseractCLI runs the tesseract binary for each image.
type TesseractCLI struct {
	Path      string
	Languages string
	Timeout   time.Duration
}

func NewTesseractCLI(path, languages string) *TesseractCLI {
	if path == "" {
		path = "tesseract"
	}
	if languages == "" {
		languages = "rus+eng"
	}
	return &TesseractCLI{Path: path, Languages: languages, Timeout: 60 * time.Second}
}

func (t *TesseractCLI) Recognize(ctx context.Context, path string) (string, error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Path, path, "stdout", "-l", t.Languages)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("tesseract: %w", err)
		}
		return "", fmt.Errorf("tesseract: %w: %s", err, msg)
	}
	return stdout.String(), nil
}
