package extraction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/medtriage/platform/pkg/common/logger"
)

// MaxTextLength bounds every string returned by Extract, in runes.
const MaxTextLength = 3000

const (
	MediaTypePDF  = "application/pdf"
	MediaTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypeText = "text/plain"
	MediaTypeHTML = "text/html"
)

var ErrFileNotFound = errors.New("file not found")

type kind string

const (
	kindPDF     kind = "pdf"
	kindDOCX    kind = "docx"
	kindText    kind = "text"
	kindImage   kind = "image"
	kindUnknown kind = "unknown"
)

// OCREngine recognizes text on an image file.
type OCREngine interface {
	Recognize(ctx context.Context, path string) (string, error)
}

type Extractor struct {
	ocr OCREngine
}

func New(ocr OCREngine) *Extractor {
	return &Extractor{ocr: ocr}
}

// Extract returns a bounded plain-text excerpt of the file. The only error it
// returns is ErrFileNotFound; every other failure is turned into a
// placeholder string that describes it.
func (e *Extractor) Extract(ctx context.Context, path, mediaType string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return truncate(fmt.Sprintf("Ошибка обработки файла: %v", err)), nil
	}

	k := detectKind(mediaType, path)
	log := logger.Log.WithFields(map[string]interface{}{
		"path":       path,
		"media_type": mediaType,
		"kind":       string(k),
	})

	var (
		text string
		err  error
	)
	switch k {
	case kindPDF:
		text, err = extractPDF(path)
	case kindDOCX:
		text, err = extractDOCX(path)
	case kindText:
		text, err = extractText(path)
	case kindImage:
		text, err = e.extractImage(ctx, path)
	default:
		label := mediaType
		if label == "" {
			label = filepath.Ext(path)
		}
		log.Warn("unsupported file type for text extraction")
		return truncate(fmt.Sprintf("Файл формата %s. Не удалось извлечь текст.", label)), nil
	}

	if err != nil {
		log.WithError(err).Warn("text extraction degraded to placeholder")
		return truncate(placeholderFor(k, err)), nil
	}
	if strings.TrimSpace(text) == "" {
		return emptyPlaceholder(k), nil
	}

	log.WithField("chars", utf8.RuneCountInString(text)).Debug("text extracted")
	return truncate(text), nil
}

func (e *Extractor) extractImage(ctx context.Context, path string) (string, error) {
	if e.ocr == nil {
		return "", errors.New("ocr engine not configured")
	}
	return e.ocr.Recognize(ctx, path)
}

func detectKind(mediaType, path string) kind {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	switch {
	case mt == MediaTypePDF:
		return kindPDF
	case mt == MediaTypeDOCX:
		return kindDOCX
	case mt == MediaTypeText || mt == MediaTypeHTML:
		return kindText
	case strings.HasPrefix(mt, "image/"):
		return kindImage
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return kindPDF
	case ".docx", ".doc":
		return kindDOCX
	case ".txt", ".html", ".htm":
		return kindText
	case ".jpg", ".jpeg", ".png", ".bmp", ".tiff":
		return kindImage
	}
	return kindUnknown
}

func placeholderFor(k kind, err error) string {
	switch k {
	case kindPDF:
		return fmt.Sprintf("Ошибка PDF: %v", err)
	case kindDOCX:
		return fmt.Sprintf("Ошибка DOCX: %v", err)
	case kindText:
		if errors.Is(err, errUndecodable) {
			return "Текстовый файл не прочитан"
		}
		return fmt.Sprintf("Ошибка текста: %v", err)
	case kindImage:
		return fmt.Sprintf("Ошибка распознавания изображения: %v", err)
	}
	return fmt.Sprintf("Ошибка обработки файла: %v", err)
}

func emptyPlaceholder(k kind) string {
	switch k {
	case kindPDF:
		return "PDF не содержит данных"
	case kindDOCX:
		return "DOCX без текста"
	case kindImage:
		return "Изображение не содержит распознаваемого текста"
	}
	return ""
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxTextLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxTextLength])
}
