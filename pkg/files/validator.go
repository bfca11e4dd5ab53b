package files

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxSize  = 50 * 1024 * 1024
	MaxFilenameSize = 255
)

var (
	errEmptyFile        = errors.New("Файл не передан")
	errUnsupportedExt   = errors.New("Неподдерживаемый формат файла")
	errTooLarge         = errors.New("Размер файла превышает допустимый лимит")
	errInvalidMediaType = errors.New("Недопустимый тип файла")
	errNameTooLong      = errors.New("Имя файла слишком длинное")
)

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

var allowedExtensions = []string{"jpg", "jpeg", "png", "dcm", "bmp", "tiff", "pdf", "docx", "doc", "txt"}

// Declared content types are matched by prefix. Browsers send
// application/octet-stream for .dcm and sometimes for .txt, and the extension
// has been checked by then.
var allowedTypePrefixes = []string{
	"image/",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats",
	"application/dicom",
	"application/octet-stream",
	"text/plain",
}

type Validator struct {
	maxSize    int64
	extensions map[string]struct{}
}

func NewValidator(maxSize int64) *Validator {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	exts := make(map[string]struct{}, len(allowedExtensions))
	for _, e := range allowedExtensions {
		exts[e] = struct{}{}
	}
	return &Validator{maxSize: maxSize, extensions: exts}
}

func (v *Validator) Validate(name string, size int64, contentType string) error {
	if v == nil {
		return ValidationError{reason: errors.New("validator not initialised")}
	}
	if strings.TrimSpace(name) == "" || size == 0 {
		return ValidationError{reason: errEmptyFile}
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if _, ok := v.extensions[ext]; !ok {
		return ValidationError{reason: fmt.Errorf("%w. Разрешенные форматы: %s", errUnsupportedExt, strings.Join(allowedExtensions, ", "))}
	}

	if size > v.maxSize {
		return ValidationError{reason: fmt.Errorf("%w %d МБ", errTooLarge, v.maxSize/(1024*1024))}
	}

	if ct := strings.ToLower(strings.TrimSpace(contentType)); ct != "" {
		allowed := false
		for _, prefix := range allowedTypePrefixes {
			if strings.HasPrefix(ct, prefix) {
				allowed = true
				break
			}
		}
		if !allowed {
			return ValidationError{reason: errInvalidMediaType}
		}
	}

	if utf8.RuneCountInString(name) > MaxFilenameSize {
		return ValidationError{reason: errNameTooLong}
	}
	return nil
}
