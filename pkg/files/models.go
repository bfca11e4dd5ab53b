package files

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type MedicalFile struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID          uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`
	Filename        string    `json:"filename" gorm:"size:255;not null"`
	Filesize        int64     `json:"filesize"`
	MimeType        string    `json:"mime_type" gorm:"size:100"`
	StoragePath     string    `json:"-" gorm:"size:500"`
	UploadDate      time.Time `json:"upload_date" gorm:"index"`
	Description     string    `json:"description" gorm:"type:text"`
	IsProcessed     bool      `json:"is_processed" gorm:"not null;default:false"`
	ProcessingError string    `json:"processing_error,omitempty" gorm:"type:text"`
}

func (MedicalFile) TableName() string {
	return "medical_files"
}

func (f MedicalFile) Extension() string {
	return strings.ToLower(filepath.Ext(f.Filename))
}

// Category is the coarse file type used to pick an analysis prompt.
func (f MedicalFile) Category() string {
	switch {
	case f.Extension() == ".dcm" || strings.Contains(f.MimeType, "dicom"):
		return "dicom"
	case strings.HasPrefix(f.MimeType, "image/"):
		return "image"
	case f.MimeType == "application/pdf" || f.Extension() == ".pdf":
		return "pdf"
	case strings.Contains(f.MimeType, "wordprocessingml") || f.MimeType == "application/msword" ||
		f.Extension() == ".docx" || f.Extension() == ".doc":
		return "docx"
	case strings.HasPrefix(f.MimeType, "text/") || f.Extension() == ".txt":
		return "text"
	}
	switch f.Extension() {
	case ".jpg", ".jpeg", ".png", ".bmp", ".tiff":
		return "image"
	}
	return "all"
}

type Stats struct {
	TotalFiles int64          `json:"total_files"`
	TotalBytes int64          `json:"-"`
	TotalSize  string         `json:"total_size"`
	FileTypes  map[string]int `json:"file_types"`
	LastUpload *time.Time     `json:"last_upload"`
}
