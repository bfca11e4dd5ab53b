package prompts

import (
	"time"

	"github.com/google/uuid"
)

const FileTypeAll = "all"

// FileTypes lists the file categories a prompt can target, with the labels
// shown in the admin UI.
var FileTypes = map[string]string{
	"all":   "Все типы",
	"image": "Изображения",
	"pdf":   "PDF документы",
	"docx":  "DOCX документы",
	"text":  "Текстовые файлы",
	"dicom": "DICOM файлы",
}

type Prompt struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Name            string     `json:"name" gorm:"size:100;not null"`
	PromptText      string     `json:"prompt_text" gorm:"type:text;not null"`
	Description     string     `json:"description" gorm:"type:text"`
	FileType        string     `json:"file_type" gorm:"size:50;not null;index"`
	FileTypeDisplay string     `json:"file_type_display" gorm:"-"`
	IsActive        bool       `json:"is_active" gorm:"not null;index"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"index"`
	CreatedBy       *uuid.UUID `json:"created_by" gorm:"type:uuid"`
	Versions        []Version  `json:"versions" gorm:"foreignKey:PromptID"`
}

func (Prompt) TableName() string {
	return "ai_prompts"
}

// Version is a snapshot of a prompt's text. Version 1 is the text the
// prompt was created with.
type Version struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	PromptID     uuid.UUID  `json:"prompt_id" gorm:"type:uuid;not null;index"`
	PromptText   string     `json:"prompt_text" gorm:"type:text;not null"`
	Version      int        `json:"version" gorm:"not null"`
	ChangeReason string     `json:"change_reason" gorm:"size:255"`
	CreatedAt    time.Time  `json:"created_at"`
	CreatedBy    *uuid.UUID `json:"created_by" gorm:"type:uuid"`
}

func (Version) TableName() string {
	return "ai_prompt_versions"
}

type Input struct {
	Name         string `json:"name"`
	PromptText   string `json:"prompt_text"`
	Description  string `json:"description"`
	FileType     string `json:"file_type"`
	IsActive     *bool  `json:"is_active"`
	ChangeReason string `json:"change_reason"`
}

type Filter struct {
	FileType string
	Active   *bool
}

type TypeCount struct {
	FileType string `json:"file_type"`
	Count    int64  `json:"count"`
}

type Stats struct {
	Total         int64       `json:"total"`
	Active        int64       `json:"active"`
	ByType        []TypeCount `json:"by_type"`
	RecentUpdates int64       `json:"recent_updates"`
}
