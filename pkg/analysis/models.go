package analysis

import (
	"time"

	"github.com/google/uuid"
	"github.com/medtriage/platform/pkg/files"
	"gorm.io/datatypes"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Progress is the coarse completion indicator shown while polling a session.
func Progress(status string) int {
	switch status {
	case StatusPending:
		return 10
	case StatusInProgress:
		return 50
	case StatusCompleted:
		return 100
	}
	return 0
}

type Session struct {
	ID           uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey"`
	FileID       uuid.UUID          `json:"file_id" gorm:"type:uuid;index;not null"`
	File         *files.MedicalFile `json:"-" gorm:"foreignKey:FileID"`
	ModelVersion string             `json:"model_version" gorm:"size:50"`
	StartTime    time.Time          `json:"start_time" gorm:"index"`
	EndTime      *time.Time         `json:"end_time"`
	Status       string             `json:"status" gorm:"size:20;index;not null;default:pending"`
	ErrorMessage string             `json:"error_message,omitempty" gorm:"type:text"`
	Result       *Result            `json:"result,omitempty" gorm:"foreignKey:SessionID"`
}

func (Session) TableName() string {
	return "analysis_sessions"
}

type Result struct {
	ID              uuid.UUID           `json:"id" gorm:"type:uuid;primaryKey"`
	SessionID       uuid.UUID           `json:"session_id" gorm:"type:uuid;uniqueIndex;not null"`
	Confidence      float64             `json:"confidence"`
	ResultJSON      datatypes.JSON      `json:"result_json"`
	Recommendations string              `json:"recommendations" gorm:"type:text"`
	ProcessingTime  float64             `json:"processing_time"`
	CreatedAt       time.Time           `json:"created_at"`
	Conditions      []DetectedCondition `json:"detected_conditions" gorm:"foreignKey:ResultID"`
}

func (Result) TableName() string {
	return "analysis_results"
}

type DetectedCondition struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ResultID      uuid.UUID `json:"result_id" gorm:"type:uuid;index;not null"`
	ConditionCode string    `json:"condition_code" gorm:"size:50;not null;default:UNKNOWN"`
	ConditionName string    `json:"condition_name" gorm:"size:255;not null"`
	Confidence    float64   `json:"confidence"`
	Severity      string    `json:"severity" gorm:"size:10;not null;default:medium"`
	Description   string    `json:"description,omitempty" gorm:"size:500"`
	DetectedAt    time.Time `json:"detected_at"`
}

func (DetectedCondition) TableName() string {
	return "detected_conditions"
}
