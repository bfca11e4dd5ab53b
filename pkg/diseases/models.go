package diseases

import (
	"time"

	"github.com/google/uuid"
)

// Record is the running history of one condition for one user.
type Record struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID  `json:"-" gorm:"type:uuid;not null;uniqueIndex:idx_disease_user_code,priority:1"`
	DiseaseCode    string     `json:"disease_code" gorm:"size:50;not null;uniqueIndex:idx_disease_user_code,priority:2"`
	DiseaseName    string     `json:"disease_name" gorm:"size:255;not null"`
	FirstDetected  time.Time  `json:"first_detected"`
	LastDetected   time.Time  `json:"last_detected" gorm:"index"`
	IsActive       bool       `json:"is_active" gorm:"not null;default:true"`
	LastAnalysisID *uuid.UUID `json:"last_analysis_id,omitempty" gorm:"type:uuid"`
}

func (Record) TableName() string {
	return "disease_records"
}

// Finding is a detected condition offered for promotion into the history.
type Finding struct {
	Name       string
	Code       string
	Confidence float64
}
