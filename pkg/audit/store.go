// Package audit keeps a queryable trail of analysis lifecycle events consumed
// from Kafka.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

type Event struct {
	ID         uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	EventID    string            `json:"event_id" gorm:"size:64;uniqueIndex;not null"`
	Type       string            `json:"type" gorm:"size:50;index;not null"`
	Source     string            `json:"source" gorm:"size:100"`
	SessionID  string            `json:"session_id" gorm:"size:36;index"`
	FileID     string            `json:"file_id" gorm:"size:36"`
	UserID     string            `json:"user_id" gorm:"size:36;index"`
	Status     string            `json:"status" gorm:"size:20"`
	Payload    datatypes.JSONMap `json:"payload"`
	OccurredAt time.Time         `json:"occurred_at" gorm:"index"`
	ReceivedAt time.Time         `json:"received_at"`
}

func (Event) TableName() string {
	return "analysis_events"
}

type Filter struct {
	Type      string
	SessionID string
	UserID    string
	Limit     int
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Event{})
}

// Write stores the event once. A redelivered event with a known EventID is
// ignored and reported as not inserted.
func (s *Store) Write(ctx context.Context, event *Event) (bool, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) Query(ctx context.Context, filter Filter) ([]Event, error) {
	tx := s.db.WithContext(ctx)
	if filter.Type != "" {
		tx = tx.Where("type = ?", filter.Type)
	}
	if filter.SessionID != "" {
		tx = tx.Where("session_id = ?", filter.SessionID)
	}
	if filter.UserID != "" {
		tx = tx.Where("user_id = ?", filter.UserID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	events := []Event{}
	if err := tx.Order("occurred_at DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
