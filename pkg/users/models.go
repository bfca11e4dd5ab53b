package users

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Email        string     `json:"email" gorm:"size:254;uniqueIndex;not null"`
	FullName     string     `json:"full_name" gorm:"size:255"`
	DateOfBirth  *time.Time `json:"date_of_birth" gorm:"type:date"`
	Role         string     `json:"role" gorm:"size:20;index;not null"`
	PasswordHash string     `json:"-" gorm:"size:100;not null"`
	IsActive     bool       `json:"is_active" gorm:"not null"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt    time.Time  `json:"-"`
}

func (User) TableName() string {
	return "users"
}

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	Role        string `json:"role"`
	DateOfBirth string `json:"date_of_birth"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
