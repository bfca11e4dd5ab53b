package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/gateway/auth"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var (
	ErrBootstrapNotAllowed = errors.New("platform already bootstrapped")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInactive            = errors.New("user is deactivated")
)

type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

type Service struct {
	repo    *Repository
	nowFunc func() time.Time
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo, nowFunc: time.Now}
}

// Bootstrap creates the first administrator. It is refused once any user
// exists.
func (s *Service) Bootstrap(ctx context.Context, req RegisterRequest) (*User, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrBootstrapNotAllowed
	}
	req.Role = auth.RoleAdmin
	return s.create(ctx, req)
}

// Register signs up a patient or a doctor.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	switch req.Role {
	case "":
		req.Role = auth.RolePatient
	case auth.RolePatient, auth.RoleDoctor:
	default:
		return nil, ValidationError{Message: "Недопустимая роль"}
	}
	return s.create(ctx, req)
}

func (s *Service) create(ctx context.Context, req RegisterRequest) (*User, error) {
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		return nil, ValidationError{Message: "Некорректный email"}
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		return nil, ValidationError{Message: fmt.Sprintf("Пароль должен быть не короче %d символов", minPasswordLength)}
	}
	if strings.TrimSpace(req.FullName) == "" {
		return nil, ValidationError{Message: "Полное имя обязательно"}
	}
	var dob *time.Time
	if req.DateOfBirth != "" {
		d, err := time.Parse(time.DateOnly, req.DateOfBirth)
		if err != nil {
			return nil, ValidationError{Message: "Некорректная дата рождения"}
		}
		dob = &d
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		Email:        req.Email,
		FullName:     strings.TrimSpace(req.FullName),
		DateOfBirth:  dob,
		Role:         req.Role,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	logger.Log.WithFields(map[string]interface{}{
		"user_id": u.ID,
		"role":    u.Role,
	}).Info("user registered")
	return u, nil
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	if password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrInactive
	}

	now := s.nowFunc().UTC()
	if err := s.repo.TouchLogin(ctx, u.ID, now); err != nil {
		logger.Log.WithError(err).WithField("user_id", u.ID).Warn("failed to record last login")
	}
	u.LastLogin = &now
	return u, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// ToggleActive flips the active flag and returns the new value.
func (s *Service) ToggleActive(ctx context.Context, id uuid.UUID) (bool, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	active := !u.IsActive
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return false, err
	}
	logger.Log.WithFields(map[string]interface{}{
		"user_id":   id,
		"is_active": active,
	}).Info("user active flag toggled")
	return active, nil
}
