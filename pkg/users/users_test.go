package users

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/medtriage/platform/pkg/common/database/dbtest"
	"github.com/medtriage/platform/pkg/gateway/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewRepository(dbtest.New(t, &User{})))
}

func TestRegisterAndAuthenticate(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	u, err := s.Register(ctx, RegisterRequest{
		Email:       " Patient@Example.com ",
		Password:    "correct horse",
		FullName:    "Иван Петров",
		DateOfBirth: "1990-05-17",
	})
	require.NoError(t, err)
	assert.Equal(t, "patient@example.com", u.Email)
	assert.Equal(t, auth.RolePatient, u.Role)
	assert.True(t, u.IsActive)
	assert.NotEqual(t, "correct horse", u.PasswordHash)

	_, err = s.Register(ctx, RegisterRequest{Email: "patient@example.com", Password: "another one", FullName: "Дубль"})
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)

	got, err := s.Authenticate(ctx, "PATIENT@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	require.NotNil(t, got.LastLogin)

	_, err = s.Authenticate(ctx, "patient@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	active, err := s.ToggleActive(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, active)
	_, err = s.Authenticate(ctx, "patient@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInactive)
}

func TestRegisterValidation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	for name, req := range map[string]RegisterRequest{
		"bad email":  {Email: "not-an-email", Password: "long enough", FullName: "x"},
		"short pass": {Email: "a@b.ru", Password: "short", FullName: "x"},
		"no name":    {Email: "a@b.ru", Password: "long enough"},
		"admin role": {Email: "a@b.ru", Password: "long enough", FullName: "x", Role: auth.RoleAdmin},
		"bad date":   {Email: "a@b.ru", Password: "long enough", FullName: "x", DateOfBirth: "17.05.1990"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Register(ctx, req)
			assert.True(t, IsValidationError(err), "%v", err)
		})
	}
}

func TestBootstrapOnlyOnce(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	admin, err := s.Bootstrap(ctx, RegisterRequest{Email: "admin@example.com", Password: "s3cret-pass", FullName: "Админ"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, admin.Role)

	_, err = s.Bootstrap(ctx, RegisterRequest{Email: "other@example.com", Password: "s3cret-pass", FullName: "Другой"})
	assert.ErrorIs(t, err, ErrBootstrapNotAllowed)
}

func TestHTTPHandlers(t *testing.T) {
	s := newService(t)
	signer, err := auth.NewJWTManager("0123456789abcdef0123", "medtriage", time.Hour)
	require.NoError(t, err)

	router := mux.NewRouter()
	NewAuthHandler(s, signer).Register(router)
	NewAdminHandler(s).Register(router)

	post := func(path string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, &buf))
		return rec
	}

	rec := post("/auth/register/", RegisterRequest{Email: "doc@example.com", Password: "long enough", FullName: "Доктор", Role: auth.RoleDoctor})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var registered AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &registered))
	principal, err := signer.ValidateToken(registered.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, principal.UserID)
	assert.Equal(t, auth.RoleDoctor, principal.Role)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = post("/auth/bootstrap/", RegisterRequest{Email: "admin@example.com", Password: "long enough", FullName: "Админ"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = post("/auth/login/", LoginRequest{Email: "doc@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = post("/auth/login/", LoginRequest{Email: "doc@example.com", Password: "long enough"})
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/auth/me/", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/auth/me/", nil)
	req.Header.Set("Authorization", "Bearer "+registered.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"doc@example.com"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), registered.User.ID.String())

	rec = post("/users/"+registered.User.ID.String()+"/toggle_active/", struct{}{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Пользователь деактивирован")

	rec = post("/auth/login/", LoginRequest{Email: "doc@example.com", Password: "long enough"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
