package routes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/medtriage/platform/pkg/gateway/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pathHandler string

func (p pathHandler) Register(r *mux.Router) {
	r.HandleFunc(string(p), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)
}

func newTestRouter(t *testing.T, readyErr error) (http.Handler, *auth.JWTManager) {
	t.Helper()
	tokens, err := auth.NewJWTManager("0123456789abcdef0123", "medtriage", time.Hour)
	require.NoError(t, err)

	return New(Config{
		Tokens:         tokens,
		MaxRequestBody: 1 << 20,
		Readiness: map[string]ReadinessCheck{
			"postgres": func(context.Context) error { return readyErr },
		},
		Public:    []Registrar{pathHandler("/open/")},
		Protected: []Registrar{pathHandler("/files/")},
		Admin:     []Registrar{pathHandler("/dashboard/")},
	}), tokens
}

func get(h http.Handler, method, path, token string) int {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRouterAccessLevels(t *testing.T) {
	router, tokens := newTestRouter(t, nil)
	patient, err := tokens.IssueToken(uuid.New(), auth.RolePatient, "p@example.com")
	require.NoError(t, err)
	admin, err := tokens.IssueToken(uuid.New(), auth.RoleAdmin, "a@example.com")
	require.NoError(t, err)

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"health", "/health", "", http.StatusOK},
		{"metrics", "/metrics", "", http.StatusOK},
		{"public", "/api/open/", "", http.StatusNoContent},
		{"protected anonymous", "/api/files/", "", http.StatusUnauthorized},
		{"protected patient", "/api/files/", patient, http.StatusNoContent},
		{"admin anonymous", "/api/admin/dashboard/", "", http.StatusUnauthorized},
		{"admin as patient", "/api/admin/dashboard/", patient, http.StatusForbidden},
		{"admin", "/api/admin/dashboard/", admin, http.StatusNoContent},
		{"unknown", "/api/nothing/", admin, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, get(router, http.MethodGet, tt.path, tt.token))
		})
	}
}

func TestRouterPreflight(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	assert.Equal(t, http.StatusNoContent, get(router, http.MethodOptions, "/api/files/", ""))
}

func TestReadiness(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	assert.Equal(t, http.StatusOK, get(router, http.MethodGet, "/ready", ""))

	router, _ = newTestRouter(t, errors.New("connection refused"))
	assert.Equal(t, http.StatusServiceUnavailable, get(router, http.MethodGet, "/ready", ""))
}
