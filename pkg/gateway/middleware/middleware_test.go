package middleware

import (
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

func newProtectedRouter(t *testing.T) (*mux.Router, *auth.JWTManager) {
	t.Helper()
	jwtm, err := auth.NewJWTManager("0123456789abcdef0123", "medtriage", time.Hour)
	require.NoError(t, err)

	router := mux.NewRouter()
	router.Use(Recovery, Logging)
	api := router.PathPrefix("/api").Subrouter()
	api.Use(Authenticate(jwtm))
	api.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.PrincipalFrom(r.Context())
		_, _ = w.Write([]byte(p.UserID.String()))
	})
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(RequireRole(auth.RoleAdmin))
	admin.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	router.HandleFunc("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })
	return router, jwtm
}

func do(router http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate(t *testing.T) {
	router, jwtm := newProtectedRouter(t)
	id := uuid.New()
	token, err := jwtm.IssueToken(id, auth.RolePatient, "")
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, do(router, "/api/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(router, "/api/me", "garbage").Code)

	rec := do(router, "/api/me", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id.String(), rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequireRole(t *testing.T) {
	router, jwtm := newProtectedRouter(t)
	patient, err := jwtm.IssueToken(uuid.New(), auth.RolePatient, "")
	require.NoError(t, err)
	admin, err := jwtm.IssueToken(uuid.New(), auth.RoleAdmin, "")
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, do(router, "/api/admin/ping", patient).Code)
	assert.Equal(t, http.StatusNoContent, do(router, "/api/admin/ping", admin).Code)
}

func TestRecovery(t *testing.T) {
	router, _ := newProtectedRouter(t)
	rec := do(router, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(0.001, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestCORSPreflight(t *testing.T) {
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { t.Fatal("preflight reached handler") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/files/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
