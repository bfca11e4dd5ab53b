// Package routes assembles the HTTP surface of the API server.
package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/gateway/auth"
	"github.com/medtriage/platform/pkg/gateway/middleware"
	"github.com/medtriage/platform/pkg/gateway/respond"
	"github.com/medtriage/platform/pkg/observability/metrics"
)

// Registrar is implemented by every package HTTP handler.
type Registrar interface {
	Register(r *mux.Router)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Config struct {
	Tokens         *auth.JWTManager
	MaxRequestBody int64
	Readiness      map[string]ReadinessCheck

	// Public handlers see anonymous requests under /api.
	Public []Registrar
	// Protected handlers require a bearer token.
	Protected []Registrar
	// Admin handlers are mounted under /api/admin and require the admin role.
	Admin []Registrar
}

func New(cfg Config) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}).Methods(http.MethodGet)
	router.HandleFunc("/ready", readyHandler(cfg.Readiness)).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.BodyLimit(cfg.MaxRequestBody))

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.Authenticate(cfg.Tokens), middleware.RequireRole(auth.RoleAdmin))
	for _, h := range cfg.Admin {
		h.Register(admin)
	}

	for _, h := range cfg.Public {
		h.Register(api)
	}

	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.Authenticate(cfg.Tokens))
	for _, h := range cfg.Protected {
		h.Register(protected)
	}

	return middleware.CORS(router)
}

func readyHandler(checks map[string]ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		report := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Log.WithError(err).WithField("dependency", name).Warn("readiness check failed")
				report[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			report[name] = "ok"
		}
		respond.JSON(w, status, report)
	}
}
