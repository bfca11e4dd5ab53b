package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medtriage/platform/pkg/analysis"
	"github.com/medtriage/platform/pkg/audit"
	"github.com/medtriage/platform/pkg/common/config"
	"github.com/medtriage/platform/pkg/common/database"
	"github.com/medtriage/platform/pkg/common/kafka"
	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/dashboard"
	"github.com/medtriage/platform/pkg/diseases"
	"github.com/medtriage/platform/pkg/dlp"
	"github.com/medtriage/platform/pkg/extraction"
	"github.com/medtriage/platform/pkg/files"
	"github.com/medtriage/platform/pkg/gateway/auth"
	"github.com/medtriage/platform/pkg/gateway/middleware"
	"github.com/medtriage/platform/pkg/gateway/routes"
	"github.com/medtriage/platform/pkg/gigachat"
	"github.com/medtriage/platform/pkg/prompts"
	"github.com/medtriage/platform/pkg/terminology"
	"github.com/medtriage/platform/pkg/users"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger.Init("api-server")
	cfg := config.Load()
	ctx := context.Background()

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.ClosePostgres()

	fileRepo := files.NewRepository(db)
	sessionRepo := analysis.NewRepository(db)
	diseaseRepo := diseases.NewRepository(db)
	promptRepo := prompts.NewRepository(db)
	userRepo := users.NewRepository(db)
	auditStore := audit.NewStore(db)

	// medical_files must exist before the analysis tables reference it.
	migrations := []struct {
		name string
		run  func() error
	}{
		{"files", fileRepo.AutoMigrate},
		{"analysis", sessionRepo.AutoMigrate},
		{"diseases", diseaseRepo.AutoMigrate},
		{"prompts", promptRepo.AutoMigrate},
		{"users", userRepo.AutoMigrate},
		{"audit", auditStore.AutoMigrate},
	}
	for _, m := range migrations {
		if err := m.run(); err != nil {
			logger.Log.WithError(err).WithField("schema", m.name).Fatal("Failed to migrate schema")
		}
	}

	var redisClient *redis.Client
	if client, err := database.NewRedis(ctx, cfg); err != nil {
		logger.Log.WithError(err).Warn("Redis unavailable, token sharing and dashboard cache disabled")
		_ = client.Close()
	} else {
		redisClient = client
		defer redisClient.Close()
	}

	tokens, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, 12*time.Hour)
	if err != nil {
		logger.Log.WithError(err).Fatal("Invalid JWT configuration")
	}

	catalog, err := terminology.Load(cfg.TerminologyCatalogPath)
	if err != nil {
		if catalog == nil {
			logger.Log.WithError(err).Fatal("Failed to load terminology catalog")
		}
		logger.Log.WithError(err).Warn("Falling back to built-in terminology catalog")
	}

	var tokenStore gigachat.TokenStore
	if cfg.GigaChatTokenStore == "redis" && redisClient != nil {
		tokenStore = gigachat.NewRedisStore(redisClient, "")
	}
	model := gigachat.NewClient(gigachat.Config{
		APIURL:         cfg.GigaChatAPIURL,
		Model:          cfg.GigaChatModel,
		ConnectTimeout: cfg.GigaChatConnectTimeout,
		InsecureTLS:    cfg.GigaChatInsecureTLS,
		Auth: gigachat.AuthConfig{
			URL:              cfg.GigaChatAuthURL,
			AuthorizationKey: cfg.GigaChatAuthorizationKey,
			Scope:            cfg.GigaChatScope,
			TTL:              cfg.GigaChatTokenTTL,
		},
		TokenStore: tokenStore,
	})

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.AnalysisEventsTopic)
	defer producer.Close()

	promptService := prompts.NewService(promptRepo)
	if cfg.PromptsSeedPath != "" {
		created, err := promptService.Seed(ctx, cfg.PromptsSeedPath)
		if err != nil {
			logger.Log.WithError(err).Warn("Failed to seed prompts")
		} else {
			logger.Log.WithField("created", created).Info("Prompts seeded")
		}
	}

	orchestratorOpts := []analysis.Option{
		analysis.WithPrompts(promptService),
		analysis.WithPublisher(producer),
		analysis.WithTimeout(cfg.AnalysisTimeout),
	}
	if cfg.RedactionEnabled {
		rules, err := dlp.LoadRules(cfg.RedactionRulesPath)
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to load redaction rules")
		}
		redactor, err := dlp.NewRedactor(rules)
		if err != nil {
			logger.Log.WithError(err).Fatal("Invalid redaction rules")
		}
		orchestratorOpts = append(orchestratorOpts, analysis.WithRedactor(redactor))
	}

	fileService := files.NewService(files.NewValidator(cfg.MaxUploadSize), fileRepo, files.NewStorage(cfg.MediaRoot))
	reconciler := diseases.NewReconciler(diseaseRepo, catalog)
	orchestrator := analysis.NewOrchestrator(
		analysis.NewGormStore(db, sessionRepo, fileRepo, reconciler),
		extraction.New(extraction.NewTesseractCLI(cfg.TesseractPath, cfg.OCRLanguages)),
		model,
		orchestratorOpts...,
	)
	analysisService := analysis.NewService(db, sessionRepo, fileService, diseaseRepo, orchestrator, cfg.GigaChatModelVersion)
	userService := users.NewService(userRepo)

	var cache dashboard.Cache
	if redisClient != nil {
		cache = dashboard.NewRedisCache(redisClient, "dashboard:")
	}

	readiness := map[string]routes.ReadinessCheck{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		readiness["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	handler := routes.New(routes.Config{
		Tokens:         tokens,
		MaxRequestBody: cfg.MaxRequestBody,
		Readiness:      readiness,
		Public: []routes.Registrar{
			users.NewAuthHandler(userService, tokens),
		},
		Protected: []routes.Registrar{
			files.NewHTTPHandler(fileService, analysisService),
			analysis.NewHTTPHandler(analysisService, middleware.RateLimit(cfg.AnalysisRateLimit, cfg.AnalysisRateBurst)),
			diseases.NewHTTPHandler(reconciler),
		},
		Admin: []routes.Registrar{
			prompts.NewHTTPHandler(promptService),
			users.NewAdminHandler(userService),
			dashboard.NewHTTPHandler(dashboard.NewService(db, cache, cfg.DashboardCacheTTL)),
			audit.NewHTTPHandler(auditStore),
		},
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("API server started")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("API server stopped")
}
