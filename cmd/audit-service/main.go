package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/medtriage/platform/pkg/audit"
	"github.com/medtriage/platform/pkg/common/config"
	"github.com/medtriage/platform/pkg/common/database"
	"github.com/medtriage/platform/pkg/common/kafka"
	"github.com/medtriage/platform/pkg/common/logger"
)

func main() {
	logger.Init("audit-service")
	cfg := config.Load()

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.ClosePostgres()

	store := audit.NewStore(db)
	if err := store.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate audit schema")
	}

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.AnalysisEventsTopic, cfg.KafkaGroupID+"-audit")
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.WithFields(map[string]interface{}{
		"topic":   cfg.AnalysisEventsTopic,
		"brokers": cfg.KafkaBrokers,
	}).Info("Audit service started")

	if err := consumer.Consume(ctx, audit.NewHandler(store).Handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.WithError(err).Error("Audit consumer stopped")
	}

	logger.Log.Info("Audit service stopped")
}
