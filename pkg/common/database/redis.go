package database

import (
	"context"
	"fmt"
	"time"

	"github.com/medtriage/platform/pkg/common/config"
	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

// NewRedis returns a client even when the initial ping fails; callers that
// can degrade without Redis inspect the returned error and decide.
func NewRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Log.WithError(err).WithField("addr", client.Options().Addr).Warn("redis unreachable")
		return client, fmt.Errorf("ping redis: %w", err)
	}

	logger.Log.WithField("addr", client.Options().Addr).Info("Connected to Redis")
	return client, nil
}
