package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/stock-sync/pkg/config"
	"github.com/stock-sync/pkg/models"
)

// RedisClient caches the latest sync outcome per symbol so status reads
// do not have to hit MySQL.
type RedisClient struct {
	client *redis.Client
	logger *logrus.Entry
	ttl    time.Duration
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisClient{
		client: client,
		logger: logger.WithField("component", "redis"),
		ttl:    cfg.StatusTTL,
	}, nil
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// Health checks Redis health
func (rc *RedisClient) Health(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// SetSyncStatus caches the latest sync result for a symbol
func (rc *RedisClient) SetSyncStatus(ctx context.Context, symbol string, result *models.SyncResult) error {
	key := fmt.Sprintf("sync:status:%s", symbol)

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal sync result: %w", err)
	}

	return rc.client.Set(ctx, key, data, rc.ttl).Err()
}

// GetSyncStatus gets the cached sync result for a symbol, or nil on a
// cache miss.
func (rc *RedisClient) GetSyncStatus(ctx context.Context, symbol string) (*models.SyncResult, error) {
	key := fmt.Sprintf("sync:status:%s", symbol)

	data, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync status: %w", err)
	}

	var result models.SyncResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync result: %w", err)
	}

	return &result, nil
}

// SetLastRunSummary caches the most recent batch run summary
func (rc *RedisClient) SetLastRunSummary(ctx context.Context, summary *models.RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	return rc.client.Set(ctx, "sync:last_run", data, rc.ttl).Err()
}

// GetLastRunSummary gets the cached run summary, or nil when absent
func (rc *RedisClient) GetLastRunSummary(ctx context.Context) (*models.RunSummary, error) {
	data, err := rc.client.Get(ctx, "sync:last_run").Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run summary: %w", err)
	}

	var summary models.RunSummary
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run summary: %w", err)
	}

	return &summary, nil
}
