package services

import (
	"context"
	"time"

	"github.com/stock-sync/pkg/models"
)

// Store is the persistence boundary consumed by the sync engine.
// Implemented by database.MySQLClient.
type Store interface {
	GetInstruments(ctx context.Context) ([]*models.Instrument, error)
	GetInstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error)
	GetLatestBar(ctx context.Context, instrumentID int) (*models.DailyBar, error)
	CountBars(ctx context.Context, instrumentID int) (int, error)
	GetTracker(ctx context.Context, instrumentID int, dataType string) (*models.SyncTracker, error)
	UpsertTracker(ctx context.Context, tracker *models.SyncTracker) error

	// ApplyIncremental and ApplyRebuild write bars plus the tracker row
	// atomically; an interrupted run leaves either both or neither.
	ApplyIncremental(ctx context.Context, instrumentID int, bars []models.DailyBar, tracker *models.SyncTracker) (int, error)
	ApplyRebuild(ctx context.Context, instrumentID int, bars []models.DailyBar, tracker *models.SyncTracker) (int, error)
}

// Provider is the market data boundary consumed by the sync engine.
// Implemented by provider.Client.
type Provider interface {
	FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyBar, error)
}

// StatusCache mirrors the latest per-symbol sync result for cheap reads.
// Implemented by cache.RedisClient; optional, best-effort.
type StatusCache interface {
	SetSyncStatus(ctx context.Context, symbol string, result *models.SyncResult) error
}

// EventPublisher broadcasts sync outcomes. Implemented by
// messaging.NATSClient; optional, best-effort.
type EventPublisher interface {
	PublishSyncResult(result *models.SyncResult) error
	PublishRunSummary(summary *models.RunSummary) error
}
