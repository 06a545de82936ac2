package models

import "time"

// DataTypeDailyOHLCV is the tracker data type written by the daily syncer.
const DataTypeDailyOHLCV = "daily_ohlcv"

// Sync tracker statuses
const (
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
	SyncStatusPartial = "partial"
)

// SyncTracker records the outcome of the most recent sync attempt for
// one (instrument, data type) pair. One row per pair; created on the
// first attempt and updated on every attempt after that.
type SyncTracker struct {
	ID           int        `json:"id" db:"id"`
	InstrumentID int        `json:"instrument_id" db:"instrument_id"`
	DataType     string     `json:"data_type" db:"data_type"`
	LastSyncTime time.Time  `json:"last_sync_time" db:"last_sync_time"`
	LastDataDate *time.Time `json:"last_data_date,omitempty" db:"last_data_date"`
	RecordsCount int        `json:"records_count" db:"records_count"`
	Status       string     `json:"sync_status" db:"sync_status"`
	ErrorMessage string     `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`

	// Symbol is populated on joined reads for display purposes.
	Symbol string `json:"symbol,omitempty" db:"-"`
}
