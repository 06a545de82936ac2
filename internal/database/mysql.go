package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/stock-sync/pkg/config"
	"github.com/stock-sync/pkg/models"
)

// MySQLClient handles MySQL database operations
type MySQLClient struct {
	db     *sql.DB
	logger *logrus.Entry
	cfg    *config.MySQLConfig
}

// NewMySQLClient creates a new MySQL client
func NewMySQLClient(cfg *config.MySQLConfig, logger *logrus.Logger) (*MySQLClient, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	logger.WithField("dsn", fmt.Sprintf("%s:***@tcp(%s:%d)/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)).Debug("Connecting to MySQL")

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	return &MySQLClient{
		db:     db,
		logger: logger.WithField("component", "mysql"),
		cfg:    cfg,
	}, nil
}

// Close closes the database connection
func (mc *MySQLClient) Close() error {
	return mc.db.Close()
}

// Health checks database health
func (mc *MySQLClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return mc.db.PingContext(ctx)
}

// Instrument operations

// GetInstruments retrieves all active instruments
func (mc *MySQLClient) GetInstruments(ctx context.Context) ([]*models.Instrument, error) {
	query := `
		SELECT id, name, COALESCE(isin, ''), COALESCE(nse_symbol, ''), COALESCE(bse_symbol, ''),
		       is_active, created_at, updated_at
		FROM instruments
		WHERE is_active = 1
		ORDER BY nse_symbol
	`

	rows, err := mc.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()

	var instruments []*models.Instrument
	for rows.Next() {
		inst := &models.Instrument{}
		err := rows.Scan(
			&inst.ID,
			&inst.Name,
			&inst.ISIN,
			&inst.NSESymbol,
			&inst.BSESymbol,
			&inst.IsActive,
			&inst.CreatedAt,
			&inst.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		instruments = append(instruments, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	mc.logger.WithField("count", len(instruments)).Debug("Loaded active instruments")
	return instruments, nil
}

// GetInstrumentBySymbol retrieves an instrument by NSE or BSE symbol
func (mc *MySQLClient) GetInstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error) {
	query := `
		SELECT id, name, COALESCE(isin, ''), COALESCE(nse_symbol, ''), COALESCE(bse_symbol, ''),
		       is_active, created_at, updated_at
		FROM instruments
		WHERE nse_symbol = ? OR bse_symbol = ?
	`

	inst := &models.Instrument{}
	err := mc.db.QueryRowContext(ctx, query, symbol, symbol).Scan(
		&inst.ID,
		&inst.Name,
		&inst.ISIN,
		&inst.NSESymbol,
		&inst.BSESymbol,
		&inst.IsActive,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument: %w", err)
	}

	return inst, nil
}

// Bar operations

// GetLatestBar retrieves the most recent persisted bar for an instrument,
// or nil when the instrument has no history yet.
func (mc *MySQLClient) GetLatestBar(ctx context.Context, instrumentID int) (*models.DailyBar, error) {
	query := `
		SELECT id, instrument_id, trade_date, open_price, high_price, low_price, close_price,
		       volume, turnover, vwap, delivery_quantity, delivery_percentage, created_at
		FROM daily_prices
		WHERE instrument_id = ?
		ORDER BY trade_date DESC
		LIMIT 1
	`

	bar := &models.DailyBar{}
	err := mc.db.QueryRowContext(ctx, query, instrumentID).Scan(
		&bar.ID,
		&bar.InstrumentID,
		&bar.Date,
		&bar.Open,
		&bar.High,
		&bar.Low,
		&bar.Close,
		&bar.Volume,
		&bar.Turnover,
		&bar.VWAP,
		&bar.DeliveryQty,
		&bar.DeliveryPct,
		&bar.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest bar: %w", err)
	}

	return bar, nil
}

// CountBars returns the number of persisted bars for an instrument
func (mc *MySQLClient) CountBars(ctx context.Context, instrumentID int) (int, error) {
	var count int
	err := mc.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM daily_prices WHERE instrument_id = ?", instrumentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bars: %w", err)
	}
	return count, nil
}

const upsertBarQuery = `
	INSERT INTO daily_prices (
		instrument_id, trade_date, open_price, high_price, low_price, close_price,
		volume, turnover, vwap, delivery_quantity, delivery_percentage
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		open_price = VALUES(open_price),
		high_price = VALUES(high_price),
		low_price = VALUES(low_price),
		close_price = VALUES(close_price),
		volume = VALUES(volume),
		turnover = VALUES(turnover),
		vwap = VALUES(vwap),
		delivery_quantity = VALUES(delivery_quantity),
		delivery_percentage = VALUES(delivery_percentage)
`

const upsertTrackerQuery = `
	INSERT INTO sync_tracker (
		instrument_id, data_type, last_sync_time, last_data_date,
		records_count, sync_status, error_message
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		last_sync_time = VALUES(last_sync_time),
		last_data_date = VALUES(last_data_date),
		records_count = VALUES(records_count),
		sync_status = VALUES(sync_status),
		error_message = VALUES(error_message),
		updated_at = CURRENT_TIMESTAMP
`

// ApplyIncremental upserts the given bars and the tracker row for one
// instrument in a single transaction. Existing rows for a date are
// overwritten, never duplicated.
func (mc *MySQLClient) ApplyIncremental(ctx context.Context, instrumentID int, bars []models.DailyBar, tracker *models.SyncTracker) (int, error) {
	err := mc.ExecTx(ctx, func(tx *sql.Tx) error {
		for i := range bars {
			if err := upsertBar(ctx, tx, instrumentID, &bars[i]); err != nil {
				return err
			}
		}
		return upsertTracker(ctx, tx, tracker)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to apply incremental sync: %w", err)
	}

	mc.logger.WithFields(logrus.Fields{
		"instrument_id": instrumentID,
		"bars":          len(bars),
	}).Debug("Applied incremental sync")

	return len(bars), nil
}

// ApplyRebuild deletes all bars for the instrument, inserts the fresh
// history and writes the tracker row, all in one transaction.
func (mc *MySQLClient) ApplyRebuild(ctx context.Context, instrumentID int, bars []models.DailyBar, tracker *models.SyncTracker) (int, error) {
	var deleted int64
	err := mc.ExecTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM daily_prices WHERE instrument_id = ?", instrumentID)
		if err != nil {
			return fmt.Errorf("failed to delete bars: %w", err)
		}
		deleted, _ = res.RowsAffected()

		for i := range bars {
			if err := upsertBar(ctx, tx, instrumentID, &bars[i]); err != nil {
				return err
			}
		}
		return upsertTracker(ctx, tx, tracker)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to apply rebuild: %w", err)
	}

	mc.logger.WithFields(logrus.Fields{
		"instrument_id": instrumentID,
		"deleted":       deleted,
		"inserted":      len(bars),
	}).Info("Rebuilt instrument history")

	return len(bars), nil
}

func upsertBar(ctx context.Context, tx *sql.Tx, instrumentID int, bar *models.DailyBar) error {
	_, err := tx.ExecContext(ctx, upsertBarQuery,
		instrumentID,
		bar.Date.Format("2006-01-02"),
		bar.Open,
		bar.High,
		bar.Low,
		bar.Close,
		bar.Volume,
		bar.Turnover,
		bar.VWAP,
		bar.DeliveryQty,
		bar.DeliveryPct,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert bar for %s: %w", bar.DateKey(), err)
	}
	return nil
}

func upsertTracker(ctx context.Context, tx *sql.Tx, tracker *models.SyncTracker) error {
	var lastDataDate interface{}
	if tracker.LastDataDate != nil {
		lastDataDate = tracker.LastDataDate.Format("2006-01-02")
	}

	_, err := tx.ExecContext(ctx, upsertTrackerQuery,
		tracker.InstrumentID,
		tracker.DataType,
		tracker.LastSyncTime,
		lastDataDate,
		tracker.RecordsCount,
		tracker.Status,
		sql.NullString{String: tracker.ErrorMessage, Valid: tracker.ErrorMessage != ""},
	)
	if err != nil {
		return fmt.Errorf("failed to upsert tracker: %w", err)
	}
	return nil
}

// Tracker operations

// GetTracker retrieves the tracker row for an (instrument, data type)
// pair, or nil when no sync has been attempted yet.
func (mc *MySQLClient) GetTracker(ctx context.Context, instrumentID int, dataType string) (*models.SyncTracker, error) {
	query := `
		SELECT id, instrument_id, data_type, last_sync_time, last_data_date,
		       records_count, sync_status, COALESCE(error_message, ''), created_at, updated_at
		FROM sync_tracker
		WHERE instrument_id = ? AND data_type = ?
	`

	tracker := &models.SyncTracker{}
	err := mc.db.QueryRowContext(ctx, query, instrumentID, dataType).Scan(
		&tracker.ID,
		&tracker.InstrumentID,
		&tracker.DataType,
		&tracker.LastSyncTime,
		&tracker.LastDataDate,
		&tracker.RecordsCount,
		&tracker.Status,
		&tracker.ErrorMessage,
		&tracker.CreatedAt,
		&tracker.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tracker: %w", err)
	}

	return tracker, nil
}

// UpsertTracker writes a tracker row outside a bar transaction, used for
// noop refreshes and failure records.
func (mc *MySQLClient) UpsertTracker(ctx context.Context, tracker *models.SyncTracker) error {
	return mc.ExecTx(ctx, func(tx *sql.Tx) error {
		return upsertTracker(ctx, tx, tracker)
	})
}

// GetTrackers retrieves all tracker rows of a data type joined with
// their instrument symbols, ordered by symbol.
func (mc *MySQLClient) GetTrackers(ctx context.Context, dataType string) ([]*models.SyncTracker, error) {
	query := `
		SELECT t.id, t.instrument_id, t.data_type, t.last_sync_time, t.last_data_date,
		       t.records_count, t.sync_status, COALESCE(t.error_message, ''),
		       t.created_at, t.updated_at, COALESCE(i.nse_symbol, i.bse_symbol, '')
		FROM sync_tracker t
		JOIN instruments i ON i.id = t.instrument_id
		WHERE t.data_type = ?
		ORDER BY i.nse_symbol
	`

	rows, err := mc.db.QueryContext(ctx, query, dataType)
	if err != nil {
		return nil, fmt.Errorf("failed to query trackers: %w", err)
	}
	defer rows.Close()

	var trackers []*models.SyncTracker
	for rows.Next() {
		tracker := &models.SyncTracker{}
		err := rows.Scan(
			&tracker.ID,
			&tracker.InstrumentID,
			&tracker.DataType,
			&tracker.LastSyncTime,
			&tracker.LastDataDate,
			&tracker.RecordsCount,
			&tracker.Status,
			&tracker.ErrorMessage,
			&tracker.CreatedAt,
			&tracker.UpdatedAt,
			&tracker.Symbol,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracker: %w", err)
		}
		trackers = append(trackers, tracker)
	}

	return trackers, rows.Err()
}

// Transaction support

// ExecTx executes a function within a transaction
func (mc *MySQLClient) ExecTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := mc.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}
