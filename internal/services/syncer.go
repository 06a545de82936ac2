package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stock-sync/pkg/config"
	"github.com/stock-sync/pkg/models"
)

// Syncer decides and executes the sync action for one instrument at a
// time: nothing, an incremental append, or a full history rebuild. The
// decision hangs on a one-day validation fetch compared against the most
// recent persisted bar.
type Syncer struct {
	store    Store
	provider Provider
	cache    StatusCache
	events   EventPublisher
	logger   *logrus.Entry

	tolerance   float64
	historyDays int

	// now is injectable for tests
	now func() time.Time
}

// NewSyncer creates a new sync decision engine. cache and events may be
// nil; both are best-effort side channels.
func NewSyncer(store Store, provider Provider, cache StatusCache, events EventPublisher, cfg *config.SyncConfig, logger *logrus.Logger) *Syncer {
	return &Syncer{
		store:       store,
		provider:    provider,
		cache:       cache,
		events:      events,
		logger:      logger.WithField("component", "syncer"),
		tolerance:   cfg.Tolerance,
		historyDays: cfg.HistoryDays,
		now:         time.Now,
	}
}

// SyncInstrument runs the full decision sequence for one instrument.
// It never returns an error: provider and store failures are captured
// in the result and recorded on the tracker, so a batch can continue
// with the next instrument.
func (s *Syncer) SyncInstrument(ctx context.Context, inst *models.Instrument, validateOnly bool) *models.SyncResult {
	log := s.logger.WithField("symbol", inst.Symbol())
	res := &models.SyncResult{
		Symbol:   inst.Symbol(),
		DryRun:   validateOnly,
		SyncedAt: s.now(),
	}

	log.Info("Syncing daily OHLCV")

	latest, err := s.store.GetLatestBar(ctx, inst.ID)
	if err != nil {
		return s.fail(ctx, inst, res, log, fmt.Errorf("failed to read latest bar: %w", err))
	}

	if tracker, err := s.store.GetTracker(ctx, inst.ID, models.DataTypeDailyOHLCV); err == nil && tracker != nil {
		log.WithFields(logrus.Fields{
			"last_sync":   tracker.LastSyncTime.Format(time.RFC3339),
			"last_status": tracker.Status,
		}).Debug("Previous sync state")
	}

	today := models.DateOnly(s.now())

	if latest == nil {
		// Nothing to validate against; bootstrap the full window.
		res.Validation = models.ValidationNoBaseline
		log.Info("No persisted history, performing full rebuild")
		return s.rebuild(ctx, inst, res, log, today)
	}

	verdict, err := s.validateLatest(ctx, inst, latest, log)
	if err != nil {
		return s.fail(ctx, inst, res, log, err)
	}
	res.Validation = string(verdict)

	if verdict == VerdictMismatch {
		log.WithField("date", latest.DateKey()).Warn("Validation mismatch, rebuilding history")
		return s.rebuild(ctx, inst, res, log, today)
	}

	return s.incremental(ctx, inst, res, log, latest, today)
}

// validateLatest fetches the provider bar for the persisted latest date
// and compares within tolerance. A provider response with no bar for
// that date is ambiguous (market holiday, weekend) and treated as a
// match: absence of data is not evidence of drift.
func (s *Syncer) validateLatest(ctx context.Context, inst *models.Instrument, latest *models.DailyBar, log *logrus.Entry) (ValidationVerdict, error) {
	bars, err := s.provider.FetchDailyBars(ctx, inst.Symbol(), latest.Date, latest.Date)
	if err != nil {
		return "", fmt.Errorf("validation fetch failed: %w", err)
	}

	var providerBar *models.DailyBar
	for i := range bars {
		if models.SameDate(bars[i].Date, latest.Date) {
			providerBar = &bars[i]
			break
		}
	}

	if providerBar == nil {
		log.WithField("date", latest.DateKey()).Debug("No provider bar for validation date, treating as match")
		return VerdictMatch, nil
	}

	verdict := CompareBars(latest, providerBar, s.tolerance)
	if verdict == VerdictMismatch {
		log.WithFields(logrus.Fields{
			"date":           latest.DateKey(),
			"db_close":       latest.Close,
			"provider_close": providerBar.Close,
			"tolerance":      s.tolerance,
		}).Warn("Persisted bar drifted from provider")
	}

	return verdict, nil
}

// rebuild replaces the instrument's entire history with a fresh fetch of
// the trailing window. Delete and reinsert happen in one transaction
// together with the tracker row.
func (s *Syncer) rebuild(ctx context.Context, inst *models.Instrument, res *models.SyncResult, log *logrus.Entry, today time.Time) *models.SyncResult {
	res.Action = models.ActionFullRebuild
	if res.DryRun {
		return res
	}

	start := today.AddDate(0, 0, -s.historyDays)

	bars, err := s.provider.FetchDailyBars(ctx, inst.Symbol(), start, today)
	if err != nil {
		return s.fail(ctx, inst, res, log, fmt.Errorf("rebuild fetch failed: %w", err))
	}

	prevCount, err := s.store.CountBars(ctx, inst.ID)
	if err != nil {
		return s.fail(ctx, inst, res, log, fmt.Errorf("failed to count existing bars: %w", err))
	}

	if len(bars) == 0 && prevCount > 0 {
		// Refuse to wipe existing history against an empty response.
		return s.fail(ctx, inst, res, log, fmt.Errorf("provider returned no bars for rebuild window %s..%s",
			start.Format("2006-01-02"), today.Format("2006-01-02")))
	}

	status := models.SyncStatusSuccess
	if prevCount > 0 && len(bars) < prevCount {
		status = models.SyncStatusPartial
		log.WithFields(logrus.Fields{
			"previous": prevCount,
			"fetched":  len(bars),
		}).Warn("Rebuild returned fewer bars than previously persisted")
	}

	tracker := s.trackerRow(inst, lastBarDate(bars), len(bars), status, "")
	count, err := s.store.ApplyRebuild(ctx, inst.ID, bars, tracker)
	if err != nil {
		return s.fail(ctx, inst, res, log, fmt.Errorf("rebuild write failed: %w", err))
	}

	res.RecordsSynced = count
	res.LastDataDate = tracker.LastDataDate

	log.WithField("records", count).Info("Full rebuild completed")
	s.finish(ctx, res, log)
	return res
}

// incremental appends the days after the persisted tail, or does nothing
// when the store is already current.
func (s *Syncer) incremental(ctx context.Context, inst *models.Instrument, res *models.SyncResult, log *logrus.Entry, latest *models.DailyBar, today time.Time) *models.SyncResult {
	next := models.DateOnly(latest.Date).AddDate(0, 0, 1)

	if next.After(today) {
		res.Action = models.ActionNoop
		res.LastDataDate = &latest.Date
		if res.DryRun {
			return res
		}

		tracker := s.trackerRow(inst, &latest.Date, 0, models.SyncStatusSuccess, "")
		if err := s.store.UpsertTracker(ctx, tracker); err != nil {
			return s.fail(ctx, inst, res, log, fmt.Errorf("tracker write failed: %w", err))
		}

		log.Info("History already current")
		s.finish(ctx, res, log)
		return res
	}

	res.Action = models.ActionIncremental
	if res.DryRun {
		return res
	}

	bars, err := s.provider.FetchDailyBars(ctx, inst.Symbol(), next, today)
	if err != nil {
		return s.fail(ctx, inst, res, log, fmt.Errorf("incremental fetch failed: %w", err))
	}

	lastDate := latest.Date
	if d := lastBarDate(bars); d != nil && d.After(lastDate) {
		lastDate = *d
	}

	tracker := s.trackerRow(inst, &lastDate, len(bars), models.SyncStatusSuccess, "")
	count, err := s.store.ApplyIncremental(ctx, inst.ID, bars, tracker)
	if err != nil {
		return s.fail(ctx, inst, res, log, fmt.Errorf("incremental write failed: %w", err))
	}

	res.RecordsSynced = count
	res.LastDataDate = &lastDate

	log.WithField("records", count).Info("Incremental sync completed")
	s.finish(ctx, res, log)
	return res
}

// fail records a failed attempt on the tracker and finishes the result.
// Errors never escape the instrument boundary.
func (s *Syncer) fail(ctx context.Context, inst *models.Instrument, res *models.SyncResult, log *logrus.Entry, err error) *models.SyncResult {
	res.Action = models.ActionFailed
	res.Error = err.Error()

	log.WithError(err).Error("Sync failed")

	if !res.DryRun {
		tracker := s.trackerRow(inst, nil, 0, models.SyncStatusFailed, err.Error())
		if terr := s.store.UpsertTracker(ctx, tracker); terr != nil {
			log.WithError(terr).Warn("Failed to record sync failure on tracker")
		}
		s.finish(ctx, res, log)
	}

	return res
}

// finish mirrors the result to the status cache and event bus. Both are
// best-effort: a cache or bus outage must not fail a completed sync.
func (s *Syncer) finish(ctx context.Context, res *models.SyncResult, log *logrus.Entry) {
	if s.cache != nil {
		if err := s.cache.SetSyncStatus(ctx, res.Symbol, res); err != nil {
			log.WithError(err).Warn("Failed to cache sync status")
		}
	}
	if s.events != nil {
		if err := s.events.PublishSyncResult(res); err != nil {
			log.WithError(err).Warn("Failed to publish sync result")
		}
	}
}

func (s *Syncer) trackerRow(inst *models.Instrument, lastDataDate *time.Time, records int, status, errMsg string) *models.SyncTracker {
	return &models.SyncTracker{
		InstrumentID: inst.ID,
		DataType:     models.DataTypeDailyOHLCV,
		LastSyncTime: s.now().UTC(),
		LastDataDate: lastDataDate,
		RecordsCount: records,
		Status:       status,
		ErrorMessage: errMsg,
	}
}

func lastBarDate(bars []models.DailyBar) *time.Time {
	if len(bars) == 0 {
		return nil
	}
	d := bars[len(bars)-1].Date
	return &d
}
