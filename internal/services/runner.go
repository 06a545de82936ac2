package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stock-sync/pkg/config"
	"github.com/stock-sync/pkg/models"
)

// ErrRunInProgress is returned by Run when another batch is already in
// flight on the same Runner.
var ErrRunInProgress = errors.New("a sync run is already in progress")

// Runner iterates the instrument universe and invokes the sync engine
// per instrument, isolating failures and aggregating a run summary.
// At most one batch runs at a time: the engine assumes a single writer
// per instrument, so scheduled and triggered runs must not overlap.
type Runner struct {
	syncer *Syncer
	store  Store
	events EventPublisher
	logger *logrus.Entry
	delay  time.Duration

	mu     sync.Mutex
	active bool
}

// RunOptions controls one batch run.
type RunOptions struct {
	// Symbol restricts the run to a single instrument when non-empty.
	Symbol string
	// ValidateOnly reports what each instrument would do without
	// mutating bars or tracker rows.
	ValidateOnly bool
}

// NewRunner creates a new batch runner. events may be nil.
func NewRunner(syncer *Syncer, store Store, events EventPublisher, cfg *config.SyncConfig, logger *logrus.Logger) *Runner {
	return &Runner{
		syncer: syncer,
		store:  store,
		events: events,
		logger: logger.WithField("component", "runner"),
		delay:  cfg.InstrumentDelay,
	}
}

// Running reports whether a batch is currently in flight.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Run executes one batch. Individual instrument failures never abort
// the batch; the only error conditions are a concurrent run, an
// unreadable instrument universe, an unknown symbol filter, or
// cancellation.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*models.RunSummary, error) {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return nil, ErrRunInProgress
	}
	r.active = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.active = false
		r.mu.Unlock()
	}()

	instruments, err := r.resolveInstruments(ctx, opts)
	if err != nil {
		return nil, err
	}

	summary := &models.RunSummary{
		Total:     len(instruments),
		DryRun:    opts.ValidateOnly,
		StartedAt: time.Now(),
	}

	r.logger.WithFields(logrus.Fields{
		"instruments":   summary.Total,
		"validate_only": opts.ValidateOnly,
	}).Info("Starting sync run")

	for i, inst := range instruments {
		res := r.syncer.SyncInstrument(ctx, inst, opts.ValidateOnly)
		summary.Add(res)

		r.logger.WithFields(logrus.Fields{
			"progress": fmt.Sprintf("%d/%d", i+1, summary.Total),
			"symbol":   res.Symbol,
			"action":   res.Action,
			"records":  res.RecordsSynced,
		}).Info("Instrument processed")

		// Provider-friendly spacing between instruments, not between
		// the calls within one instrument's sequence.
		if i < len(instruments)-1 && r.delay > 0 {
			select {
			case <-ctx.Done():
				summary.FinishedAt = time.Now()
				return summary, ctx.Err()
			case <-time.After(r.delay):
			}
		}
	}

	summary.FinishedAt = time.Now()

	r.logger.WithFields(logrus.Fields{
		"total":       summary.Total,
		"succeeded":   summary.Succeeded,
		"failed":      summary.Failed,
		"rebuilt":     summary.Rebuilt,
		"incremental": summary.Incremental,
		"noop":        summary.Noop,
		"duration":    summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond).String(),
	}).Info("Sync run completed")

	if r.events != nil {
		if err := r.events.PublishRunSummary(summary); err != nil {
			r.logger.WithError(err).Warn("Failed to publish run summary")
		}
	}

	return summary, nil
}

func (r *Runner) resolveInstruments(ctx context.Context, opts RunOptions) ([]*models.Instrument, error) {
	if opts.Symbol != "" {
		inst, err := r.store.GetInstrumentBySymbol(ctx, opts.Symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to look up instrument %s: %w", opts.Symbol, err)
		}
		if inst == nil {
			return nil, fmt.Errorf("instrument %s not found", opts.Symbol)
		}
		return []*models.Instrument{inst}, nil
	}

	instruments, err := r.store.GetInstruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read instrument universe: %w", err)
	}
	return instruments, nil
}
