package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stock-sync/pkg/config"
)

// Scheduler runs the batch runner on a fixed interval as a background
// service, used by the server command. Cron remains the primary trigger
// in deployments that prefer it; this exists so a standalone server
// stays current without one.
type Scheduler struct {
	runner   *Runner
	logger   *logrus.Entry
	interval time.Duration

	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a new periodic sync scheduler
func NewScheduler(runner *Runner, cfg *config.SyncConfig, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		logger:   logger.WithField("component", "scheduler"),
		interval: cfg.ScheduleInterval,
		done:     make(chan struct{}),
	}
}

// Start starts the background schedule loop
func (s *Scheduler) Start(ctx context.Context) error {
	if s.running {
		return nil
	}

	s.running = true
	s.logger.WithField("interval", s.interval.String()).Info("Starting sync scheduler")

	s.wg.Add(1)
	go s.loop(ctx)

	return nil
}

// Stop stops the background schedule loop
func (s *Scheduler) Stop() error {
	if !s.running {
		return nil
	}

	s.logger.Info("Stopping sync scheduler")
	close(s.done)
	s.wg.Wait()
	s.running = false

	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if _, err := s.runner.Run(ctx, RunOptions{}); err != nil {
				if errors.Is(err, ErrRunInProgress) {
					s.logger.Warn("Previous sync run still in progress, skipping scheduled run")
				} else {
					s.logger.WithError(err).Error("Scheduled sync run failed to start")
				}
			}
		}
	}
}
