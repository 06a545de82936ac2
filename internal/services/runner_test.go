package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stock-sync/internal/provider"
	"github.com/stock-sync/internal/services"
	"github.com/stock-sync/pkg/models"
)

func newTestRunner(store *mockStore, prov *mockProvider, events services.EventPublisher) *services.Runner {
	syncer := services.NewSyncer(store, prov, nil, events, testSyncConfig(), testLogger())
	services.SetNow(syncer, func() time.Time { return testNow })
	return services.NewRunner(syncer, store, events, testSyncConfig(), testLogger())
}

func TestRunIsolatesInstrumentFailures(t *testing.T) {
	store := newMockStore(
		testInstrument(1, "RELIANCE"),
		testInstrument(2, "BROKEN"),
		testInstrument(3, "TCS"),
	)

	prov := &mockProvider{
		fetch: func(symbol string, start, end time.Time) ([]models.DailyBar, error) {
			if symbol == "BROKEN" {
				return nil, provider.ErrProviderUnavailable
			}
			return barRange(start, end, 100), nil
		},
	}
	events := &spyPublisher{}

	summary, err := newTestRunner(store, prov, events).Run(context.Background(), services.RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Total != 3 {
		t.Errorf("total = %d, want 3", summary.Total)
	}
	if summary.Succeeded != 2 || summary.Failed != 1 {
		t.Errorf("succeeded/failed = %d/%d, want 2/1", summary.Succeeded, summary.Failed)
	}
	if summary.Rebuilt != 2 {
		t.Errorf("rebuilt = %d, want 2", summary.Rebuilt)
	}
	if len(summary.Results) != 3 {
		t.Errorf("results = %d, want 3", len(summary.Results))
	}

	// The failing instrument must not block the ones after it.
	if got := len(store.bars[3]); got == 0 {
		t.Error("expected instrument after the failure to be synced")
	}

	if len(events.summaries) != 1 {
		t.Errorf("published summaries = %d, want 1", len(events.summaries))
	}
}

func TestRunSymbolFilter(t *testing.T) {
	store := newMockStore(
		testInstrument(1, "RELIANCE"),
		testInstrument(2, "TCS"),
	)

	prov := &mockProvider{
		fetch: func(symbol string, start, end time.Time) ([]models.DailyBar, error) {
			return barRange(start, end, 100), nil
		},
	}

	summary, err := newTestRunner(store, prov, nil).Run(context.Background(), services.RunOptions{Symbol: "TCS"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Total != 1 {
		t.Errorf("total = %d, want 1", summary.Total)
	}
	if len(summary.Results) != 1 || summary.Results[0].Symbol != "TCS" {
		t.Fatalf("results = %+v, want only TCS", summary.Results)
	}
	if len(store.bars[1]) != 0 {
		t.Error("unfiltered instrument must not be touched")
	}
}

func TestRunUnknownSymbol(t *testing.T) {
	store := newMockStore(testInstrument(1, "RELIANCE"))

	prov := &mockProvider{
		fetch: func(symbol string, start, end time.Time) ([]models.DailyBar, error) {
			return nil, nil
		},
	}

	summary, err := newTestRunner(store, prov, nil).Run(context.Background(), services.RunOptions{Symbol: "NOSUCH"})
	if err == nil {
		t.Fatal("expected error for unknown symbol")
	}
	if summary != nil {
		t.Errorf("summary = %+v, want nil", summary)
	}
}

func TestRunUniverseReadFailure(t *testing.T) {
	store := newMockStore()
	store.instrumentsErr = errors.New("connection refused")

	prov := &mockProvider{
		fetch: func(symbol string, start, end time.Time) ([]models.DailyBar, error) {
			return nil, nil
		},
	}

	if _, err := newTestRunner(store, prov, nil).Run(context.Background(), services.RunOptions{}); err == nil {
		t.Fatal("expected error when the instrument universe cannot be read")
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	store := newMockStore(testInstrument(1, "RELIANCE"))

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	prov := &mockProvider{
		fetch: func(symbol string, start, end time.Time) ([]models.DailyBar, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return barRange(start, end, 100), nil
		},
	}

	runner := newTestRunner(store, prov, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := runner.Run(context.Background(), services.RunOptions{}); err != nil {
			t.Errorf("first Run() error = %v", err)
		}
	}()

	<-started
	if !runner.Running() {
		t.Error("Running() = false while a batch is in flight")
	}

	// A second batch, scheduled or triggered, must be refused while the
	// first holds the run.
	if _, err := runner.Run(context.Background(), services.RunOptions{}); !errors.Is(err, services.ErrRunInProgress) {
		t.Errorf("concurrent Run() error = %v, want %v", err, services.ErrRunInProgress)
	}

	close(release)
	<-done

	if runner.Running() {
		t.Error("Running() = true after the batch finished")
	}
	if _, err := runner.Run(context.Background(), services.RunOptions{}); err != nil {
		t.Errorf("follow-up Run() error = %v, want the slot released", err)
	}
}

func TestRunValidateOnlySummary(t *testing.T) {
	store := newMockStore(
		testInstrument(1, "RELIANCE"),
		testInstrument(2, "TCS"),
	)
	store.putBar(1, bar(day(0), 100, 100, 100, 100, 1000))

	prov := &mockProvider{
		fetch: func(symbol string, start, end time.Time) ([]models.DailyBar, error) {
			return barRange(start, end, 100), nil
		},
	}

	summary, err := newTestRunner(store, prov, nil).Run(context.Background(), services.RunOptions{ValidateOnly: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !summary.DryRun {
		t.Error("expected dry run summary")
	}
	if summary.Noop != 1 || summary.Rebuilt != 1 {
		t.Errorf("noop/rebuilt = %d/%d, want 1/1", summary.Noop, summary.Rebuilt)
	}
	if store.rebuildCalls != 0 || store.incrementalCalls != 0 || store.upsertCalls != 0 {
		t.Error("dry run must not write to the store")
	}
}
