package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stock-sync/internal/provider"
	"github.com/stock-sync/pkg/models"
)

func TestSyncInstrumentNoBaselineRebuilds(t *testing.T) {
	inst := testInstrument(1, "RELIANCE")
	store := newMockStore(inst)

	history := barRange(day(9), day(0), 100)
	prov := &mockProvider{
		fetch: func(symbol string, start, end time.Time) ([]models.DailyBar, error) {
			return history, nil
		},
	}
	cache := newSpyCache()
	events := &spyPublisher{}

	res := newTestSyncer(store, prov, cache, events).SyncInstrument(context.Background(), inst, false)

	if res.Action != models.ActionFullRebuild {
		t.Fatalf("action = %q, want %q", res.Action, models.ActionFullRebuild)
	}
	if res.Validation != models.ValidationNoBaseline {
		t.Errorf("validation = %q, want %q", res.Validation, models.ValidationNoBaseline)
	}
	if res.RecordsSynced != 10 {
		t.Errorf("records synced = %d, want 10", res.RecordsSynced)
	}
	if store.rebuildCalls != 1 {
		t.Errorf("rebuild calls = %d, want 1", store.rebuildCalls)
	}
	if got := len(store.bars[inst.ID]); got != 10 {
		t.Errorf("persisted bars = %d, want 10", got)
	}

	tracker := store.trackers[inst.ID]
	if tracker == nil {
		t.Fatal("expected tracker row to be written")
	}
	if tracker.Status != models.SyncStatusSuccess {
		t.Errorf("tracker status = %q, want %q", tracker.Status, models.SyncStatusSuccess)
	}
	if tracker.RecordsCount != 10 {
		t.Errorf("tracker records = %d, want 10", tracker.RecordsCount)
	}
	if tracker.LastDataDate == nil || !models.SameDate(*tracker.LastDataDate, day(0)) {
		t.Errorf("tracker last data date = %v, want %s", tracker.LastDataDate, day(0).Format("2006-01-02"))
	}

	if cache.statuses["RELIANCE"] == nil {
		t.Error("expected sync status to be cached")
	}
	if len(events.results) != 1 {
		t.Errorf("published results = %d, want 1", len(events.results))
	}
}

func TestSyncInstrumentMatchAppendsIncremental(t *testing.T) {
	inst := testInstrument(1, "TCS")
	store := newMockStore(inst)
	for _, b := range barRange(day(10), day(3), 100) {
		store.putBar(inst.ID, b)
	}

	prov := &mockProvider{
		fetch: func(symbol string, start, end time.Time) ([]models.DailyBar, error) {
			if models.SameDate(start, end) {
				return []models.DailyBar{bar(day(3), 100, 100, 100, 100, 1000)}, nil
			}
			return barRange(day(2), day(0), 101), nil
		},
	}

	res := newTestSyncer(store, prov, nil, nil).SyncInstrument(context.Background(), inst, false)

	if res.Action != models.ActionIncremental {
		t.Fatalf("action = %q, want %q", res.Action, models.ActionIncremental)
	}
	if res.Validation != models.ValidationMatch {
		t.Errorf("validation = %q, want %q", res.Validation, models.ValidationMatch)
	}
	if res.RecordsSynced != 3 {
		t.Errorf("records synced = %d, want 3", res.RecordsSynced)
	}
	if res.LastDataDate == nil || !models.SameDate(*res.LastDataDate, day(0)) {
		t.Errorf("last data date = %v, want today", res.LastDataDate)
	}
	if store.incrementalCalls != 1 || store.rebuildCalls != 0 {
		t.Errorf("incremental calls = %d, rebuild calls = %d, want 1 and 0",
			store.incrementalCalls, store.rebuildCalls)
	}
	if got := len(store.bars[inst.ID]); got != 11 {
		t.Errorf("persisted bars = %d, want 11", got)
	}

	// The incremental fetch must start the day after the persisted tail.
	if len(prov.calls) != 2 {
		t.Fatalf("provider calls = %d, want 2", len(prov.calls))
	}
	if !models.SameDate(prov.calls[1].start, day(2)) {
		t.Errorf("incremental fetch start = %s, want %s",
			prov.calls[1].start.Format("2006-01-02"), day(2).Format("2006-01-02"))
	}
}

func TestSyncInstrumentUpToDateIsNoop(t *testing.T) {
	inst := testInstrument(1, "INFY")
	store := newMockStore(inst)
	store.putBar(inst.ID, bar(day(0), 100, 100, 100, 100, 1000))

	prov := &mockProvider{
		fetch: func(symbol string, start, end time.Time) ([]models.DailyBar, error) {
			return []models.DailyBar{bar(day(0), 100, 100, 100, 100, 1000)}, nil
		},
	}

	res := newTestSyncer(store, prov, nil, nil).SyncInstrument(context.Background(), inst, false)

	if res.Action != models.ActionNoop {
		t.Fatalf("action = %q, want %q", res.Action, models.ActionNoop)
	}
	if res.RecordsSynced != 0 {
		t.Errorf("records synced = %d, want 0", res.RecordsSynced)
	}
	if len(prov.calls) != 1 {
		t.Errorf("provider calls = %d, want only the validation fetch", len(prov.calls))
	}

	// A noop still refreshes the tracker.
	tracker := store.trackers[inst.ID]
	if tracker == nil {
		t.Fatal("expected tracker row to be written")
	}
	if tracker.Status != models.SyncStatusSuccess || tracker.RecordsCount != 0 {
		t.Errorf("tracker = %q/%d, want success/0", tracker.Status, tracker.RecordsCount)
	}
}

func TestSyncInstrumentMismatchRebuildsHistory(t *testing.T) {
	inst := testInstrument(1, "HDFCBANK")
	store := newMockStore(inst)
	for _, b := range barRange(day(9), day(1), 100) {
		store.putBar(inst.ID, b)
	}

	rebuilt := barRange(day(9), day(0), 110)
	prov := &mockProvider{
		fetch: func(symbol string, start, end time.Time) ([]models.DailyBar, error) {
			if models.SameDate(start, end) {
				// Provider disagrees about the latest persisted close.
				return []models.DailyBar{bar(day(1), 110, 110, 110, 110, 1000)}, nil
			}
			return rebuilt, nil
		},
	}

	res := newTestSyncer(store, prov, nil, nil).SyncInstrument(context.Background(), inst, false)

	if res.Action != models.ActionFullRebuild {
		t.Fatalf("action = %q, want %q", res.Action, models.ActionFullRebuild)
	}
	if res.Validation != models.ValidationMismatch {
		t.Errorf("validation = %q, want %q", res.Validation, models.ValidationMismatch)
	}
	if store.rebuildCalls != 1 {
		t.Errorf("rebuild calls = %d, want 1", store.rebuildCalls)
	}
	if got := len(store.bars[inst.ID]); got != 10 {
		t.Errorf("persisted bars = %d, want 10", got)
	}
	for _, b := range store.bars[inst.ID] {
		if b.Close != 110 {
			t.Fatalf("bar %s close = %v, want rebuilt value 110", b.DateKey(), b.Close)
		}
	}

	// The rebuild fetch covers the full trailing window ending today.
	last := prov.calls[len(prov.calls)-1]
	if !models.SameDate(last.start, day(365)) || !models.SameDate(last.end, day(0)) {
		t.Errorf("rebuild window = %s..%s, want %s..%s",
			last.start.Format("2006-01-02"), last.end.Format("2006-01-02"),
			day(365).Format("2006-01-02"), day(0).Format("2006-01-02"))
	}
}

func TestSyncInstrumentEmptyValidationTreatedAsMatch(t *testing.T) {
	inst := testInstrument(1, "WIPRO")
	store := newMockStore(inst)
	store.putBar(inst.ID, bar(day(2), 100, 100, 100, 100, 1000))

	prov := &mockProvider{
		fetch: func(symbol string, start, end time.Time) ([]models.DailyBar, error) {
			if models.SameDate(start, end) {
				// Holiday on the validation date.
				return []models.DailyBar{}, nil
			}
			return barRange(day(1), day(0), 100), nil
		},
	}

	res := newTestSyncer(store, prov, nil, nil).SyncInstrument(context.Background(), inst, false)

	if res.Action != models.ActionIncremental {
		t.Fatalf("action = %q, want %q", res.Action, models.ActionIncremental)
	}
	if res.Validation != models.ValidationMatch {
		t.Errorf("validation = %q, want %q", res.Validation, models.ValidationMatch)
	}
}

func TestSyncInstrumentValidateOnlySkipsAllWrites(t *testing.T) {
	inst := testInstrument(1, "SBIN")
	store := newMockStore(inst)
	store.putBar(inst.ID, bar(day(1), 100, 100, 100, 100, 1000))

	prov := &mockProvider{
		fetch: func(symbol string, start, end time.Time) ([]models.DailyBar, error) {
			return []models.DailyBar{bar(day(1), 110, 110, 110, 110, 1000)}, nil
		},
	}
	cache := newSpyCache()
	events := &spyPublisher{}

	res := newTestSyncer(store, prov, cache, events).SyncInstrument(context.Background(), inst, true)

	if !res.DryRun {
		t.Error("expected dry run result")
	}
	if res.Action != models.ActionFullRebuild {
		t.Fatalf("action = %q, want %q", res.Action, models.ActionFullRebuild)
	}
	if res.Validation != models.ValidationMismatch {
		t.Errorf("validation = %q, want %q", res.Validation, models.ValidationMismatch)
	}

	if store.rebuildCalls != 0 || store.incrementalCalls != 0 || store.upsertCalls != 0 {
		t.Errorf("store writes = %d/%d/%d, want none",
			store.rebuildCalls, store.incrementalCalls, store.upsertCalls)
	}
	if len(prov.calls) != 1 {
		t.Errorf("provider calls = %d, want only the validation fetch", len(prov.calls))
	}
	if len(cache.statuses) != 0 || len(events.results) != 0 {
		t.Error("dry run must not touch the cache or event bus")
	}
}

func TestSyncInstrumentProviderFailureRecordsTracker(t *testing.T) {
	inst := testInstrument(1, "ONGC")
	store := newMockStore(inst)
	store.putBar(inst.ID, bar(day(1), 100, 100, 100, 100, 1000))

	prov := &mockProvider{
		fetch: func(symbol string, start, end time.Time) ([]models.DailyBar, error) {
			return nil, provider.ErrProviderUnavailable
		},
	}
	cache := newSpyCache()
	events := &spyPublisher{}

	res := newTestSyncer(store, prov, cache, events).SyncInstrument(context.Background(), inst, false)

	if res.Action != models.ActionFailed {
		t.Fatalf("action = %q, want %q", res.Action, models.ActionFailed)
	}
	if res.Error == "" {
		t.Error("expected error message on result")
	}
	if res.Succeeded() {
		t.Error("failed result must not report success")
	}

	tracker := store.trackers[inst.ID]
	if tracker == nil {
		t.Fatal("expected failed tracker row to be written")
	}
	if tracker.Status != models.SyncStatusFailed {
		t.Errorf("tracker status = %q, want %q", tracker.Status, models.SyncStatusFailed)
	}
	if tracker.LastDataDate != nil || tracker.RecordsCount != 0 {
		t.Errorf("failed tracker = %v/%d, want nil date and 0 records",
			tracker.LastDataDate, tracker.RecordsCount)
	}
	if tracker.ErrorMessage == "" {
		t.Error("expected error message on tracker")
	}

	// Failures are still mirrored to the side channels.
	if cache.statuses["ONGC"] == nil || len(events.results) != 1 {
		t.Error("expected failed result on cache and event bus")
	}
}

func TestSyncInstrumentRefusesEmptyRebuild(t *testing.T) {
	inst := testInstrument(1, "ITC")
	store := newMockStore(inst)
	for _, b := range barRange(day(9), day(1), 100) {
		store.putBar(inst.ID, b)
	}

	prov := &mockProvider{
		fetch: func(symbol string, start, end time.Time) ([]models.DailyBar, error) {
			if models.SameDate(start, end) {
				return []models.DailyBar{bar(day(1), 110, 110, 110, 110, 1000)}, nil
			}
			return []models.DailyBar{}, nil
		},
	}

	res := newTestSyncer(store, prov, nil, nil).SyncInstrument(context.Background(), inst, false)

	if res.Action != models.ActionFailed {
		t.Fatalf("action = %q, want %q", res.Action, models.ActionFailed)
	}
	if store.rebuildCalls != 0 {
		t.Errorf("rebuild calls = %d, want 0", store.rebuildCalls)
	}
	if got := len(store.bars[inst.ID]); got != 9 {
		t.Errorf("persisted bars = %d, want untouched 9", got)
	}
}

func TestSyncInstrumentEmptyBootstrapSucceeds(t *testing.T) {
	inst := testInstrument(1, "NEWIPO")
	store := newMockStore(inst)

	prov := &mockProvider{
		fetch: func(symbol string, start, end time.Time) ([]models.DailyBar, error) {
			return []models.DailyBar{}, nil
		},
	}

	res := newTestSyncer(store, prov, nil, nil).SyncInstrument(context.Background(), inst, false)

	if res.Action != models.ActionFullRebuild {
		t.Fatalf("action = %q, want %q", res.Action, models.ActionFullRebuild)
	}
	if !res.Succeeded() {
		t.Error("empty bootstrap with no prior history must succeed")
	}
	if res.RecordsSynced != 0 {
		t.Errorf("records synced = %d, want 0", res.RecordsSynced)
	}
	if store.rebuildCalls != 1 {
		t.Errorf("rebuild calls = %d, want 1", store.rebuildCalls)
	}
}

func TestSyncInstrumentShrunkenRebuildIsPartial(t *testing.T) {
	inst := testInstrument(1, "VEDL")
	store := newMockStore(inst)
	for _, b := range barRange(day(10), day(1), 100) {
		store.putBar(inst.ID, b)
	}

	prov := &mockProvider{
		fetch: func(symbol string, start, end time.Time) ([]models.DailyBar, error) {
			if models.SameDate(start, end) {
				return []models.DailyBar{bar(day(1), 110, 110, 110, 110, 1000)}, nil
			}
			return barRange(day(3), day(0), 110), nil
		},
	}

	res := newTestSyncer(store, prov, nil, nil).SyncInstrument(context.Background(), inst, false)

	if res.Action != models.ActionFullRebuild {
		t.Fatalf("action = %q, want %q", res.Action, models.ActionFullRebuild)
	}
	if !res.Succeeded() {
		t.Error("partial rebuild still counts as a completed sync")
	}

	tracker := store.trackers[inst.ID]
	if tracker == nil {
		t.Fatal("expected tracker row to be written")
	}
	if tracker.Status != models.SyncStatusPartial {
		t.Errorf("tracker status = %q, want %q", tracker.Status, models.SyncStatusPartial)
	}
}

func TestSyncInstrumentRepeatRunIsIdempotent(t *testing.T) {
	inst := testInstrument(1, "LT")
	store := newMockStore(inst)
	for _, b := range barRange(day(10), day(3), 100) {
		store.putBar(inst.ID, b)
	}

	prov := &mockProvider{
		fetch: func(symbol string, start, end time.Time) ([]models.DailyBar, error) {
			if models.SameDate(start, end) {
				return []models.DailyBar{bar(start, 100, 100, 100, 100, 1000)}, nil
			}
			return barRange(start, end, 100), nil
		},
	}

	syncer := newTestSyncer(store, prov, nil, nil)

	first := syncer.SyncInstrument(context.Background(), inst, false)
	if first.Action != models.ActionIncremental {
		t.Fatalf("first action = %q, want %q", first.Action, models.ActionIncremental)
	}
	countAfterFirst := len(store.bars[inst.ID])

	second := syncer.SyncInstrument(context.Background(), inst, false)
	if second.Action != models.ActionNoop {
		t.Fatalf("second action = %q, want %q", second.Action, models.ActionNoop)
	}
	if got := len(store.bars[inst.ID]); got != countAfterFirst {
		t.Errorf("persisted bars = %d after repeat, want unchanged %d", got, countAfterFirst)
	}
}

func TestSyncInstrumentStoreReadFailure(t *testing.T) {
	inst := testInstrument(1, "TATASTEEL")
	store := newMockStore(inst)
	store.latestErr = errors.New("connection reset")

	prov := &mockProvider{
		fetch: func(symbol string, start, end time.Time) ([]models.DailyBar, error) {
			t.Fatal("provider must not be called when the store read fails")
			return nil, nil
		},
	}

	res := newTestSyncer(store, prov, nil, nil).SyncInstrument(context.Background(), inst, false)

	if res.Action != models.ActionFailed {
		t.Fatalf("action = %q, want %q", res.Action, models.ActionFailed)
	}
}
