package services_test

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stock-sync/internal/services"
	"github.com/stock-sync/pkg/config"
	"github.com/stock-sync/pkg/models"
)

// mockStore is an in-memory Store with per-method error injection.
type mockStore struct {
	instruments []*models.Instrument
	bars        map[int][]models.DailyBar
	trackers    map[int]*models.SyncTracker

	instrumentsErr error
	latestErr      error
	countErr       error
	upsertErr      error
	applyIncErr    error
	applyRebErr    error

	incrementalCalls int
	rebuildCalls     int
	upsertCalls      int
}

func newMockStore(instruments ...*models.Instrument) *mockStore {
	return &mockStore{
		instruments: instruments,
		bars:        make(map[int][]models.DailyBar),
		trackers:    make(map[int]*models.SyncTracker),
	}
}

func (m *mockStore) GetInstruments(ctx context.Context) ([]*models.Instrument, error) {
	if m.instrumentsErr != nil {
		return nil, m.instrumentsErr
	}
	return m.instruments, nil
}

func (m *mockStore) GetInstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error) {
	if m.instrumentsErr != nil {
		return nil, m.instrumentsErr
	}
	for _, inst := range m.instruments {
		if inst.NSESymbol == symbol || inst.BSESymbol == symbol {
			return inst, nil
		}
	}
	return nil, nil
}

func (m *mockStore) GetLatestBar(ctx context.Context, instrumentID int) (*models.DailyBar, error) {
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	bars := m.bars[instrumentID]
	if len(bars) == 0 {
		return nil, nil
	}
	latest := bars[len(bars)-1]
	return &latest, nil
}

func (m *mockStore) CountBars(ctx context.Context, instrumentID int) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return len(m.bars[instrumentID]), nil
}

func (m *mockStore) GetTracker(ctx context.Context, instrumentID int, dataType string) (*models.SyncTracker, error) {
	return m.trackers[instrumentID], nil
}

func (m *mockStore) UpsertTracker(ctx context.Context, tracker *models.SyncTracker) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upsertCalls++
	m.trackers[tracker.InstrumentID] = tracker
	return nil
}

func (m *mockStore) ApplyIncremental(ctx context.Context, instrumentID int, bars []models.DailyBar, tracker *models.SyncTracker) (int, error) {
	if m.applyIncErr != nil {
		return 0, m.applyIncErr
	}
	m.incrementalCalls++
	for _, bar := range bars {
		m.putBar(instrumentID, bar)
	}
	m.trackers[instrumentID] = tracker
	return len(bars), nil
}

func (m *mockStore) ApplyRebuild(ctx context.Context, instrumentID int, bars []models.DailyBar, tracker *models.SyncTracker) (int, error) {
	if m.applyRebErr != nil {
		return 0, m.applyRebErr
	}
	m.rebuildCalls++
	m.bars[instrumentID] = nil
	for _, bar := range bars {
		m.putBar(instrumentID, bar)
	}
	m.trackers[instrumentID] = tracker
	return len(bars), nil
}

func (m *mockStore) putBar(instrumentID int, bar models.DailyBar) {
	bars := m.bars[instrumentID]
	for i := range bars {
		if models.SameDate(bars[i].Date, bar.Date) {
			bars[i] = bar
			m.bars[instrumentID] = bars
			return
		}
	}
	bars = append(bars, bar)
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	m.bars[instrumentID] = bars
}

type fetchCall struct {
	symbol string
	start  time.Time
	end    time.Time
}

// mockProvider dispatches fetches to a test-supplied function.
type mockProvider struct {
	fetch func(symbol string, start, end time.Time) ([]models.DailyBar, error)
	calls []fetchCall
}

func (m *mockProvider) FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyBar, error) {
	m.calls = append(m.calls, fetchCall{symbol: symbol, start: start, end: end})
	return m.fetch(symbol, start, end)
}

type spyCache struct {
	statuses map[string]*models.SyncResult
}

func newSpyCache() *spyCache {
	return &spyCache{statuses: make(map[string]*models.SyncResult)}
}

func (c *spyCache) SetSyncStatus(ctx context.Context, symbol string, result *models.SyncResult) error {
	c.statuses[symbol] = result
	return nil
}

type spyPublisher struct {
	results   []*models.SyncResult
	summaries []*models.RunSummary
}

func (p *spyPublisher) PublishSyncResult(result *models.SyncResult) error {
	p.results = append(p.results, result)
	return nil
}

func (p *spyPublisher) PublishRunSummary(summary *models.RunSummary) error {
	p.summaries = append(p.summaries, summary)
	return nil
}

// testNow is the fixed engine clock used across the engine tests.
var testNow = time.Date(2025, 8, 15, 10, 30, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testSyncConfig() *config.SyncConfig {
	return &config.SyncConfig{
		Tolerance:   0.01,
		HistoryDays: 365,
	}
}

func newTestSyncer(store *mockStore, provider *mockProvider, cache services.StatusCache, events services.EventPublisher) *services.Syncer {
	syncer := services.NewSyncer(store, provider, cache, events, testSyncConfig(), testLogger())
	services.SetNow(syncer, func() time.Time { return testNow })
	return syncer
}

func testInstrument(id int, symbol string) *models.Instrument {
	return &models.Instrument{
		ID:        id,
		Name:      symbol + " Ltd",
		NSESymbol: symbol,
		IsActive:  true,
	}
}

// day returns midnight UTC n days before the fixed test clock.
func day(daysAgo int) time.Time {
	return models.DateOnly(testNow).AddDate(0, 0, -daysAgo)
}

func bar(date time.Time, open, high, low, close float64, volume int64) models.DailyBar {
	return models.DailyBar{
		Date:   date,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: volume,
	}
}

// barRange produces one flat-priced bar per day over [start, end].
func barRange(start, end time.Time, price float64) []models.DailyBar {
	var bars []models.DailyBar
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		bars = append(bars, bar(d, price, price, price, price, 1000))
	}
	return bars
}
