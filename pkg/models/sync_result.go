package models

import "time"

// SyncAction identifies which branch of the sync decision was taken
// for one instrument.
type SyncAction string

const (
	ActionNoop        SyncAction = "noop"
	ActionIncremental SyncAction = "incremental"
	ActionFullRebuild SyncAction = "full_rebuild"
	ActionFailed      SyncAction = "failed"
)

// Validation verdicts reported on a SyncResult.
const (
	ValidationMatch      = "match"
	ValidationMismatch   = "mismatch"
	ValidationNoBaseline = "no_baseline"
)

// SyncResult is the structured per-instrument outcome of one sync pass.
type SyncResult struct {
	Symbol        string     `json:"symbol"`
	Action        SyncAction `json:"action"`
	DryRun        bool       `json:"dry_run,omitempty"`
	Validation    string     `json:"validation,omitempty"`
	RecordsSynced int        `json:"records_synced"`
	LastDataDate  *time.Time `json:"last_data_date,omitempty"`
	Error         string     `json:"error,omitempty"`
	SyncedAt      time.Time  `json:"synced_at"`
}

// Succeeded reports whether the instrument completed the run without
// entering the failed state.
func (r *SyncResult) Succeeded() bool {
	return r.Action != ActionFailed
}

// RunSummary aggregates the per-instrument results of one batch run.
type RunSummary struct {
	Total       int          `json:"total"`
	Succeeded   int          `json:"succeeded"`
	Failed      int          `json:"failed"`
	Rebuilt     int          `json:"rebuilt"`
	Incremental int          `json:"incremental"`
	Noop        int          `json:"noop"`
	DryRun      bool         `json:"dry_run,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Results     []SyncResult `json:"results"`
}

// Add folds one instrument result into the summary counters.
func (s *RunSummary) Add(res *SyncResult) {
	s.Results = append(s.Results, *res)
	switch res.Action {
	case ActionFailed:
		s.Failed++
		return
	case ActionFullRebuild:
		s.Rebuilt++
	case ActionIncremental:
		s.Incremental++
	case ActionNoop:
		s.Noop++
	}
	s.Succeeded++
}
