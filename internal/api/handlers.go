package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/stock-sync/internal/services"
	"github.com/stock-sync/pkg/models"
)

// syncRunRequest is the optional JSON body of POST /api/v1/sync/run
type syncRunRequest struct {
	Symbol       string `json:"symbol,omitempty"`
	ValidateOnly bool   `json:"validate_only,omitempty"`
}

// handleHealth reports dependency health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	code := http.StatusOK

	if err := s.mysqlDB.Health(ctx); err != nil {
		status["status"] = "degraded"
		status["mysql"] = err.Error()
		code = http.StatusServiceUnavailable
	}

	if s.redisCache != nil {
		if err := s.redisCache.Health(ctx); err != nil {
			status["redis"] = err.Error()
		}
	}

	writeJSON(w, code, status)
}

// handleSyncStatus returns all tracker rows for the daily OHLCV data type
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	trackers, err := s.mysqlDB.GetTrackers(r.Context(), models.DataTypeDailyOHLCV)
	if err != nil {
		s.log.WithError(err).Error("Failed to read sync trackers")
		writeError(w, http.StatusInternalServerError, "failed to read sync status")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(trackers),
		"trackers": trackers,
	})
}

// handleSymbolStatus returns the latest sync state for one symbol,
// serving the cached result when available.
func (s *Server) handleSymbolStatus(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	if s.redisCache != nil {
		if result, err := s.redisCache.GetSyncStatus(r.Context(), symbol); err == nil && result != nil {
			writeJSON(w, http.StatusOK, result)
			return
		}
	}

	inst, err := s.mysqlDB.GetInstrumentBySymbol(r.Context(), symbol)
	if err != nil {
		s.log.WithError(err).Error("Failed to look up instrument")
		writeError(w, http.StatusInternalServerError, "failed to look up instrument")
		return
	}
	if inst == nil {
		writeError(w, http.StatusNotFound, "instrument not found")
		return
	}

	tracker, err := s.mysqlDB.GetTracker(r.Context(), inst.ID, models.DataTypeDailyOHLCV)
	if err != nil {
		s.log.WithError(err).Error("Failed to read tracker")
		writeError(w, http.StatusInternalServerError, "failed to read sync status")
		return
	}
	if tracker == nil {
		writeError(w, http.StatusNotFound, "no sync recorded for instrument")
		return
	}

	tracker.Symbol = inst.Symbol()
	writeJSON(w, http.StatusOK, tracker)
}

// handleSyncRun triggers a batch run asynchronously. The Runner itself
// enforces that only one run, scheduled or triggered, is in flight.
func (s *Server) handleSyncRun(w http.ResponseWriter, r *http.Request) {
	var req syncRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if s.runner.Running() {
		writeError(w, http.StatusConflict, "a sync run is already in progress")
		return
	}

	go func() {
		summary, err := s.runner.Run(context.Background(), services.RunOptions{
			Symbol:       req.Symbol,
			ValidateOnly: req.ValidateOnly,
		})
		if err != nil {
			if errors.Is(err, services.ErrRunInProgress) {
				s.log.Warn("Triggered sync run skipped, another run is in progress")
			} else {
				s.log.WithError(err).Error("Triggered sync run failed to start")
			}
			return
		}

		if s.redisCache != nil {
			if err := s.redisCache.SetLastRunSummary(context.Background(), summary); err != nil {
				s.log.WithError(err).Warn("Failed to cache run summary")
			}
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":       "sync run started",
		"symbol":        req.Symbol,
		"validate_only": req.ValidateOnly,
	})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
