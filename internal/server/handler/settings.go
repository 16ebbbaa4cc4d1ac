package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/polymathbot/polymath/internal/scanner"
)

// SettingsHandler reads and updates the runtime scan settings. Updates are
// partial: only the fields present in the request body change, and the new
// values take effect at the start of the next scan cycle.
type SettingsHandler struct {
	scanner  *scanner.Scanner
	tradable bool
	logger   *slog.Logger
}

// NewSettingsHandler creates a SettingsHandler. tradable reports whether
// the process runs in trade mode; when false, enabling auto-execution is
// rejected because the guard has no order placers to act with.
func NewSettingsHandler(s *scanner.Scanner, tradable bool, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		scanner:  s,
		tradable: tradable,
		logger:   logHandler(logger, "settings"),
	}
}

// settingsPayload is the wire form of scanner.Settings. Durations are
// expressed in seconds, and every field is optional so clients can patch a
// single knob.
type settingsPayload struct {
	ScanIntervalSeconds *float64 `json:"scan_interval_seconds,omitempty"`
	MinProfitCents      *float64 `json:"min_profit_cents,omitempty"`
	MatchThreshold      *float64 `json:"match_threshold,omitempty"`
	AutoExecute         *bool    `json:"auto_execute,omitempty"`
	MaxPositionUSD      *float64 `json:"max_position_usd,omitempty"`
}

func toPayload(s scanner.Settings) settingsPayload {
	interval := s.ScanInterval.Seconds()
	return settingsPayload{
		ScanIntervalSeconds: &interval,
		MinProfitCents:      &s.MinProfitCents,
		MatchThreshold:      &s.MatchThreshold,
		AutoExecute:         &s.AutoExecute,
		MaxPositionUSD:      &s.MaxPositionUSD,
	}
}

// Get returns the current (applied) settings.
// GET /api/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toPayload(h.scanner.Settings()))
}

// Update stages a settings change for the next scan cycle.
// POST /api/settings
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	next := h.scanner.StagedSettings()
	if req.ScanIntervalSeconds != nil {
		if *req.ScanIntervalSeconds < 1 {
			writeError(w, http.StatusBadRequest, "scan_interval_seconds must be at least 1")
			return
		}
		next.ScanInterval = time.Duration(*req.ScanIntervalSeconds * float64(time.Second))
	}
	if req.MinProfitCents != nil {
		if *req.MinProfitCents < 0 {
			writeError(w, http.StatusBadRequest, "min_profit_cents must not be negative")
			return
		}
		next.MinProfitCents = *req.MinProfitCents
	}
	if req.MatchThreshold != nil {
		if *req.MatchThreshold < 0 || *req.MatchThreshold > 100 {
			writeError(w, http.StatusBadRequest, "match_threshold must be between 0 and 100")
			return
		}
		next.MatchThreshold = *req.MatchThreshold
	}
	if req.AutoExecute != nil {
		if *req.AutoExecute && !h.tradable {
			writeError(w, http.StatusBadRequest, "auto_execute requires mode trade")
			return
		}
		next.AutoExecute = *req.AutoExecute
	}
	if req.MaxPositionUSD != nil {
		if *req.MaxPositionUSD < 0 {
			writeError(w, http.StatusBadRequest, "max_position_usd must not be negative")
			return
		}
		next.MaxPositionUSD = *req.MaxPositionUSD
	}

	h.scanner.UpdateSettings(next)
	h.logger.Info("settings update staged",
		slog.Float64("min_profit_cents", next.MinProfitCents),
		slog.Float64("match_threshold", next.MatchThreshold),
		slog.Bool("auto_execute", next.AutoExecute),
		slog.Float64("max_position_usd", next.MaxPositionUSD),
		slog.Duration("scan_interval", next.ScanInterval),
	)

	writeJSON(w, http.StatusOK, toPayload(next))
}
