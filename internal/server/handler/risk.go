package handler

import (
	"log/slog"
	"net/http"

	"github.com/polymathbot/polymath/internal/guard"
)

// RiskHandler exposes the daily risk ledger.
type RiskHandler struct {
	ledger *guard.Ledger
	logger *slog.Logger
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(ledger *guard.Ledger, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{
		ledger: ledger,
		logger: logHandler(logger, "risk"),
	}
}

// State returns the current day's realized loss and halt flag.
// GET /api/risk
func (h *RiskHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.State())
}

// Reset lifts the halt by operator action. The realized loss counter is
// kept; the ledger clears it on its own at the UTC day rollover.
// POST /api/risk/reset
func (h *RiskHandler) Reset(w http.ResponseWriter, r *http.Request) {
	before := h.ledger.State()
	h.ledger.Reset(r.Context())
	h.logger.Warn("risk halt reset requested",
		slog.Float64("realized_loss", before.RealizedLoss),
		slog.Bool("was_halted", before.Halted),
	)
	writeJSON(w, http.StatusOK, h.ledger.State())
}
