package handler

import (
	"log/slog"
	"net/http"

	"github.com/polymathbot/polymath/internal/domain"
	"github.com/polymathbot/polymath/internal/scanner"
)

// ScanHandler exposes the most recent scan snapshot over the REST API. All
// reads come from the scanner's in-memory snapshot, so handlers never block
// on a running cycle.
type ScanHandler struct {
	scanner *scanner.Scanner
	logger  *slog.Logger
}

// NewScanHandler creates a ScanHandler backed by the given scanner.
func NewScanHandler(s *scanner.Scanner, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{
		scanner: s,
		logger:  logHandler(logger, "scan"),
	}
}

// Opportunities returns the opportunities found in the latest scan cycle,
// sorted by profit descending.
// GET /api/opportunities
func (h *ScanHandler) Opportunities(w http.ResponseWriter, r *http.Request) {
	snap := h.scanner.Snapshot()
	opps := snap.Opportunities
	if opps == nil {
		opps = []domain.Opportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": opps,
		"as_of":         snap.Stats.LastScan,
	})
}

// MatchedMarkets returns the cross-venue pairs the matcher linked in the
// latest cycle, including pairs with no current arbitrage.
// GET /api/matched-markets
func (h *ScanHandler) MatchedMarkets(w http.ResponseWriter, r *http.Request) {
	snap := h.scanner.Snapshot()
	pairs := snap.MatchedPairs
	if pairs == nil {
		pairs = []domain.MatchedPair{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matched_markets": pairs,
		"as_of":           snap.Stats.LastScan,
	})
}

// Stats returns the per-cycle scan statistics.
// GET /api/stats
func (h *ScanHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scanner.Snapshot().Stats)
}
