package domain

import "time"

// ScanStats is the per-cycle bookkeeping surfaced on the dashboard.
type ScanStats struct {
	KalshiMarkets       int       `json:"kalshi_markets"`
	PolymarketMarkets   int       `json:"polymarket_markets"`
	MatchedPairs        int       `json:"matched_pairs"`
	ActiveOpportunities int       `json:"active_opportunities"`
	TotalScans          int       `json:"total_scans"`
	LastScan            time.Time `json:"last_scan"`

	// KalshiStale / PolymarketStale flag cycles that fell back to the prior
	// cycle's snapshot because that venue's fetch failed.
	KalshiStale     bool `json:"kalshi_stale"`
	PolymarketStale bool `json:"polymarket_stale"`

	Running      bool     `json:"is_running"`
	ScanInterval int      `json:"scan_interval"` // seconds
	AutoExecute  bool     `json:"auto_execute"`
	RiskHalted   bool     `json:"risk_halted"`
	Errors       []string `json:"errors,omitempty"`
}

// ScanSnapshot is the read-only state published to the dashboard after each
// cycle. It is rebuilt wholesale; consumers never see partial updates.
type ScanSnapshot struct {
	Stats         ScanStats     `json:"stats"`
	MatchedPairs  []MatchedPair `json:"matched_pairs"`
	Opportunities []Opportunity `json:"opportunities"`
}
