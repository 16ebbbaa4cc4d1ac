package domain

import "time"

// Direction says which venue supplies the YES leg and which supplies NO.
type Direction string

const (
	DirectionKalshiYesPolyNo Direction = "kalshi_yes_poly_no"
	DirectionPolyYesKalshiNo Direction = "poly_yes_kalshi_no"
)

// Describe returns the human-readable form used by the dashboard.
func (d Direction) Describe() string {
	switch d {
	case DirectionKalshiYesPolyNo:
		return "YES on Kalshi + NO on Polymarket"
	case DirectionPolyYesKalshiNo:
		return "YES on Polymarket + NO on Kalshi"
	default:
		return string(d)
	}
}

// Opportunity is one detected arbitrage instance: one MatchedPair in one
// direction whose combined cost, including worst-case fees, is below the
// $1.00 payout by at least the configured minimum profit. Opportunities are
// superseded wholesale by the next cycle's detection pass and never mutated.
type Opportunity struct {
	ID        string      `json:"id"`
	Pair      MatchedPair `json:"pair"`
	Direction Direction   `json:"direction"`

	// KalshiPrice and PolymarketPrice are the leg buy prices used in the
	// cost computation, attributed per venue.
	KalshiPrice     float64 `json:"kalshi_price"`
	PolymarketPrice float64 `json:"polymarket_price"`

	Cost   float64 `json:"cost"`   // legs + worst-case fees, strictly < 1.0
	Profit float64 `json:"profit"` // 1.0 - Cost
	ROI    float64 `json:"roi"`    // Profit / Cost, as a percentage

	// MaxSize is bounded by the thinner leg's depth and the position cap.
	// Zero means the opportunity is visible but not executable.
	MaxSize float64 `json:"max_size"`

	Similarity float64    `json:"similarity"`
	Expiration *time.Time `json:"expiration,omitempty"`
	DetectedAt time.Time  `json:"detected_at"`
}

// Executable reports whether the opportunity has tradable size.
func (o Opportunity) Executable() bool {
	return o.MaxSize > 0
}
