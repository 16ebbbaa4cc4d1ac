package domain

// MatchedPair records the belief that one Kalshi market and one Polymarket
// market resolve on the same underlying event with the same YES/NO
// semantics. Pairs are recomputed from scratch every scan cycle; the embedded
// market values are that cycle's snapshots and the ids are the only identity
// that survives across cycles.
type MatchedPair struct {
	KalshiID     string `json:"kalshi_id"`
	PolymarketID string `json:"polymarket_id"`
	Kalshi       Market `json:"kalshi"`
	Polymarket   Market `json:"polymarket"`

	// Similarity is the 0-100 title-similarity score that qualified the
	// pair. Manual overrides score 100.
	Similarity float64 `json:"similarity"`

	// Topic is the shared category bucket the candidates were drawn from.
	Topic string `json:"topic,omitempty"`
}
