package domain

import "time"

// Venue identifies one of the two prediction-market platforms.
type Venue string

const (
	VenueKalshi     Venue = "kalshi"
	VenuePolymarket Venue = "polymarket"
)

// FeeKind selects how a venue's worst-case taker fee is expressed.
type FeeKind string

const (
	// FeeKindSettlement charges a rate on the winning leg's profit at
	// settlement (Kalshi-style).
	FeeKindSettlement FeeKind = "settlement"
	// FeeKindFlat charges a fixed amount per contract regardless of outcome.
	FeeKindFlat FeeKind = "flat"
)

// FeeSchedule is the worst-case taker fee for one venue. Rate applies to
// FeeKindSettlement, Flat to FeeKindFlat.
type FeeSchedule struct {
	Kind FeeKind `json:"kind"`
	Rate float64 `json:"rate"` // fraction of winning-leg profit, e.g. 0.07
	Flat float64 `json:"flat"` // currency units per contract, e.g. 0.01
}

// Market is one contract on one venue, rebuilt wholesale every scan cycle
// from a fresh snapshot. Prices are in currency units where $1.00 is the
// full payout, so every price lives in [0, 1]. YesPrice+NoPrice need not
// equal 1.0 within a venue; the gap is that venue's own spread.
type Market struct {
	Venue      Venue  `json:"venue"`
	ID         string `json:"id"` // venue-native id: Kalshi ticker or Polymarket market id
	Title      string `json:"title"`
	EventTitle string `json:"event_title,omitempty"`
	Topic      string `json:"topic,omitempty"` // coarse category tag used for match candidate filtering

	YesPrice float64 `json:"yes_price"` // mid or last, fallback when no ask is quoted
	NoPrice  float64 `json:"no_price"`
	YesAsk   float64 `json:"yes_ask"`
	NoAsk    float64 `json:"no_ask"`
	YesBid   float64 `json:"yes_bid"`
	NoBid    float64 `json:"no_bid"`
	YesDepth float64 `json:"yes_depth"` // contracts available at the yes ask
	NoDepth  float64 `json:"no_depth"`

	// TokenIDs holds the [yes, no] outcome token ids on Polymarket; empty
	// for Kalshi markets.
	TokenIDs [2]string `json:"token_ids,omitempty"`

	Expiration *time.Time  `json:"expiration,omitempty"`
	Volume     float64     `json:"volume"`
	URL        string      `json:"url,omitempty"`
	Fees       FeeSchedule `json:"fees"`
}

// BuyYesPrice returns the price actually paid to buy YES: the ask when one
// is quoted, otherwise the mid price.
func (m Market) BuyYesPrice() float64 {
	if m.YesAsk > 0 {
		return m.YesAsk
	}
	return m.YesPrice
}

// BuyNoPrice returns the price actually paid to buy NO.
func (m Market) BuyNoPrice() float64 {
	if m.NoAsk > 0 {
		return m.NoAsk
	}
	return m.NoPrice
}
