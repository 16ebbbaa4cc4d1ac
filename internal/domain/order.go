package domain

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// ContractSide picks the YES or NO contract of a binary market.
type ContractSide string

const (
	ContractYes ContractSide = "yes"
	ContractNo  ContractSide = "no"
)

// OrderStatus is the terminal classification of an order attempt.
// A timed-out placement is an unknown outcome and must be reconciled
// against the venue before it may be recorded as filled or rejected.
type OrderStatus string

const (
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusRejected OrderStatus = "rejected"
	OrderStatusTimeout  OrderStatus = "timeout"
)

// OrderRequest is one leg of a two-sided arbitrage trade, placed on one
// venue as an immediate-or-cancel limit order.
type OrderRequest struct {
	Venue      Venue        `json:"venue"`
	MarketID   string       `json:"market_id"`
	TokenID    string       `json:"token_id,omitempty"` // Polymarket outcome token; empty on Kalshi
	Side       OrderSide    `json:"side"`
	Contract   ContractSide `json:"contract"`
	Size       float64      `json:"size"`
	LimitPrice float64      `json:"limit_price"`
}

// OrderResult is the venue's answer to an order placement or a fill-status
// reconciliation query.
type OrderResult struct {
	OrderID   string      `json:"order_id,omitempty"`
	Status    OrderStatus `json:"status"`
	FillPrice float64     `json:"fill_price"`
	FillSize  float64     `json:"fill_size"`
	Message   string      `json:"message,omitempty"`
}

// Filled reports whether the order executed.
func (r OrderResult) Filled() bool { return r.Status == OrderStatusFilled }
