package domain

import "time"

// ExecState tracks one dual-leg execution attempt through its lifecycle.
// There is no cross-venue commit protocol, so the terminal states reflect
// the compensating-action outcome rather than a transactional one.
type ExecState string

const (
	ExecStateIdle       ExecState = "idle"
	ExecStateEvaluating ExecState = "evaluating"
	ExecStateExecuting  ExecState = "executing"
	ExecStateUnwinding  ExecState = "unwinding"
	ExecStateSettled    ExecState = "settled"
	ExecStateFailed     ExecState = "failed"
	ExecStateBlocked    ExecState = "blocked" // refused before any order was placed
)

// LegResult pairs an order request with the venue's answer for one leg.
type LegResult struct {
	Request  OrderRequest `json:"request"`
	Result   OrderResult  `json:"result"`
	PlacedAt time.Time    `json:"placed_at"`
}

// ExecutionRecord is the durable record of one execution attempt, blocked or
// not. RealizedLoss is positive for losses and is the amount added to the
// daily risk ledger by this attempt.
type ExecutionRecord struct {
	ID            string      `json:"id"`
	OpportunityID string      `json:"opportunity_id"`
	Direction     Direction   `json:"direction"`
	State         ExecState   `json:"state"`
	Size          float64     `json:"size"`
	Legs          []LegResult `json:"legs,omitempty"`

	// EstimatedProfit is Opportunity.Profit * Size when both legs filled.
	EstimatedProfit float64 `json:"estimated_profit"`

	// RealizedLoss is the net loss from an unwind, or the full first-leg
	// exposure when unwinding failed outright.
	RealizedLoss float64 `json:"realized_loss"`

	// UnwoundSize is how much of the first leg was successfully sold back.
	UnwoundSize float64 `json:"unwound_size"`

	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RiskState is the process-wide daily loss ledger. Day is the UTC calendar
// date ("2006-01-02"); the loss counter and the halted flag reset when the
// UTC day rolls over. It is persisted so a restart within the same trading
// day cannot silently clear the loss limit.
type RiskState struct {
	Day          string    `json:"day"`
	RealizedLoss float64   `json:"realized_loss"`
	Halted       bool      `json:"halted"`
	UpdatedAt    time.Time `json:"updated_at"`
}
