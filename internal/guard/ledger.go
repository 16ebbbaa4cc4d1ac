package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/polymathbot/polymath/internal/domain"
)

// dayFormat keys the ledger by UTC calendar date. The daily loss counter
// and the halted flag reset when the UTC day rolls over.
const dayFormat = "2006-01-02"

// Ledger is the serialized daily risk ledger. Every check-and-update runs
// under one mutex so two concurrent executions can never both pass the
// loss-limit check against a stale cumulative value. Reservations hold
// projected worst-case losses while an execution is in flight; commits
// convert them into realized losses.
type Ledger struct {
	mu       sync.Mutex
	limit    float64
	store    domain.RiskStore // optional persistence
	logger   *slog.Logger
	now      func() time.Time
	day      string
	realized float64
	reserved float64
	halted   bool
}

// NewLedger creates a Ledger with the given daily loss limit in currency
// units. store may be nil, in which case the ledger is purely in-memory.
func NewLedger(limit float64, store domain.RiskStore, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		limit:  limit,
		store:  store,
		logger: logger.With(slog.String("component", "risk_ledger")),
		now:    time.Now,
	}
}

// Restore loads today's persisted state so a restart within the same UTC
// trading day cannot clear the loss limit. A persisted negative loss is an
// invariant violation: the ledger halts rather than trade on corrupt state.
func (l *Ledger) Restore(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	day := l.now().UTC().Format(dayFormat)
	state, err := l.store.Load(ctx, day)
	if err != nil {
		if err == domain.ErrNotFound {
			l.day = day
			return nil
		}
		return fmt.Errorf("guard: restore risk state: %w", err)
	}
	if state.RealizedLoss < 0 {
		l.day = day
		l.halted = true
		return fmt.Errorf("guard: %w: negative realized loss %.2f", domain.ErrRiskStateCorrupt, state.RealizedLoss)
	}

	l.day = day
	l.realized = state.RealizedLoss
	l.halted = state.Halted || state.RealizedLoss >= l.limit
	l.logger.Info("risk state restored",
		slog.String("day", day),
		slog.Float64("realized_loss", l.realized),
		slog.Bool("halted", l.halted),
	)
	return nil
}

// Reserve atomically checks the limit and holds projected worst-case loss
// for an execution about to start. It fails with ErrRiskHalted when the
// ledger is halted, and with ErrRiskLimit when realized plus already
// reserved plus projected losses would breach the daily limit. A refusal
// never halts the ledger; only realized losses do.
func (l *Ledger) Reserve(projected float64) error {
	if projected < 0 {
		projected = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()

	if l.halted {
		return domain.ErrRiskHalted
	}
	if l.realized+l.reserved+projected > l.limit {
		return fmt.Errorf("%w: realized=%.2f reserved=%.2f projected=%.2f limit=%.2f",
			domain.ErrRiskLimit, l.realized, l.reserved, projected, l.limit)
	}
	l.reserved += projected
	return nil
}

// Commit releases a reservation and records the actual realized loss from
// the finished attempt. The ledger halts when cumulative realized loss
// meets or exceeds the limit; the halt is terminal until Reset or the UTC
// day rollover. State is persisted best-effort after every commit.
func (l *Ledger) Commit(ctx context.Context, reservation, actualLoss float64) {
	l.mu.Lock()
	l.rollover()
	l.reserved -= reservation
	if l.reserved < 0 {
		l.reserved = 0
	}
	if actualLoss > 0 {
		l.realized += actualLoss
	}
	if l.realized >= l.limit {
		l.halted = true
		l.logger.Error("daily loss limit reached, halting execution",
			slog.Float64("realized_loss", l.realized),
			slog.Float64("limit", l.limit),
		)
	}
	state := l.snapshotLocked()
	l.mu.Unlock()

	l.persist(ctx, state)
}

// Release drops a reservation without recording any loss (no order was
// placed).
func (l *Ledger) Release(reservation float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reserved -= reservation
	if l.reserved < 0 {
		l.reserved = 0
	}
}

// Halted reports whether execution is currently refused.
func (l *Ledger) Halted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	return l.halted
}

// State returns a copy of the current risk state.
func (l *Ledger) State() domain.RiskState {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	return l.snapshotLocked()
}

// Reset clears the halted flag by operator action. The realized loss
// counter is kept: resetting acknowledges the halt, it does not forgive
// the losses that caused it.
func (l *Ledger) Reset(ctx context.Context) {
	l.mu.Lock()
	l.halted = false
	state := l.snapshotLocked()
	l.mu.Unlock()

	l.logger.Warn("risk halt cleared by operator", slog.Float64("realized_loss", state.RealizedLoss))
	l.persist(ctx, state)
}

// rollover resets counters when the UTC day changed. Caller holds the lock.
func (l *Ledger) rollover() {
	day := l.now().UTC().Format(dayFormat)
	if l.day == day {
		return
	}
	if l.day != "" {
		l.logger.Info("daily risk ledger rolled over",
			slog.String("previous_day", l.day),
			slog.Float64("previous_loss", l.realized),
		)
	}
	l.day = day
	l.realized = 0
	l.reserved = 0
	l.halted = false
}

func (l *Ledger) snapshotLocked() domain.RiskState {
	return domain.RiskState{
		Day:          l.day,
		RealizedLoss: l.realized,
		Halted:       l.halted,
		UpdatedAt:    l.now().UTC(),
	}
}

func (l *Ledger) persist(ctx context.Context, state domain.RiskState) {
	if l.store == nil {
		return
	}
	if err := l.store.Save(ctx, state); err != nil {
		l.logger.Error("risk state persist failed", slog.String("error", err.Error()))
	}
}
