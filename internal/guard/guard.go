// Package guard attempts two trades on two venues as a single economic
// unit. There is no cross-venue commit protocol, so the guard compensates
// with ordered leg placement, an explicit unwind step, and exposure
// accounting instead of pretending an atomic commit exists.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polymathbot/polymath/internal/domain"
)

const (
	defaultUnwindRetries = 3
	defaultOrderTimeout  = 10 * time.Second
	defaultCooldown      = 5 * time.Second
)

// Config holds the guard's tunables. AutoExecute and MaxPosition may be
// changed at runtime through the setters.
type Config struct {
	AutoExecute    bool
	MaxPosition    float64 // contracts; also the USD cap since payout is $1
	DailyLossLimit float64
	UnwindRetries  int
	OrderTimeout   time.Duration
	Cooldown       time.Duration
}

// Guard enforces risk limits and runs the dual-leg saga for one
// opportunity at a time per call. Concurrent calls are safe: the risk
// check-and-update is serialized inside the Ledger.
type Guard struct {
	mu          sync.Mutex
	autoExecute bool
	maxPosition float64
	lastExec    time.Time

	cfg     Config
	placers map[domain.Venue]domain.OrderPlacer
	ledger  *Ledger
	store   domain.ExecutionStore // optional
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string

	recentMu sync.Mutex
	recent   []domain.ExecutionRecord

	onComplete func(context.Context, domain.ExecutionRecord)
}

// New creates a Guard. placers must contain an OrderPlacer for both venues
// before Execute can place anything; store may be nil.
func New(cfg Config, placers map[domain.Venue]domain.OrderPlacer, ledger *Ledger, store domain.ExecutionStore, logger *slog.Logger) *Guard {
	if cfg.UnwindRetries <= 0 {
		cfg.UnwindRetries = defaultUnwindRetries
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = defaultOrderTimeout
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		autoExecute: cfg.AutoExecute,
		maxPosition: cfg.MaxPosition,
		cfg:         cfg,
		placers:     placers,
		ledger:      ledger,
		store:       store,
		logger:      logger.With(slog.String("component", "execution_guard")),
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
}

// SetAutoExecute toggles execution at runtime.
func (g *Guard) SetAutoExecute(on bool) {
	g.mu.Lock()
	g.autoExecute = on
	g.mu.Unlock()
}

// SetMaxPosition updates the position cap at runtime.
func (g *Guard) SetMaxPosition(size float64) {
	if size <= 0 {
		return
	}
	g.mu.Lock()
	g.maxPosition = size
	g.mu.Unlock()
}

// Ledger exposes the risk ledger for dashboard state and operator reset.
func (g *Guard) Ledger() *Ledger { return g.ledger }

// SetOnComplete registers a callback invoked after every recorded attempt,
// on its own goroutine. Used for operator notifications. Must be called
// before Execute is first used.
func (g *Guard) SetOnComplete(fn func(context.Context, domain.ExecutionRecord)) {
	g.onComplete = fn
}

// Recent returns the most recent execution records, newest first, when no
// durable store is wired.
func (g *Guard) Recent(limit int) []domain.ExecutionRecord {
	g.recentMu.Lock()
	defer g.recentMu.Unlock()
	if limit <= 0 || limit > len(g.recent) {
		limit = len(g.recent)
	}
	out := make([]domain.ExecutionRecord, limit)
	for i := 0; i < limit; i++ {
		out[i] = g.recent[len(g.recent)-1-i]
	}
	return out
}

// legPlan fixes the deterministic execution order: the Kalshi leg is always
// placed first. Kalshi quotes are the slower-moving of the two venues here
// and its orders can be cancelled, so the window in which we hold a single
// unhedged leg is the Polymarket placement only.
type legPlan struct {
	first  domain.OrderRequest
	second domain.OrderRequest
}

func buildPlan(opp domain.Opportunity, size float64) legPlan {
	kalshiContract, polyContract := domain.ContractYes, domain.ContractNo
	polyToken := opp.Pair.Polymarket.TokenIDs[1]
	if opp.Direction == domain.DirectionPolyYesKalshiNo {
		kalshiContract, polyContract = domain.ContractNo, domain.ContractYes
		polyToken = opp.Pair.Polymarket.TokenIDs[0]
	}
	return legPlan{
		first: domain.OrderRequest{
			Venue:      domain.VenueKalshi,
			MarketID:   opp.Pair.KalshiID,
			Side:       domain.OrderSideBuy,
			Contract:   kalshiContract,
			Size:       size,
			LimitPrice: opp.KalshiPrice,
		},
		second: domain.OrderRequest{
			Venue:      domain.VenuePolymarket,
			MarketID:   opp.Pair.PolymarketID,
			TokenID:    polyToken,
			Side:       domain.OrderSideBuy,
			Contract:   polyContract,
			Size:       size,
			LimitPrice: opp.PolymarketPrice,
		},
	}
}

// Execute runs the full saga for one opportunity: guardrails, reservation,
// ordered leg placement, unwind on partial failure, and risk accounting.
// The returned record describes the outcome; the error reports why nothing
// was placed when the attempt was refused.
func (g *Guard) Execute(ctx context.Context, opp domain.Opportunity) (domain.ExecutionRecord, error) {
	rec := domain.ExecutionRecord{
		ID:            g.newID(),
		OpportunityID: opp.ID,
		Direction:     opp.Direction,
		State:         domain.ExecStateEvaluating,
		StartedAt:     g.now().UTC(),
	}

	g.mu.Lock()
	enabled := g.autoExecute
	maxPos := g.maxPosition
	sinceLast := g.now().Sub(g.lastExec)
	g.mu.Unlock()

	if !enabled {
		return g.blocked(ctx, rec, domain.ErrExecutionDisabled)
	}

	size := opp.MaxSize
	if maxPos > 0 && size > maxPos {
		size = maxPos
	}
	if size <= 0 {
		return g.blocked(ctx, rec, domain.ErrNoExecutableSize)
	}
	rec.Size = size

	if g.cfg.Cooldown > 0 && !g.lastExecZero() && sinceLast < g.cfg.Cooldown {
		return g.blocked(ctx, rec, fmt.Errorf("cooldown active (%.1fs of %s)", sinceLast.Seconds(), g.cfg.Cooldown))
	}

	plan := buildPlan(opp, size)

	// Worst case if one leg fills alone: the pricier leg fills and the
	// other does not, and the position goes to zero.
	projected := plan.first.LimitPrice
	if plan.second.LimitPrice > projected {
		projected = plan.second.LimitPrice
	}
	projected *= size

	if err := g.ledger.Reserve(projected); err != nil {
		return g.blocked(ctx, rec, err)
	}

	g.logger.Info("executing opportunity",
		slog.String("opportunity_id", opp.ID),
		slog.String("direction", string(opp.Direction)),
		slog.Float64("cost", opp.Cost),
		slog.Float64("profit", opp.Profit),
		slog.Float64("size", size),
	)

	rec.State = domain.ExecStateExecuting
	rec = g.runLegs(ctx, rec, plan, projected, opp)

	g.mu.Lock()
	g.lastExec = g.now()
	g.mu.Unlock()

	g.record(ctx, &rec)
	return rec, nil
}

// runLegs places both legs in order and applies the unwind policy on
// partial failure. The reservation is always settled exactly once.
func (g *Guard) runLegs(ctx context.Context, rec domain.ExecutionRecord, plan legPlan, reservation float64, opp domain.Opportunity) domain.ExecutionRecord {
	first, err := g.placeLeg(ctx, plan.first)
	rec.Legs = append(rec.Legs, first)
	if err != nil || !first.Result.Filled() {
		// Nothing filled, nothing at risk.
		g.ledger.Commit(ctx, reservation, 0)
		rec.State = domain.ExecStateFailed
		rec.Error = legError("first leg", first, err)
		return g.complete(rec)
	}

	second, err := g.placeLeg(ctx, plan.second)
	rec.Legs = append(rec.Legs, second)
	if err == nil && second.Result.Filled() {
		g.ledger.Commit(ctx, reservation, 0)
		rec.State = domain.ExecStateSettled
		rec.EstimatedProfit = opp.Profit * rec.Size
		g.logger.Info("both legs filled",
			slog.String("execution_id", rec.ID),
			slog.Float64("estimated_profit", rec.EstimatedProfit),
		)
		return g.complete(rec)
	}

	// Partial failure: leg 1 is a live unhedged position. Unwind it and
	// account for whatever exposure remains.
	rec.State = domain.ExecStateUnwinding
	rec.Error = legError("second leg", second, err)
	loss, unwound, unwindLegs := g.unwind(ctx, first)
	rec.Legs = append(rec.Legs, unwindLegs...)
	rec.UnwoundSize = unwound
	rec.RealizedLoss = loss
	// Book the loss on a detached context for the same reason the unwind
	// runs on one: the day state must survive a shutdown mid-saga.
	g.ledger.Commit(context.WithoutCancel(ctx), reservation, loss)
	rec.State = domain.ExecStateFailed

	g.logger.Error("partial execution, exposure recorded",
		slog.String("execution_id", rec.ID),
		slog.Float64("realized_loss", loss),
		slog.Float64("unwound_size", unwound),
		slog.String("error", rec.Error),
	)
	return g.complete(rec)
}

// placeLeg submits one order with the configured timeout. A timed-out
// placement is an unknown outcome: it is reconciled against the venue
// before classification, because treating it as a clean failure could
// double-count or miss a real fill.
func (g *Guard) placeLeg(ctx context.Context, req domain.OrderRequest) (domain.LegResult, error) {
	placer, ok := g.placers[req.Venue]
	if !ok {
		return domain.LegResult{Request: req, PlacedAt: g.now().UTC()},
			fmt.Errorf("guard: no order placer for venue %q", req.Venue)
	}

	leg := domain.LegResult{Request: req, PlacedAt: g.now().UTC()}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.OrderTimeout)
	defer cancel()

	res, err := placer.PlaceOrder(callCtx, req)
	if err == nil && res.Status != domain.OrderStatusTimeout {
		leg.Result = res
		return leg, nil
	}

	timedOut := errors.Is(err, context.DeadlineExceeded) || (err == nil && res.Status == domain.OrderStatusTimeout)
	if !timedOut {
		leg.Result = domain.OrderResult{Status: domain.OrderStatusRejected, Message: errMessage(err)}
		return leg, err
	}

	leg.Result = g.reconcile(ctx, placer, res, req)
	return leg, nil
}

// reconcile queries the venue for the actual fill status of a timed-out
// order. When even reconciliation fails we assume the worst that keeps us
// honest: the order filled at its limit price, so the caller will hedge or
// unwind rather than walk away from a live position.
func (g *Guard) reconcile(ctx context.Context, placer domain.OrderPlacer, res domain.OrderResult, req domain.OrderRequest) domain.OrderResult {
	if res.OrderID == "" {
		// The venue never acknowledged the order; nothing to query.
		return domain.OrderResult{Status: domain.OrderStatusRejected, Message: "placement timed out before acknowledgement"}
	}

	// The query must run even when the caller is already shutting down:
	// the order may have filled, and skipping the check loses track of it.
	checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.OrderTimeout)
	defer cancel()

	checked, err := placer.CheckOrder(checkCtx, res.OrderID)
	if err != nil {
		g.logger.Error("order reconciliation failed, assuming fill",
			slog.String("venue", string(req.Venue)),
			slog.String("order_id", res.OrderID),
			slog.String("error", err.Error()),
		)
		return domain.OrderResult{
			OrderID:   res.OrderID,
			Status:    domain.OrderStatusFilled,
			FillPrice: req.LimitPrice,
			FillSize:  req.Size,
			Message:   domain.ErrUnknownOutcome.Error(),
		}
	}
	return checked
}

// unwind sells the filled first leg back, retrying up to the configured
// bound. It returns the realized loss (full exposure when nothing could be
// sold), the size successfully unwound, and the sell attempts for the
// record. Exposure is never silently dropped.
func (g *Guard) unwind(ctx context.Context, first domain.LegResult) (loss, unwound float64, legs []domain.LegResult) {
	// Leg 1 is a live position; shutdown between the legs must not skip
	// the sell-back. Detach from the caller's cancellation and bound the
	// whole retry loop instead (each attempt is a place plus at most one
	// reconciliation query, each under OrderTimeout).
	ctx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx),
		time.Duration(g.cfg.UnwindRetries)*2*g.cfg.OrderTimeout,
	)
	defer cancel()

	exposure := first.Result.FillPrice * first.Result.FillSize
	sellReq := domain.OrderRequest{
		Venue:    first.Request.Venue,
		MarketID: first.Request.MarketID,
		TokenID:  first.Request.TokenID,
		Side:     domain.OrderSideSell,
		Contract: first.Request.Contract,
		Size:     first.Result.FillSize,
		// LimitPrice zero lets the venue client price the sell at the
		// current bid: recovering most of the exposure now beats holding
		// an unhedged position.
	}

	for attempt := 1; attempt <= g.cfg.UnwindRetries; attempt++ {
		leg, err := g.placeLeg(ctx, sellReq)
		legs = append(legs, leg)
		if err == nil && leg.Result.Filled() {
			proceeds := leg.Result.FillPrice * leg.Result.FillSize
			loss = exposure - proceeds
			if loss < 0 {
				loss = 0
			}
			return loss, leg.Result.FillSize, legs
		}
		g.logger.Warn("unwind attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", g.cfg.UnwindRetries),
			slog.String("venue", string(sellReq.Venue)),
		)
		if ctx.Err() != nil {
			break
		}
	}

	// Unwind exhausted: the whole first leg stays at risk.
	return exposure, 0, legs
}

func (g *Guard) blocked(ctx context.Context, rec domain.ExecutionRecord, reason error) (domain.ExecutionRecord, error) {
	rec.State = domain.ExecStateBlocked
	rec.Error = reason.Error()
	rec = g.complete(rec)
	g.logger.Info("execution blocked",
		slog.String("opportunity_id", rec.OpportunityID),
		slog.String("reason", rec.Error),
	)
	g.record(ctx, &rec)
	return rec, reason
}

func (g *Guard) complete(rec domain.ExecutionRecord) domain.ExecutionRecord {
	done := g.now().UTC()
	rec.CompletedAt = &done
	return rec
}

// record persists the attempt and keeps a bounded in-memory tail for the
// dashboard when no store is wired.
func (g *Guard) record(ctx context.Context, rec *domain.ExecutionRecord) {
	g.recentMu.Lock()
	g.recent = append(g.recent, *rec)
	if len(g.recent) > 200 {
		g.recent = g.recent[len(g.recent)-200:]
	}
	g.recentMu.Unlock()

	if g.onComplete != nil {
		go g.onComplete(context.WithoutCancel(ctx), *rec)
	}

	if g.store == nil {
		return
	}
	if err := g.store.Create(context.WithoutCancel(ctx), *rec); err != nil {
		g.logger.Error("execution record persist failed",
			slog.String("execution_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (g *Guard) lastExecZero() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastExec.IsZero()
}

func legError(which string, leg domain.LegResult, err error) string {
	if err != nil {
		return fmt.Sprintf("%s: %v", which, err)
	}
	if leg.Result.Message != "" {
		return fmt.Sprintf("%s %s: %s", which, leg.Result.Status, leg.Result.Message)
	}
	return fmt.Sprintf("%s %s", which, leg.Result.Status)
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
