package guard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/polymathbot/polymath/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedPlacer returns canned results in order and records every request
// it receives.
type scriptedPlacer struct {
	venue    domain.Venue
	results  []domain.OrderResult
	errs     []error
	checked  []string
	checkRes domain.OrderResult
	checkErr error
	requests []domain.OrderRequest
}

func (p *scriptedPlacer) Venue() domain.Venue { return p.venue }

func (p *scriptedPlacer) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	p.requests = append(p.requests, req)
	i := len(p.requests) - 1
	var res domain.OrderResult
	var err error
	if i < len(p.results) {
		res = p.results[i]
	}
	if i < len(p.errs) {
		err = p.errs[i]
	}
	return res, err
}

func (p *scriptedPlacer) CheckOrder(_ context.Context, orderID string) (domain.OrderResult, error) {
	p.checked = append(p.checked, orderID)
	return p.checkRes, p.checkErr
}

func fill(price, size float64) domain.OrderResult {
	return domain.OrderResult{OrderID: "ord", Status: domain.OrderStatusFilled, FillPrice: price, FillSize: size}
}

func reject(msg string) domain.OrderResult {
	return domain.OrderResult{Status: domain.OrderStatusRejected, Message: msg}
}

func testOpportunity() domain.Opportunity {
	return domain.Opportunity{
		ID:        "opp-1",
		Direction: domain.DirectionKalshiYesPolyNo,
		Pair: domain.MatchedPair{
			KalshiID:     "KXBTC-100K",
			PolymarketID: "0xabc",
			Polymarket:   domain.Market{TokenIDs: [2]string{"tok-yes", "tok-no"}},
		},
		KalshiPrice:     0.40,
		PolymarketPrice: 0.55,
		Cost:            0.95,
		Profit:          0.05,
		MaxSize:         10,
	}
}

func testGuard(t *testing.T, cfg Config, kalshi, poly *scriptedPlacer) *Guard {
	t.Helper()
	if cfg.DailyLossLimit == 0 {
		cfg.DailyLossLimit = 1000
	}
	ledger := NewLedger(cfg.DailyLossLimit, nil, testLogger())
	placers := map[domain.Venue]domain.OrderPlacer{}
	if kalshi != nil {
		placers[domain.VenueKalshi] = kalshi
	}
	if poly != nil {
		placers[domain.VenuePolymarket] = poly
	}
	g := New(cfg, placers, ledger, nil, testLogger())
	g.newID = func() string { return "exec-1" }
	return g
}

func TestExecuteBothLegsFill(t *testing.T) {
	kalshi := &scriptedPlacer{venue: domain.VenueKalshi, results: []domain.OrderResult{fill(0.40, 10)}}
	poly := &scriptedPlacer{venue: domain.VenuePolymarket, results: []domain.OrderResult{fill(0.55, 10)}}
	g := testGuard(t, Config{AutoExecute: true, MaxPosition: 100}, kalshi, poly)

	rec, err := g.Execute(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("Execute = %v", err)
	}
	if rec.State != domain.ExecStateSettled {
		t.Fatalf("State = %s, want settled", rec.State)
	}
	if got := rec.EstimatedProfit; got != 0.5 {
		t.Errorf("EstimatedProfit = %.2f, want 0.50", got)
	}
	if len(rec.Legs) != 2 {
		t.Fatalf("got %d legs, want 2", len(rec.Legs))
	}

	// Kalshi always goes first.
	if len(kalshi.requests) != 1 || len(poly.requests) != 1 {
		t.Fatalf("kalshi=%d poly=%d orders, want 1 each", len(kalshi.requests), len(poly.requests))
	}
	if kalshi.requests[0].Contract != domain.ContractYes {
		t.Errorf("kalshi contract = %s, want yes", kalshi.requests[0].Contract)
	}
	if poly.requests[0].Contract != domain.ContractNo {
		t.Errorf("poly contract = %s, want no", poly.requests[0].Contract)
	}
	if poly.requests[0].TokenID != "tok-no" {
		t.Errorf("poly token = %q, want tok-no", poly.requests[0].TokenID)
	}

	// Clean fill leaves no realized loss in the ledger.
	if got := g.Ledger().State().RealizedLoss; got != 0 {
		t.Errorf("RealizedLoss = %.2f, want 0", got)
	}
}

func TestExecuteOppositeDirection(t *testing.T) {
	kalshi := &scriptedPlacer{venue: domain.VenueKalshi, results: []domain.OrderResult{fill(0.40, 10)}}
	poly := &scriptedPlacer{venue: domain.VenuePolymarket, results: []domain.OrderResult{fill(0.55, 10)}}
	g := testGuard(t, Config{AutoExecute: true, MaxPosition: 100}, kalshi, poly)

	opp := testOpportunity()
	opp.Direction = domain.DirectionPolyYesKalshiNo
	if _, err := g.Execute(context.Background(), opp); err != nil {
		t.Fatalf("Execute = %v", err)
	}
	if kalshi.requests[0].Contract != domain.ContractNo {
		t.Errorf("kalshi contract = %s, want no", kalshi.requests[0].Contract)
	}
	if poly.requests[0].Contract != domain.ContractYes {
		t.Errorf("poly contract = %s, want yes", poly.requests[0].Contract)
	}
	if poly.requests[0].TokenID != "tok-yes" {
		t.Errorf("poly token = %q, want tok-yes", poly.requests[0].TokenID)
	}
}

func TestExecuteSecondLegFailsUnwindsFirst(t *testing.T) {
	kalshi := &scriptedPlacer{
		venue: domain.VenueKalshi,
		results: []domain.OrderResult{
			fill(0.40, 10), // first leg buy
			fill(0.35, 10), // unwind sell at the bid
		},
	}
	poly := &scriptedPlacer{venue: domain.VenuePolymarket, results: []domain.OrderResult{reject("insufficient liquidity")}}
	g := testGuard(t, Config{AutoExecute: true, MaxPosition: 100}, kalshi, poly)

	rec, err := g.Execute(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("Execute = %v", err)
	}
	if rec.State != domain.ExecStateFailed {
		t.Fatalf("State = %s, want failed", rec.State)
	}

	// Bought 10 at 0.40, sold back 10 at 0.35: $0.50 lost.
	if got := rec.RealizedLoss; got < 0.499 || got > 0.501 {
		t.Errorf("RealizedLoss = %.4f, want 0.50", got)
	}
	if rec.UnwoundSize != 10 {
		t.Errorf("UnwoundSize = %.1f, want 10", rec.UnwoundSize)
	}
	if len(kalshi.requests) != 2 {
		t.Fatalf("kalshi saw %d orders, want buy then sell", len(kalshi.requests))
	}
	sell := kalshi.requests[1]
	if sell.Side != domain.OrderSideSell || sell.Size != 10 {
		t.Errorf("unwind order = %+v, want sell of 10", sell)
	}
	if got := g.Ledger().State().RealizedLoss; got < 0.499 || got > 0.501 {
		t.Errorf("ledger RealizedLoss = %.4f, want 0.50", got)
	}
}

func TestExecuteUnwindExhaustedRecordsFullExposure(t *testing.T) {
	kalshi := &scriptedPlacer{
		venue: domain.VenueKalshi,
		results: []domain.OrderResult{
			fill(0.40, 10),
			reject("no bids"), reject("no bids"), reject("no bids"),
		},
	}
	poly := &scriptedPlacer{venue: domain.VenuePolymarket, results: []domain.OrderResult{reject("rejected")}}
	g := testGuard(t, Config{AutoExecute: true, MaxPosition: 100, UnwindRetries: 3}, kalshi, poly)

	rec, err := g.Execute(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("Execute = %v", err)
	}
	if got := rec.RealizedLoss; got != 4.0 {
		t.Errorf("RealizedLoss = %.2f, want full exposure 4.00", got)
	}
	if rec.UnwoundSize != 0 {
		t.Errorf("UnwoundSize = %.1f, want 0", rec.UnwoundSize)
	}
	// Buy plus three sell attempts.
	if len(kalshi.requests) != 4 {
		t.Errorf("kalshi saw %d orders, want 4", len(kalshi.requests))
	}
}

func TestExecuteFirstLegFailsPlacesNothingElse(t *testing.T) {
	kalshi := &scriptedPlacer{venue: domain.VenueKalshi, results: []domain.OrderResult{reject("market closed")}}
	poly := &scriptedPlacer{venue: domain.VenuePolymarket}
	g := testGuard(t, Config{AutoExecute: true, MaxPosition: 100}, kalshi, poly)

	rec, err := g.Execute(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("Execute = %v", err)
	}
	if rec.State != domain.ExecStateFailed {
		t.Errorf("State = %s, want failed", rec.State)
	}
	if len(poly.requests) != 0 {
		t.Errorf("polymarket saw %d orders, want 0", len(poly.requests))
	}
	if got := g.Ledger().State().RealizedLoss; got != 0 {
		t.Errorf("RealizedLoss = %.2f, want 0 when nothing filled", got)
	}
}

func TestExecuteDisabled(t *testing.T) {
	g := testGuard(t, Config{AutoExecute: false, MaxPosition: 100}, nil, nil)

	rec, err := g.Execute(context.Background(), testOpportunity())
	if !errors.Is(err, domain.ErrExecutionDisabled) {
		t.Fatalf("Execute = %v, want ErrExecutionDisabled", err)
	}
	if rec.State != domain.ExecStateBlocked {
		t.Errorf("State = %s, want blocked", rec.State)
	}
}

func TestExecuteNoSize(t *testing.T) {
	g := testGuard(t, Config{AutoExecute: true, MaxPosition: 100}, nil, nil)

	opp := testOpportunity()
	opp.MaxSize = 0
	_, err := g.Execute(context.Background(), opp)
	if !errors.Is(err, domain.ErrNoExecutableSize) {
		t.Fatalf("Execute = %v, want ErrNoExecutableSize", err)
	}
}

func TestExecuteCapsSizeAtMaxPosition(t *testing.T) {
	kalshi := &scriptedPlacer{venue: domain.VenueKalshi, results: []domain.OrderResult{fill(0.40, 5)}}
	poly := &scriptedPlacer{venue: domain.VenuePolymarket, results: []domain.OrderResult{fill(0.55, 5)}}
	g := testGuard(t, Config{AutoExecute: true, MaxPosition: 5}, kalshi, poly)

	rec, err := g.Execute(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("Execute = %v", err)
	}
	if rec.Size != 5 {
		t.Errorf("Size = %.1f, want capped at 5", rec.Size)
	}
	if kalshi.requests[0].Size != 5 {
		t.Errorf("order size = %.1f, want 5", kalshi.requests[0].Size)
	}
}

func TestExecuteRefusedByRiskLedger(t *testing.T) {
	kalshi := &scriptedPlacer{venue: domain.VenueKalshi}
	poly := &scriptedPlacer{venue: domain.VenuePolymarket}
	g := testGuard(t, Config{AutoExecute: true, MaxPosition: 100, DailyLossLimit: 50}, kalshi, poly)

	// $48 already lost today; this attempt's worst case is 0.55 * 10 =
	// $5.50, which would breach the $50 limit.
	g.Ledger().Commit(context.Background(), 0, 48)

	rec, err := g.Execute(context.Background(), testOpportunity())
	if !errors.Is(err, domain.ErrRiskLimit) {
		t.Fatalf("Execute = %v, want ErrRiskLimit", err)
	}
	if rec.State != domain.ExecStateBlocked {
		t.Errorf("State = %s, want blocked", rec.State)
	}
	if len(kalshi.requests)+len(poly.requests) != 0 {
		t.Error("orders placed despite risk refusal")
	}
}

func TestExecuteCooldown(t *testing.T) {
	kalshi := &scriptedPlacer{venue: domain.VenueKalshi, results: []domain.OrderResult{fill(0.40, 10)}}
	poly := &scriptedPlacer{venue: domain.VenuePolymarket, results: []domain.OrderResult{fill(0.55, 10)}}
	g := testGuard(t, Config{AutoExecute: true, MaxPosition: 100, Cooldown: time.Minute}, kalshi, poly)

	current := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return current }
	g.ledger.now = g.now

	if _, err := g.Execute(context.Background(), testOpportunity()); err != nil {
		t.Fatalf("first Execute = %v", err)
	}

	current = current.Add(10 * time.Second)
	rec, err := g.Execute(context.Background(), testOpportunity())
	if err == nil {
		t.Fatal("second Execute within cooldown succeeded")
	}
	if rec.State != domain.ExecStateBlocked {
		t.Errorf("State = %s, want blocked", rec.State)
	}

	current = current.Add(time.Minute)
	kalshi.results = append(kalshi.results, fill(0.40, 10))
	poly.results = append(poly.results, fill(0.55, 10))
	if _, err := g.Execute(context.Background(), testOpportunity()); err != nil {
		t.Errorf("Execute after cooldown = %v", err)
	}
}

func TestPlaceLegReconcilesTimeout(t *testing.T) {
	// The placement reports a timeout with an acknowledged order id; the
	// reconciliation query finds it filled.
	kalshi := &scriptedPlacer{
		venue: domain.VenueKalshi,
		results: []domain.OrderResult{
			{OrderID: "k-1", Status: domain.OrderStatusTimeout},
			fill(0.40, 10), // unused
		},
		checkRes: fill(0.40, 10),
	}
	poly := &scriptedPlacer{venue: domain.VenuePolymarket, results: []domain.OrderResult{fill(0.55, 10)}}
	g := testGuard(t, Config{AutoExecute: true, MaxPosition: 100}, kalshi, poly)

	rec, err := g.Execute(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("Execute = %v", err)
	}
	if rec.State != domain.ExecStateSettled {
		t.Fatalf("State = %s, want settled after reconciled fill", rec.State)
	}
	if len(kalshi.checked) != 1 || kalshi.checked[0] != "k-1" {
		t.Errorf("checked = %v, want [k-1]", kalshi.checked)
	}
}

func TestReconcileFailureAssumesFill(t *testing.T) {
	// Timeout and the status query also fails: the guard must assume the
	// order filled so the position gets hedged rather than abandoned. Here
	// the "fill" is the first leg, so the second leg is then placed.
	kalshi := &scriptedPlacer{
		venue:    domain.VenueKalshi,
		results:  []domain.OrderResult{{OrderID: "k-1", Status: domain.OrderStatusTimeout}},
		checkErr: errors.New("venue unreachable"),
	}
	poly := &scriptedPlacer{venue: domain.VenuePolymarket, results: []domain.OrderResult{fill(0.55, 10)}}
	g := testGuard(t, Config{AutoExecute: true, MaxPosition: 100}, kalshi, poly)

	rec, err := g.Execute(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("Execute = %v", err)
	}
	if rec.State != domain.ExecStateSettled {
		t.Fatalf("State = %s, want settled on assumed fill plus real second fill", rec.State)
	}
	first := rec.Legs[0].Result
	if !first.Filled() || first.FillPrice != 0.40 || first.Message != domain.ErrUnknownOutcome.Error() {
		t.Errorf("assumed fill = %+v, want filled at limit with unknown-outcome message", first)
	}
}

func TestUnacknowledgedTimeoutIsRejected(t *testing.T) {
	kalshi := &scriptedPlacer{
		venue:   domain.VenueKalshi,
		results: []domain.OrderResult{{Status: domain.OrderStatusTimeout}}, // no order id
	}
	poly := &scriptedPlacer{venue: domain.VenuePolymarket}
	g := testGuard(t, Config{AutoExecute: true, MaxPosition: 100}, kalshi, poly)

	rec, err := g.Execute(context.Background(), testOpportunity())
	if err != nil {
		t.Fatalf("Execute = %v", err)
	}
	if rec.State != domain.ExecStateFailed {
		t.Errorf("State = %s, want failed", rec.State)
	}
	if len(kalshi.checked) != 0 {
		t.Error("reconciled an order the venue never acknowledged")
	}
	if len(poly.requests) != 0 {
		t.Error("second leg placed after first leg rejection")
	}
}

func TestRecentNewestFirst(t *testing.T) {
	g := testGuard(t, Config{AutoExecute: false}, nil, nil)

	for i := 0; i < 3; i++ {
		g.Execute(context.Background(), testOpportunity()) // blocked, still recorded
	}
	recs := g.Recent(2)
	if len(recs) != 2 {
		t.Fatalf("Recent(2) returned %d records", len(recs))
	}
	all := g.Recent(0)
	if len(all) != 3 {
		t.Errorf("Recent(0) returned %d records, want all 3", len(all))
	}
}

// cancellingPlacer cancels the execution context when it receives an order,
// the way shutdown arrives between two legs. Its reconciliation query
// refuses a dead context like a real HTTP client would.
type cancellingPlacer struct {
	scriptedPlacer
	cancel context.CancelFunc
}

func (p *cancellingPlacer) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	p.cancel()
	return p.scriptedPlacer.PlaceOrder(ctx, req)
}

func (p *cancellingPlacer) CheckOrder(ctx context.Context, orderID string) (domain.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderResult{}, err
	}
	return p.scriptedPlacer.CheckOrder(ctx, orderID)
}

// ctxCheckedPlacer fails orders arriving on an already-cancelled context
// and records what it saw, so a test can tell a genuine attempt from one
// doomed by its own context.
type ctxCheckedPlacer struct {
	scriptedPlacer
	ctxErrs []error
}

func (p *ctxCheckedPlacer) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	if err := ctx.Err(); err != nil {
		p.requests = append(p.requests, req)
		return domain.OrderResult{}, err
	}
	return p.scriptedPlacer.PlaceOrder(ctx, req)
}

func TestUnwindRunsAfterCallerCancelled(t *testing.T) {
	// Shutdown lands between the legs: the second placement cancels the
	// execution context and rejects. The sell-back must still go out on a
	// live context and recover the exposure.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kalshi := &ctxCheckedPlacer{scriptedPlacer: scriptedPlacer{
		venue:   domain.VenueKalshi,
		results: []domain.OrderResult{fill(0.40, 10), fill(0.35, 10)},
	}}
	poly := &cancellingPlacer{
		scriptedPlacer: scriptedPlacer{
			venue:   domain.VenuePolymarket,
			results: []domain.OrderResult{reject("venue unavailable")},
		},
		cancel: cancel,
	}

	ledger := NewLedger(1000, nil, testLogger())
	g := New(Config{AutoExecute: true, MaxPosition: 100}, map[domain.Venue]domain.OrderPlacer{
		domain.VenueKalshi:     kalshi,
		domain.VenuePolymarket: poly,
	}, ledger, nil, testLogger())

	rec, err := g.Execute(ctx, testOpportunity())
	if err != nil {
		t.Fatalf("Execute = %v", err)
	}
	if rec.State != domain.ExecStateFailed {
		t.Fatalf("State = %s, want failed", rec.State)
	}
	if rec.UnwoundSize != 10 {
		t.Errorf("UnwoundSize = %.0f, want 10", rec.UnwoundSize)
	}
	if got := rec.RealizedLoss; got < 0.499 || got > 0.501 {
		t.Errorf("RealizedLoss = %.2f, want 0.50 (sold back below the buy)", got)
	}
	if len(kalshi.requests) != 2 {
		t.Fatalf("kalshi saw %d orders, want buy then sell", len(kalshi.requests))
	}
	if kalshi.ctxErrs[1] != nil {
		t.Errorf("sell-back ran on a dead context: %v", kalshi.ctxErrs[1])
	}
}

func TestReconcileRunsAfterCallerCancelled(t *testing.T) {
	// The second placement cancels the context and then times out with an
	// acknowledged order id. The status query must still reach the venue
	// instead of failing on the dead context and assuming a fill.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kalshi := &ctxCheckedPlacer{scriptedPlacer: scriptedPlacer{
		venue:   domain.VenueKalshi,
		results: []domain.OrderResult{fill(0.40, 10), fill(0.38, 10)},
	}}
	poly := &cancellingPlacer{
		scriptedPlacer: scriptedPlacer{
			venue:    domain.VenuePolymarket,
			results:  []domain.OrderResult{{OrderID: "p-1", Status: domain.OrderStatusTimeout}},
			checkRes: reject("expired unfilled"),
		},
		cancel: cancel,
	}

	ledger := NewLedger(1000, nil, testLogger())
	g := New(Config{AutoExecute: true, MaxPosition: 100}, map[domain.Venue]domain.OrderPlacer{
		domain.VenueKalshi:     kalshi,
		domain.VenuePolymarket: poly,
	}, ledger, nil, testLogger())

	rec, err := g.Execute(ctx, testOpportunity())
	if err != nil {
		t.Fatalf("Execute = %v", err)
	}
	if len(poly.checked) != 1 || poly.checked[0] != "p-1" {
		t.Fatalf("checked = %v, want [p-1]", poly.checked)
	}
	// A real answer came back: the leg expired unfilled, so the first leg
	// is unwound rather than the execution counted as settled.
	if rec.State != domain.ExecStateFailed {
		t.Fatalf("State = %s, want failed after reconciled non-fill", rec.State)
	}
	if rec.UnwoundSize != 10 {
		t.Errorf("UnwoundSize = %.0f, want 10", rec.UnwoundSize)
	}
}
