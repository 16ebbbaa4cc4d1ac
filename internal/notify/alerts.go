package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/polymathbot/polymath/internal/domain"
)

// Event types emitted by the alert watcher. Configure the notifier's event
// filter with these names.
const (
	EventOpportunity = "opportunity"
	EventExecution   = "execution"
	EventRiskHalt    = "risk_halt"
)

// seenLimit bounds the opportunity dedup set. Opportunity ids are
// deterministic per pair and direction, so the set stays small; the bound
// only guards against unbounded growth over very long uptimes.
const seenLimit = 4096

// Alerts watches the scan snapshot channel and turns state changes into
// operator notifications: newly detected opportunities, completed executions,
// and the risk-halt transition. It consumes the same published snapshots as
// the WebSocket hub, so alerting never adds work to the scan cycle itself.
type Alerts struct {
	bus      domain.SignalBus
	channel  string
	notifier *Notifier
	logger   *slog.Logger

	seenOpps map[string]bool
	halted   bool
}

// NewAlerts creates an alert watcher over the given signal-bus channel.
func NewAlerts(bus domain.SignalBus, channel string, notifier *Notifier, logger *slog.Logger) *Alerts {
	return &Alerts{
		bus:      bus,
		channel:  channel,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "alerts")),
		seenOpps: make(map[string]bool),
	}
}

// Run subscribes to the snapshot channel and processes snapshots until the
// context is cancelled.
func (a *Alerts) Run(ctx context.Context) error {
	msgCh, err := a.bus.Subscribe(ctx, a.channel)
	if err != nil {
		return fmt.Errorf("alerts: subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-msgCh:
			if !ok {
				return nil
			}
			var snap domain.ScanSnapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				a.logger.Warn("bad snapshot payload", slog.String("error", err.Error()))
				continue
			}
			a.process(ctx, snap)
		}
	}
}

func (a *Alerts) process(ctx context.Context, snap domain.ScanSnapshot) {
	a.alertOpportunities(ctx, snap.Opportunities)
	a.alertRiskHalt(ctx, snap.Stats.RiskHalted)
}

// alertOpportunities notifies once per opportunity id. An opportunity that
// persists across cycles keeps its id and is not re-alerted; one that
// disappears and comes back is.
func (a *Alerts) alertOpportunities(ctx context.Context, opps []domain.Opportunity) {
	current := make(map[string]bool, len(opps))
	for _, o := range opps {
		current[o.ID] = true
		if a.seenOpps[o.ID] {
			continue
		}
		if len(a.seenOpps) < seenLimit {
			a.seenOpps[o.ID] = true
		}

		title := fmt.Sprintf("Arbitrage: %.1f cents profit", o.Profit*100)
		msg := formatOpportunity(o)
		if err := a.notifier.Notify(ctx, EventOpportunity, title, msg); err != nil {
			a.logger.Warn("opportunity alert failed", slog.String("error", err.Error()))
		}
	}

	// Forget ids no longer present so a returning opportunity re-alerts.
	for id := range a.seenOpps {
		if !current[id] {
			delete(a.seenOpps, id)
		}
	}
}

func (a *Alerts) alertRiskHalt(ctx context.Context, halted bool) {
	if halted == a.halted {
		return
	}
	a.halted = halted

	if halted {
		err := a.notifier.Notify(ctx, EventRiskHalt,
			"Trading halted",
			"Daily loss limit reached. Execution is halted until the UTC day rolls over or the ledger is manually reset.",
		)
		if err != nil {
			a.logger.Warn("halt alert failed", slog.String("error", err.Error()))
		}
		return
	}
	err := a.notifier.Notify(ctx, EventRiskHalt,
		"Trading resumed",
		"Risk halt lifted; execution is enabled again.",
	)
	if err != nil {
		a.logger.Warn("resume alert failed", slog.String("error", err.Error()))
	}
}

// ExecutionCompleted formats and sends an alert for one finished execution
// attempt. The guard calls this through a small adapter; blocked attempts are
// not alerted.
func (a *Alerts) ExecutionCompleted(ctx context.Context, rec domain.ExecutionRecord) {
	if rec.State == domain.ExecStateBlocked {
		return
	}

	var title string
	switch rec.State {
	case domain.ExecStateSettled:
		title = fmt.Sprintf("Executed: +$%.2f locked in", rec.EstimatedProfit)
	case domain.ExecStateFailed:
		title = fmt.Sprintf("Execution failed: -$%.2f", rec.RealizedLoss)
	default:
		title = "Execution " + string(rec.State)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\nsize: %.0f contracts\n", rec.Direction.Describe(), rec.Size)
	for _, leg := range rec.Legs {
		fmt.Fprintf(&b, "%s %s %s @ %.2f: %s\n",
			leg.Request.Venue, leg.Request.Side, leg.Request.Contract,
			leg.Request.LimitPrice, leg.Result.Status)
	}
	if rec.Error != "" {
		fmt.Fprintf(&b, "error: %s", rec.Error)
	}

	if err := a.notifier.Notify(ctx, EventExecution, title, b.String()); err != nil {
		a.logger.Warn("execution alert failed", slog.String("error", err.Error()))
	}
}

func formatOpportunity(o domain.Opportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", o.Pair.Kalshi.Title)
	fmt.Fprintf(&b, "%s\n", o.Direction.Describe())
	fmt.Fprintf(&b, "cost: %.3f  profit: %.3f  roi: %.1f%%\n", o.Cost, o.Profit, o.ROI)
	if o.MaxSize > 0 {
		fmt.Fprintf(&b, "max size: %.0f contracts\n", o.MaxSize)
	} else {
		b.WriteString("no executable depth\n")
	}
	if o.Pair.Kalshi.URL != "" {
		fmt.Fprintf(&b, "%s\n", o.Pair.Kalshi.URL)
	}
	if o.Pair.Polymarket.URL != "" {
		fmt.Fprintf(&b, "%s", o.Pair.Polymarket.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}
