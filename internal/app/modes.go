package app

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polymathbot/polymath/internal/config"
	"github.com/polymathbot/polymath/internal/detect"
	"github.com/polymathbot/polymath/internal/guard"
	"github.com/polymathbot/polymath/internal/matching"
	"github.com/polymathbot/polymath/internal/notify"
	"github.com/polymathbot/polymath/internal/scanner"
	"github.com/polymathbot/polymath/internal/server"
	"github.com/polymathbot/polymath/internal/server/handler"
	"github.com/polymathbot/polymath/internal/server/ws"
)

// shutdownTimeout bounds graceful HTTP server shutdown.
const shutdownTimeout = 10 * time.Second

// run assembles the scan pipeline from wired dependencies and drives every
// long-running goroutine under one errgroup: the scan loop, the WebSocket
// hub, the HTTP server, the archiver, and the alert watcher. The first
// failure (or context cancellation) stops them all.
func (a *App) run(ctx context.Context, deps *Dependencies) error {
	// --- Pipeline components ---
	matcher := matching.New(matching.Config{
		Threshold: a.cfg.Matcher.Threshold,
		Overrides: a.cfg.Matcher.Overrides,
		Excluded:  a.cfg.Matcher.Excluded,
		Logger:    a.logger,
	})
	detector := detect.New(feeModel(a.cfg.Detector), a.logger)

	ledger := guard.NewLedger(a.cfg.Risk.DailyLossLimitUSD, deps.RiskStore, a.logger)
	if err := ledger.Restore(ctx); err != nil {
		return err
	}

	autoExecute := a.cfg.Scanner.AutoExecute && tradeMode(a.cfg.Mode)
	execGuard := guard.New(guard.Config{
		AutoExecute:    autoExecute,
		MaxPosition:    a.cfg.Scanner.MaxPositionUSD,
		DailyLossLimit: a.cfg.Risk.DailyLossLimitUSD,
		UnwindRetries:  a.cfg.Risk.UnwindRetries,
		OrderTimeout:   a.cfg.Risk.OrderTimeout.Duration,
		Cooldown:       a.cfg.Risk.Cooldown.Duration,
	}, deps.Placers, ledger, deps.ExecutionStore, a.logger)

	scan := scanner.New(
		deps.Sources,
		matcher,
		detector,
		execGuard,
		deps.SignalBus,
		deps.SnapshotCache,
		scanner.Settings{
			ScanInterval:   a.cfg.Scanner.Interval.Duration,
			MinProfitCents: a.cfg.Scanner.MinProfitCents,
			MatchThreshold: a.cfg.Matcher.Threshold,
			AutoExecute:    autoExecute,
			MaxPositionUSD: a.cfg.Scanner.MaxPositionUSD,
		},
		a.logger,
	)

	g, ctx := errgroup.WithContext(ctx)

	// --- Alerts ---
	if deps.Notifier.HasSenders() {
		alerts := notify.NewAlerts(deps.SignalBus, scanner.SnapshotChannel, deps.Notifier, a.logger)
		execGuard.SetOnComplete(alerts.ExecutionCompleted)
		if deps.SignalBus != nil {
			g.Go(func() error {
				return alerts.Run(ctx)
			})
		}
	}

	// --- Scan loop ---
	g.Go(func() error {
		return scan.Run(ctx)
	})

	// --- HTTP + WebSocket server ---
	if a.cfg.Server.Enabled {
		hub := ws.NewHub(deps.SignalBus, scanner.SnapshotChannel, scan.Snapshot, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})

		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
		}, server.Handlers{
			Health:     handler.NewHealthHandler(a.logger),
			Scan:       handler.NewScanHandler(scan, a.logger),
			Settings:   handler.NewSettingsHandler(scan, tradeMode(a.cfg.Mode), a.logger),
			Executions: handler.NewExecutionsHandler(execGuard, deps.ExecutionStore, a.logger),
			Risk:       handler.NewRiskHandler(ledger, a.logger),
		}, hub, deps.RateLimiter, a.logger)

		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// --- Execution archive ---
	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}

	return g.Wait()
}

// feeModel maps the configured fee model name onto its implementation.
// Validate has already rejected unknown names; settlement is the default.
func feeModel(cfg config.DetectorConfig) detect.FeeModel {
	if strings.EqualFold(cfg.FeeModel, "flat") {
		return detect.FlatFeeModel{PerLeg: cfg.FlatFeeCents / 100}
	}
	return detect.SettlementFeeModel{}
}
