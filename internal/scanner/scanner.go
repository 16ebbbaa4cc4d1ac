// Package scanner drives the periodic fetch, match, detect, execute cycle
// and publishes the resulting snapshot for the dashboard.
package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polymathbot/polymath/internal/detect"
	"github.com/polymathbot/polymath/internal/domain"
	"github.com/polymathbot/polymath/internal/guard"
	"github.com/polymathbot/polymath/internal/matching"
)

const (
	// SnapshotChannel is the signal-bus channel scan snapshots are
	// published on after every cycle.
	SnapshotChannel = "polymath.scan"

	defaultInterval = 5 * time.Second
	fetchTimeout    = 30 * time.Second
	publishTimeout  = 5 * time.Second
	maxErrorTail    = 20
)

// Settings are the runtime-tunable scan parameters. Updates are staged and
// applied as a unit at the start of the next cycle, so one cycle never sees
// a half-applied settings change.
type Settings struct {
	ScanInterval   time.Duration `json:"scan_interval"`
	MinProfitCents float64       `json:"min_profit_cents"`
	MatchThreshold float64       `json:"match_threshold"`
	AutoExecute    bool          `json:"auto_execute"`
	MaxPositionUSD float64       `json:"max_position_usd"`
}

// Scanner owns the scan loop. Exactly one cycle runs at a time: cycles are
// executed sequentially on the Run goroutine, and a cycle that overruns the
// interval is followed immediately by the next one rather than overlapped.
type Scanner struct {
	sources  []domain.MarketSource
	matcher  *matching.Matcher
	detector *detect.Detector
	guard    *guard.Guard
	bus      domain.SignalBus    // optional
	cache    domain.SnapshotCache // optional
	logger   *slog.Logger
	now      func() time.Time

	settingsMu sync.Mutex
	settings   Settings
	pending    *Settings

	stateMu    sync.RWMutex
	snapshot   domain.ScanSnapshot
	lastGood   map[domain.Venue][]domain.Market
	lastGoodAt map[domain.Venue]time.Time
	totalScans int
	running    bool
	errTail    []string
}

// New creates a Scanner. bus and cache may be nil; execution is skipped
// entirely when g is nil.
func New(
	sources []domain.MarketSource,
	matcher *matching.Matcher,
	detector *detect.Detector,
	g *guard.Guard,
	bus domain.SignalBus,
	cache domain.SnapshotCache,
	settings Settings,
	logger *slog.Logger,
) *Scanner {
	if settings.ScanInterval <= 0 {
		settings.ScanInterval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		sources:    sources,
		matcher:    matcher,
		detector:   detector,
		guard:      g,
		bus:        bus,
		cache:      cache,
		logger:     logger.With(slog.String("component", "scanner")),
		now:        time.Now,
		settings:   settings,
		lastGood:   make(map[domain.Venue][]domain.Market),
		lastGoodAt: make(map[domain.Venue]time.Time),
	}
}

// Settings returns the settings in effect for the current cycle.
func (s *Scanner) Settings() Settings {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	return s.settings
}

// StagedSettings returns the settings the next cycle will run with: the
// staged update when one is waiting, otherwise the applied settings.
// Partial updates must merge onto this, not onto Settings, or a second
// patch inside one scan interval would revert the first.
func (s *Scanner) StagedSettings() Settings {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	if s.pending != nil {
		return *s.pending
	}
	return s.settings
}

// UpdateSettings stages new settings. They take effect as a unit at the
// start of the next cycle; a second update before then replaces the first.
func (s *Scanner) UpdateSettings(next Settings) {
	if next.ScanInterval <= 0 {
		next.ScanInterval = defaultInterval
	}
	s.settingsMu.Lock()
	s.pending = &next
	s.settingsMu.Unlock()
	s.logger.Info("settings staged",
		slog.Duration("scan_interval", next.ScanInterval),
		slog.Float64("min_profit_cents", next.MinProfitCents),
		slog.Float64("match_threshold", next.MatchThreshold),
		slog.Bool("auto_execute", next.AutoExecute),
		slog.Float64("max_position_usd", next.MaxPositionUSD),
	)
}

// Snapshot returns the last published snapshot.
func (s *Scanner) Snapshot() domain.ScanSnapshot {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.snapshot
}

// Run executes scan cycles until ctx is cancelled. It blocks.
func (s *Scanner) Run(ctx context.Context) error {
	s.warm(ctx)

	s.stateMu.Lock()
	s.running = true
	s.stateMu.Unlock()
	defer func() {
		s.stateMu.Lock()
		s.running = false
		s.stateMu.Unlock()
	}()

	interval := s.applyPending()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scanner stopped")
			return ctx.Err()
		case <-ticker.C:
			if next := s.applyPending(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
			s.scan(ctx)
		}
	}
}

// warm seeds the stale-fallback state from the snapshot cache so a restart
// does not begin from an empty dashboard when a venue is down.
func (s *Scanner) warm(ctx context.Context) {
	if s.cache == nil {
		return
	}
	for _, src := range s.sources {
		venue := src.Venue()
		markets, at, err := s.cache.GetMarkets(ctx, venue)
		if err != nil || len(markets) == 0 {
			continue
		}
		s.stateMu.Lock()
		s.lastGood[venue] = markets
		s.lastGoodAt[venue] = at
		s.stateMu.Unlock()
		s.logger.Info("warmed snapshot from cache",
			slog.String("venue", string(venue)),
			slog.Int("markets", len(markets)),
			slog.Time("cached_at", at),
		)
	}
}

// applyPending swaps in staged settings and pushes the pieces owned by the
// matcher and the guard. Returns the interval now in effect.
func (s *Scanner) applyPending() time.Duration {
	s.settingsMu.Lock()
	if s.pending != nil {
		s.settings = *s.pending
		s.pending = nil
		if s.matcher != nil {
			s.matcher.SetThreshold(s.settings.MatchThreshold)
		}
		if s.guard != nil {
			s.guard.SetAutoExecute(s.settings.AutoExecute)
			s.guard.SetMaxPosition(s.settings.MaxPositionUSD)
		}
	}
	interval := s.settings.ScanInterval
	s.settingsMu.Unlock()
	return interval
}

// scan runs one full cycle.
func (s *Scanner) scan(ctx context.Context) {
	cfg := s.Settings()
	started := s.now().UTC()

	markets, stale, fetchErrs := s.fetchAll(ctx)

	kalshi := markets[domain.VenueKalshi]
	poly := markets[domain.VenuePolymarket]

	pairs := s.matcher.Match(kalshi, poly)
	opps := s.detector.DetectAll(pairs, detect.Params{
		MinProfit:   cfg.MinProfitCents / 100,
		MaxPosition: cfg.MaxPositionUSD,
		Now:         started,
	})

	snap := s.buildSnapshot(cfg, started, kalshi, poly, pairs, opps, stale, fetchErrs)

	s.stateMu.Lock()
	s.snapshot = snap
	s.stateMu.Unlock()

	s.publish(snap)

	s.logger.Info("scan complete",
		slog.Int("kalshi_markets", len(kalshi)),
		slog.Int("polymarket_markets", len(poly)),
		slog.Int("matched_pairs", len(pairs)),
		slog.Int("opportunities", len(opps)),
		slog.Duration("elapsed", s.now().Sub(started)),
	)

	s.execute(ctx, cfg, opps)
}

// fetchAll queries every venue concurrently. A venue whose fetch fails
// falls back to its last good snapshot and is flagged stale; detection
// still runs so the dashboard keeps showing data, but staleness is always
// visible rather than silently papered over.
func (s *Scanner) fetchAll(ctx context.Context) (map[domain.Venue][]domain.Market, map[domain.Venue]bool, []string) {
	type result struct {
		venue   domain.Venue
		markets []domain.Market
		err     error
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	results := make([]result, len(s.sources))
	g, gctx := errgroup.WithContext(fetchCtx)
	for i, src := range s.sources {
		i, src := i, src
		g.Go(func() error {
			markets, err := src.FetchActiveMarkets(gctx)
			results[i] = result{venue: src.Venue(), markets: markets, err: err}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // per-venue errors are carried in results

	markets := make(map[domain.Venue][]domain.Market, len(results))
	stale := make(map[domain.Venue]bool, len(results))
	var errs []string

	for _, r := range results {
		if r.err == nil {
			markets[r.venue] = r.markets
			s.stateMu.Lock()
			s.lastGood[r.venue] = r.markets
			s.lastGoodAt[r.venue] = s.now().UTC()
			s.stateMu.Unlock()
			s.refreshCache(r.venue, r.markets)
			continue
		}

		s.stateMu.RLock()
		prior := s.lastGood[r.venue]
		priorAt := s.lastGoodAt[r.venue]
		s.stateMu.RUnlock()

		markets[r.venue] = prior
		stale[r.venue] = true
		errs = append(errs, string(r.venue)+": "+r.err.Error())
		s.logger.Warn("fetch failed, using stale snapshot",
			slog.String("venue", string(r.venue)),
			slog.Int("stale_markets", len(prior)),
			slog.Time("stale_as_of", priorAt),
			slog.String("error", r.err.Error()),
		)
	}
	return markets, stale, errs
}

// refreshCache writes a fresh venue snapshot to the cache without blocking
// the cycle on cache availability.
func (s *Scanner) refreshCache(venue domain.Venue, markets []domain.Market) {
	if s.cache == nil || len(markets) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.cache.PutMarkets(ctx, venue, markets); err != nil {
			s.logger.Warn("snapshot cache refresh failed",
				slog.String("venue", string(venue)),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func (s *Scanner) buildSnapshot(
	cfg Settings,
	started time.Time,
	kalshi, poly []domain.Market,
	pairs []domain.MatchedPair,
	opps []domain.Opportunity,
	stale map[domain.Venue]bool,
	fetchErrs []string,
) domain.ScanSnapshot {
	s.stateMu.Lock()
	s.totalScans++
	total := s.totalScans
	s.errTail = append(s.errTail, fetchErrs...)
	if len(s.errTail) > maxErrorTail {
		s.errTail = s.errTail[len(s.errTail)-maxErrorTail:]
	}
	tail := make([]string, len(s.errTail))
	copy(tail, s.errTail)
	running := s.running
	s.stateMu.Unlock()

	halted := false
	if s.guard != nil {
		halted = s.guard.Ledger().Halted()
	}

	return domain.ScanSnapshot{
		Stats: domain.ScanStats{
			KalshiMarkets:       len(kalshi),
			PolymarketMarkets:   len(poly),
			MatchedPairs:        len(pairs),
			ActiveOpportunities: len(opps),
			TotalScans:          total,
			LastScan:            started,
			KalshiStale:         stale[domain.VenueKalshi],
			PolymarketStale:     stale[domain.VenuePolymarket],
			Running:             running,
			ScanInterval:        int(cfg.ScanInterval / time.Second),
			AutoExecute:         cfg.AutoExecute,
			RiskHalted:          halted,
			Errors:              tail,
		},
		MatchedPairs:  pairs,
		Opportunities: opps,
	}
}

// publish pushes the snapshot onto the signal bus without blocking the scan
// loop. A slow or down bus loses a snapshot, never delays the next cycle.
func (s *Scanner) publish(snap domain.ScanSnapshot) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		s.logger.Error("snapshot marshal failed", slog.String("error", err.Error()))
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.bus.Publish(ctx, SnapshotChannel, payload); err != nil {
			s.logger.Warn("snapshot publish failed", slog.String("error", err.Error()))
		}
	}()
}

// execute hands executable opportunities to the guard one at a time, best
// first. The guard re-checks every limit itself; the scanner just stops
// early once execution is disabled or the day is halted.
func (s *Scanner) execute(ctx context.Context, cfg Settings, opps []domain.Opportunity) {
	if s.guard == nil || !cfg.AutoExecute {
		return
	}
	for _, opp := range opps {
		if !opp.Executable() {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		rec, err := s.guard.Execute(ctx, opp)
		if err != nil {
			if errIsTerminal(err) {
				return
			}
			continue
		}
		s.logger.Info("execution attempt finished",
			slog.String("execution_id", rec.ID),
			slog.String("state", string(rec.State)),
		)
	}
}

// errIsTerminal reports refusals that will also block every later attempt
// in this cycle.
func errIsTerminal(err error) bool {
	return errors.Is(err, domain.ErrRiskHalted) || errors.Is(err, domain.ErrExecutionDisabled)
}
