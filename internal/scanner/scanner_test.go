package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/polymathbot/polymath/internal/detect"
	"github.com/polymathbot/polymath/internal/domain"
	"github.com/polymathbot/polymath/internal/matching"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource returns its next queued response on each fetch.
type fakeSource struct {
	venue   domain.Venue
	markets [][]domain.Market
	errs    []error
	calls   int
}

func (f *fakeSource) Venue() domain.Venue { return f.venue }

func (f *fakeSource) FetchActiveMarkets(context.Context) ([]domain.Market, error) {
	i := f.calls
	f.calls++
	var markets []domain.Market
	var err error
	if i < len(f.markets) {
		markets = f.markets[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return markets, err
}

// fakeBus collects published payloads on a channel so tests can wait for the
// scanner's fire-and-forget publish goroutine.
type fakeBus struct {
	published chan []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: make(chan []byte, 8)}
}

func (b *fakeBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.published <- payload
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.published, nil
}

type fakeCache struct {
	markets map[domain.Venue][]domain.Market
	at      map[domain.Venue]time.Time
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		markets: make(map[domain.Venue][]domain.Market),
		at:      make(map[domain.Venue]time.Time),
	}
}

func (c *fakeCache) PutMarkets(_ context.Context, venue domain.Venue, markets []domain.Market) error {
	c.markets[venue] = markets
	c.at[venue] = time.Now()
	return nil
}

func (c *fakeCache) GetMarkets(_ context.Context, venue domain.Venue) ([]domain.Market, time.Time, error) {
	m, ok := c.markets[venue]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	return m, c.at[venue], nil
}

func kalshiBitcoin() domain.Market {
	return domain.Market{
		Venue:    domain.VenueKalshi,
		ID:       "KXBTC-100K",
		Title:    "Will Bitcoin reach $100,000 by December 31?",
		YesAsk:   0.40,
		NoAsk:    0.62,
		YesDepth: 100,
		NoDepth:  100,
		Fees:     domain.FeeSchedule{Kind: domain.FeeKindSettlement, Rate: 0},
	}
}

func polyBitcoin() domain.Market {
	return domain.Market{
		Venue:    domain.VenuePolymarket,
		ID:       "0xabc",
		Title:    "Will Bitcoin reach $100,000 by December 31?",
		TokenIDs: [2]string{"tok-yes", "tok-no"},
		YesAsk:   0.47,
		NoAsk:    0.55,
		YesDepth: 100,
		NoDepth:  100,
		Fees:     domain.FeeSchedule{Kind: domain.FeeKindFlat, Rate: 0},
	}
}

func testScanner(sources []domain.MarketSource, bus domain.SignalBus, cache domain.SnapshotCache, settings Settings) *Scanner {
	matcher := matching.New(matching.Config{Threshold: settings.MatchThreshold, Logger: testLogger()})
	detector := detect.New(detect.FlatFeeModel{}, testLogger())
	return New(sources, matcher, detector, nil, bus, cache, settings, testLogger())
}

func defaultSettings() Settings {
	return Settings{
		ScanInterval:   time.Second,
		MinProfitCents: 2,
		MatchThreshold: 80,
		MaxPositionUSD: 100,
	}
}

func TestScanCycleBuildsSnapshot(t *testing.T) {
	kalshi := &fakeSource{venue: domain.VenueKalshi, markets: [][]domain.Market{{kalshiBitcoin()}}}
	poly := &fakeSource{venue: domain.VenuePolymarket, markets: [][]domain.Market{{polyBitcoin()}}}
	s := testScanner([]domain.MarketSource{kalshi, poly}, nil, nil, defaultSettings())

	s.scan(context.Background())

	snap := s.Snapshot()
	if snap.Stats.KalshiMarkets != 1 || snap.Stats.PolymarketMarkets != 1 {
		t.Errorf("market counts = %d/%d, want 1/1", snap.Stats.KalshiMarkets, snap.Stats.PolymarketMarkets)
	}
	if snap.Stats.MatchedPairs != 1 {
		t.Fatalf("MatchedPairs = %d, want 1", snap.Stats.MatchedPairs)
	}
	// YES at 0.40 on Kalshi + NO at 0.55 on Polymarket costs 0.95, five
	// cents under the $1 payout.
	if snap.Stats.ActiveOpportunities != 1 {
		t.Fatalf("ActiveOpportunities = %d, want 1", snap.Stats.ActiveOpportunities)
	}
	opp := snap.Opportunities[0]
	if opp.Direction != domain.DirectionKalshiYesPolyNo {
		t.Errorf("Direction = %s", opp.Direction)
	}
	if opp.Profit < 0.049 || opp.Profit > 0.051 {
		t.Errorf("Profit = %.4f, want 0.05", opp.Profit)
	}
	if snap.Stats.TotalScans != 1 {
		t.Errorf("TotalScans = %d, want 1", snap.Stats.TotalScans)
	}
	if snap.Stats.KalshiStale || snap.Stats.PolymarketStale {
		t.Error("fresh fetches flagged stale")
	}
}

func TestScanFallsBackToStaleSnapshot(t *testing.T) {
	kalshi := &fakeSource{
		venue:   domain.VenueKalshi,
		markets: [][]domain.Market{{kalshiBitcoin()}, nil},
		errs:    []error{nil, errors.New("503 service unavailable")},
	}
	poly := &fakeSource{venue: domain.VenuePolymarket, markets: [][]domain.Market{{polyBitcoin()}, {polyBitcoin()}}}
	s := testScanner([]domain.MarketSource{kalshi, poly}, nil, nil, defaultSettings())

	ctx := context.Background()
	s.scan(ctx) // good cycle seeds lastGood
	s.scan(ctx) // kalshi fetch fails

	snap := s.Snapshot()
	if !snap.Stats.KalshiStale {
		t.Error("KalshiStale not set after failed fetch")
	}
	if snap.Stats.PolymarketStale {
		t.Error("PolymarketStale set for a healthy venue")
	}
	// The stale snapshot still matches and detects.
	if snap.Stats.KalshiMarkets != 1 || snap.Stats.MatchedPairs != 1 {
		t.Errorf("stale cycle kept %d markets, %d pairs; want 1 and 1",
			snap.Stats.KalshiMarkets, snap.Stats.MatchedPairs)
	}
	found := false
	for _, e := range snap.Stats.Errors {
		if strings.Contains(e, "503") {
			found = true
		}
	}
	if !found {
		t.Errorf("fetch error missing from tail: %v", snap.Stats.Errors)
	}
}

func TestScanPublishesSnapshot(t *testing.T) {
	kalshi := &fakeSource{venue: domain.VenueKalshi, markets: [][]domain.Market{{kalshiBitcoin()}}}
	poly := &fakeSource{venue: domain.VenuePolymarket, markets: [][]domain.Market{{polyBitcoin()}}}
	bus := newFakeBus()
	s := testScanner([]domain.MarketSource{kalshi, poly}, bus, nil, defaultSettings())

	s.scan(context.Background())

	select {
	case payload := <-bus.published:
		var snap domain.ScanSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			t.Fatalf("published payload not a snapshot: %v", err)
		}
		if snap.Stats.ActiveOpportunities != 1 {
			t.Errorf("published ActiveOpportunities = %d, want 1", snap.Stats.ActiveOpportunities)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot published")
	}
}

func TestScanRefreshesCache(t *testing.T) {
	kalshi := &fakeSource{venue: domain.VenueKalshi, markets: [][]domain.Market{{kalshiBitcoin()}}}
	poly := &fakeSource{venue: domain.VenuePolymarket, markets: [][]domain.Market{{polyBitcoin()}}}
	cache := newFakeCache()
	s := testScanner([]domain.MarketSource{kalshi, poly}, nil, cache, defaultSettings())

	s.scan(context.Background())

	// Cache writes are fire-and-forget; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(cache.markets[domain.VenueKalshi]) == 1 && len(cache.markets[domain.VenuePolymarket]) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("cache never refreshed with fresh snapshots")
}

func TestWarmSeedsStaleFallback(t *testing.T) {
	cache := newFakeCache()
	cache.PutMarkets(context.Background(), domain.VenueKalshi, []domain.Market{kalshiBitcoin()})

	kalshi := &fakeSource{venue: domain.VenueKalshi, errs: []error{errors.New("down")}}
	poly := &fakeSource{venue: domain.VenuePolymarket, markets: [][]domain.Market{{polyBitcoin()}}}
	s := testScanner([]domain.MarketSource{kalshi, poly}, nil, cache, defaultSettings())

	ctx := context.Background()
	s.warm(ctx)
	s.scan(ctx)

	snap := s.Snapshot()
	if !snap.Stats.KalshiStale {
		t.Error("KalshiStale not set")
	}
	if snap.Stats.KalshiMarkets != 1 {
		t.Errorf("KalshiMarkets = %d, want 1 from the warmed cache", snap.Stats.KalshiMarkets)
	}
}

func TestUpdateSettingsAppliesAtCycleBoundary(t *testing.T) {
	s := testScanner(nil, nil, nil, defaultSettings())

	next := defaultSettings()
	next.ScanInterval = 10 * time.Second
	next.MinProfitCents = 5
	next.MatchThreshold = 90
	s.UpdateSettings(next)

	// Staged, not yet in effect.
	if got := s.Settings().MinProfitCents; got != 2 {
		t.Errorf("MinProfitCents = %.1f before boundary, want 2", got)
	}

	if interval := s.applyPending(); interval != 10*time.Second {
		t.Errorf("applyPending returned %s, want 10s", interval)
	}
	got := s.Settings()
	if got.MinProfitCents != 5 || got.MatchThreshold != 90 {
		t.Errorf("settings after boundary = %+v, want staged values", got)
	}
	if s.matcher.Threshold() != 90 {
		t.Errorf("matcher threshold = %.0f, want 90", s.matcher.Threshold())
	}
}

func TestUpdateSettingsSecondStageReplacesFirst(t *testing.T) {
	s := testScanner(nil, nil, nil, defaultSettings())

	first := defaultSettings()
	first.MinProfitCents = 5
	s.UpdateSettings(first)

	second := defaultSettings()
	second.MinProfitCents = 9
	s.UpdateSettings(second)

	s.applyPending()
	if got := s.Settings().MinProfitCents; got != 9 {
		t.Errorf("MinProfitCents = %.1f, want the later staged value 9", got)
	}
}

func TestStagedSettingsSeesPendingUpdate(t *testing.T) {
	s := testScanner(nil, nil, nil, defaultSettings())

	if got := s.StagedSettings(); got != s.Settings() {
		t.Errorf("StagedSettings = %+v, want applied settings when nothing is staged", got)
	}

	next := defaultSettings()
	next.MinProfitCents = 7
	s.UpdateSettings(next)

	if got := s.StagedSettings().MinProfitCents; got != 7 {
		t.Errorf("staged MinProfitCents = %.1f, want 7 before the cycle boundary", got)
	}
	if got := s.Settings().MinProfitCents; got == 7 {
		t.Error("Settings picked up the staged value before applyPending")
	}

	s.applyPending()
	if got := s.StagedSettings().MinProfitCents; got != 7 {
		t.Errorf("staged MinProfitCents = %.1f after apply, want 7", got)
	}
}

func TestMinProfitFiltersOpportunities(t *testing.T) {
	kalshi := &fakeSource{venue: domain.VenueKalshi, markets: [][]domain.Market{{kalshiBitcoin()}}}
	poly := &fakeSource{venue: domain.VenuePolymarket, markets: [][]domain.Market{{polyBitcoin()}}}

	settings := defaultSettings()
	settings.MinProfitCents = 6 // the pair only yields 5 cents
	s := testScanner([]domain.MarketSource{kalshi, poly}, nil, nil, settings)

	s.scan(context.Background())

	if got := s.Snapshot().Stats.ActiveOpportunities; got != 0 {
		t.Errorf("ActiveOpportunities = %d, want 0 below the profit floor", got)
	}
}
