package kalshi

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polymathbot/polymath/internal/domain"
)

const (
	// depthMarkets bounds how many markets get a per-ticker orderbook call
	// each cycle. Markets beyond the bound keep zero depth, which leaves
	// them visible to detection but never executable.
	depthMarkets = 150

	depthWorkers = 8
)

// Source exposes Kalshi's open markets as the scanner's Kalshi feed.
type Source struct {
	client *Client
	logger *slog.Logger
}

// NewSource wraps an authenticated client.
func NewSource(client *Client, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		client: client,
		logger: logger.With(slog.String("component", "kalshi_source")),
	}
}

// Venue implements domain.MarketSource.
func (s *Source) Venue() domain.Venue { return domain.VenueKalshi }

// FetchActiveMarkets lists open markets with two-sided quotes, normalized
// to probabilities, then enriches the highest-volume slice with orderbook
// depth.
func (s *Source) FetchActiveMarkets(ctx context.Context) ([]domain.Market, error) {
	raw, err := s.client.openMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAdapter, err)
	}

	markets := make([]domain.Market, 0, len(raw))
	for _, m := range raw {
		if m.Status != "open" || m.YesAsk <= 0 || m.NoAsk <= 0 {
			continue
		}
		markets = append(markets, toDomain(m))
	}

	s.enrichDepth(ctx, markets)

	s.logger.Debug("fetched kalshi markets",
		slog.Int("raw", len(raw)),
		slog.Int("quoted", len(markets)),
	)
	return markets, nil
}

// enrichDepth fills YesDepth/NoDepth for the top markets by volume.
func (s *Source) enrichDepth(ctx context.Context, markets []domain.Market) {
	idx := make([]int, len(markets))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return markets[idx[a]].Volume > markets[idx[b]].Volume
	})
	if len(idx) > depthMarkets {
		idx = idx[:depthMarkets]
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(depthWorkers)
	for _, i := range idx {
		i := i
		g.Go(func() error {
			book, err := s.client.orderbook(gctx, markets[i].ID)
			if err != nil {
				s.logger.Debug("orderbook fetch failed",
					slog.String("ticker", markets[i].ID),
					slog.String("error", err.Error()),
				)
				return nil
			}
			// Buying YES crosses against resting NO bids and vice versa,
			// so available size on each side comes from the opposite book.
			markets[i].YesDepth = bestQuantity(book.No)
			markets[i].NoDepth = bestQuantity(book.Yes)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors
}

// bestQuantity returns the size at the best (highest) bid level.
func bestQuantity(levels []priceLevel) float64 {
	best := priceLevel{}
	for _, l := range levels {
		if l.price() > best.price() {
			best = l
		}
	}
	return float64(best.quantity())
}

func toDomain(m apiMarket) domain.Market {
	title := m.Title
	if m.Subtitle != "" {
		title = m.Title + " " + m.Subtitle
	}

	var expiration *time.Time
	if t, err := time.Parse(time.RFC3339, m.ExpirationTime); err == nil {
		expiration = &t
	}

	last := m.LastPrice / 100
	return domain.Market{
		Venue:      domain.VenueKalshi,
		ID:         m.Ticker,
		Title:      title,
		EventTitle: m.EventTicker,
		// Topic is left empty; the matcher buckets both venues with the
		// same keyword tagger so categories line up across venues.
		YesPrice:   last,
		NoPrice:    1 - last,
		YesAsk:     m.YesAsk / 100,
		NoAsk:      m.NoAsk / 100,
		YesBid:     m.YesBid / 100,
		NoBid:      m.NoBid / 100,
		Expiration: expiration,
		Volume:     float64(m.Volume),
		URL:        fmt.Sprintf("https://kalshi.com/markets/%s", strings.ToLower(m.EventTicker)),
		Fees: domain.FeeSchedule{
			Kind: domain.FeeKindSettlement,
			Rate: SettlementFeeRate,
		},
	}
}
