package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polymathbot/polymath/internal/domain"
)

const (
	// FeeRate is the effective fee rate on winning Polymarket settlements
	// used for worst-case cost accounting.
	FeeRate = 0.02

	// depthMarkets bounds per-cycle book calls; markets past the bound
	// stay at zero depth and are never executable.
	depthMarkets = 100

	depthWorkers = 8
)

// Source exposes Polymarket's active binary markets as the scanner's
// Polymarket feed. Gamma provides discovery and quotes; the CLOB book
// endpoint provides depth for the highest-volume slice.
type Source struct {
	gamma  *GammaClient
	clob   *ClobClient // nil disables depth enrichment
	logger *slog.Logger
}

// NewSource wraps the two API clients. clob may be nil.
func NewSource(gamma *GammaClient, clob *ClobClient, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		gamma:  gamma,
		clob:   clob,
		logger: logger.With(slog.String("component", "polymarket_source")),
	}
}

// Venue implements domain.MarketSource.
func (s *Source) Venue() domain.Venue { return domain.VenuePolymarket }

// FetchActiveMarkets lists open binary markets with live books, then
// enriches the top-volume slice with orderbook depth.
func (s *Source) FetchActiveMarkets(ctx context.Context) ([]domain.Market, error) {
	raw, err := s.gamma.activeMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAdapter, err)
	}

	markets := make([]domain.Market, 0, len(raw))
	for i := range raw {
		m, ok := toDomain(&raw[i])
		if !ok {
			continue
		}
		markets = append(markets, m)
	}

	s.enrichDepth(ctx, markets)

	s.logger.Debug("fetched polymarket markets",
		slog.Int("raw", len(raw)),
		slog.Int("binary", len(markets)),
	)
	return markets, nil
}

// enrichDepth fills YesDepth/NoDepth from the CLOB book for the top
// markets by volume. Gamma already returns them volume-sorted.
func (s *Source) enrichDepth(ctx context.Context, markets []domain.Market) {
	if s.clob == nil {
		return
	}
	n := len(markets)
	if n > depthMarkets {
		n = depthMarkets
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(depthWorkers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			markets[i].YesDepth = s.askDepth(gctx, markets[i].TokenIDs[0])
			markets[i].NoDepth = s.askDepth(gctx, markets[i].TokenIDs[1])
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors
}

// askDepth returns the size resting at the best ask for a token, which is
// what a marketable buy can take immediately.
func (s *Source) askDepth(ctx context.Context, tokenID string) float64 {
	if tokenID == "" {
		return 0
	}
	book, err := s.clob.book(ctx, tokenID)
	if err != nil {
		s.logger.Debug("book fetch failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
		return 0
	}

	bestPrice := 0.0
	bestSize := 0.0
	for _, l := range book.Asks {
		p, _ := strconv.ParseFloat(l.Price, 64)
		if p <= 0 {
			continue
		}
		if bestPrice == 0 || p < bestPrice {
			bestPrice = p
			bestSize, _ = strconv.ParseFloat(l.Size, 64)
		}
	}
	return bestSize
}

// toDomain converts a Gamma market, rejecting anything that is not a
// two-outcome market with a live book and both token IDs.
func toDomain(m *gammaMarket) (domain.Market, bool) {
	if m.Closed || !bool(m.Active) || !m.EnableOrderBook {
		return domain.Market{}, false
	}
	if len(m.Outcomes) != 2 || len(m.ClobTokenIDs) != 2 {
		return domain.Market{}, false
	}

	yesPrice := 0.0
	if len(m.OutcomePrices) == 2 {
		yesPrice, _ = strconv.ParseFloat(m.OutcomePrices[0], 64)
	}
	if yesPrice <= 0 || yesPrice >= 1 {
		return domain.Market{}, false
	}

	var expiration *time.Time
	if t, err := time.Parse(time.RFC3339, m.EndDateISO); err == nil {
		expiration = &t
	}

	volume, _ := strconv.ParseFloat(m.Volume, 64)

	dm := domain.Market{
		Venue:      domain.VenuePolymarket,
		ID:         m.ID,
		Title:      m.Question,
		EventTitle: m.EventTitle,
		YesPrice:   yesPrice,
		NoPrice:    1 - yesPrice,
		TokenIDs:   [2]string{m.ClobTokenIDs[0], m.ClobTokenIDs[1]},
		Expiration: expiration,
		Volume:     volume,
		URL:        "https://polymarket.com/market/" + m.Slug,
		Fees: domain.FeeSchedule{
			Kind: domain.FeeKindSettlement,
			Rate: FeeRate,
		},
	}

	// Best bid/ask quote the YES token; the NO book mirrors it.
	if m.BestAsk > 0 && m.BestAsk < 1 {
		dm.YesAsk = m.BestAsk
		dm.NoBid = 1 - m.BestAsk
	}
	if m.BestBid > 0 && m.BestBid < 1 {
		dm.YesBid = m.BestBid
		dm.NoAsk = 1 - m.BestBid
	}
	return dm, true
}
