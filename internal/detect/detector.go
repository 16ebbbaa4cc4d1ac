// Package detect computes guaranteed-profit conditions from two
// independently quoted markets believed to reference the same event.
package detect

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/polymathbot/polymath/internal/domain"
)

// Params are the per-cycle inputs to detection. Detection itself is pure:
// the same pair and params always produce the same opportunities.
type Params struct {
	// MinProfit is the minimum guaranteed profit per contract, in currency
	// units (e.g. 0.02 for two cents).
	MinProfit float64

	// MaxPosition caps the tradable size in contracts.
	MaxPosition float64

	// Now stamps DetectedAt on emitted opportunities.
	Now time.Time
}

// Detector evaluates matched pairs in both directions.
type Detector struct {
	fees   FeeModel
	logger *slog.Logger
}

// New creates a Detector. A nil fee model defaults to the settlement model.
func New(fees FeeModel, logger *slog.Logger) *Detector {
	if fees == nil {
		fees = SettlementFeeModel{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		fees:   fees,
		logger: logger.With(slog.String("component", "detector")),
	}
}

// DetectAll runs Detect over every pair and returns the opportunities
// sorted by descending ROI (ties broken by id for determinism).
func (d *Detector) DetectAll(pairs []domain.MatchedPair, p Params) []domain.Opportunity {
	var opps []domain.Opportunity
	for i := range pairs {
		opps = append(opps, d.Detect(pairs[i], p)...)
	}
	sortOpportunities(opps)
	return opps
}

// Detect evaluates one pair in both directions and returns 0, 1, or 2
// opportunities. A computed cost at or below zero, or a negative depth,
// indicates bad upstream data: the direction is dropped and logged, never
// surfaced.
func (d *Detector) Detect(pair domain.MatchedPair, p Params) []domain.Opportunity {
	var opps []domain.Opportunity

	// Direction A: buy YES on Kalshi, buy NO on Polymarket.
	if opp, ok := d.checkDirection(pair, domain.DirectionKalshiYesPolyNo,
		pair.Kalshi.BuyYesPrice(), pair.Polymarket.BuyNoPrice(),
		pair.Kalshi.YesDepth, pair.Polymarket.NoDepth,
		pair.Kalshi.Fees, pair.Polymarket.Fees, p); ok {
		opps = append(opps, opp)
	}

	// Direction B: buy YES on Polymarket, buy NO on Kalshi.
	if opp, ok := d.checkDirection(pair, domain.DirectionPolyYesKalshiNo,
		pair.Polymarket.BuyYesPrice(), pair.Kalshi.BuyNoPrice(),
		pair.Polymarket.YesDepth, pair.Kalshi.NoDepth,
		pair.Polymarket.Fees, pair.Kalshi.Fees, p); ok {
		opps = append(opps, opp)
	}

	return opps
}

func (d *Detector) checkDirection(
	pair domain.MatchedPair,
	dir domain.Direction,
	yesPrice, noPrice float64,
	yesDepth, noDepth float64,
	yesFees, noFees domain.FeeSchedule,
	p Params,
) (domain.Opportunity, bool) {
	if yesPrice <= 0 || noPrice <= 0 {
		return domain.Opportunity{}, false
	}
	if yesPrice > 1 || noPrice > 1 {
		d.logInconsistency(pair, dir, "price outside [0,1]")
		return domain.Opportunity{}, false
	}
	if yesDepth < 0 || noDepth < 0 {
		d.logInconsistency(pair, dir, "negative depth")
		return domain.Opportunity{}, false
	}

	cost := yesPrice + noPrice + d.fees.WorstCaseFee(yesPrice, noPrice, yesFees, noFees)
	if cost <= 0 {
		d.logInconsistency(pair, dir, "non-positive cost")
		return domain.Opportunity{}, false
	}

	profit := 1.0 - cost
	if profit < p.MinProfit {
		return domain.Opportunity{}, false
	}

	// A zero-depth leg makes the opportunity visible but not executable.
	size := 0.0
	if yesDepth > 0 && noDepth > 0 {
		size = yesDepth
		if noDepth < size {
			size = noDepth
		}
		if p.MaxPosition > 0 && size > p.MaxPosition {
			size = p.MaxPosition
		}
	}

	kalshiPrice, polyPrice := yesPrice, noPrice
	if dir == domain.DirectionPolyYesKalshiNo {
		kalshiPrice, polyPrice = noPrice, yesPrice
	}

	var expiry *time.Time
	if pair.Kalshi.Expiration != nil {
		expiry = pair.Kalshi.Expiration
	} else {
		expiry = pair.Polymarket.Expiration
	}

	return domain.Opportunity{
		ID:              fmt.Sprintf("%s:%s:%s", dir, pair.KalshiID, pair.PolymarketID),
		Pair:            pair,
		Direction:       dir,
		KalshiPrice:     kalshiPrice,
		PolymarketPrice: polyPrice,
		Cost:            cost,
		Profit:          profit,
		ROI:             profit / cost * 100,
		MaxSize:         size,
		Similarity:      pair.Similarity,
		Expiration:      expiry,
		DetectedAt:      p.Now,
	}, true
}

func (d *Detector) logInconsistency(pair domain.MatchedPair, dir domain.Direction, reason string) {
	d.logger.Warn("dropping inconsistent pair",
		slog.String("kalshi_id", pair.KalshiID),
		slog.String("polymarket_id", pair.PolymarketID),
		slog.String("direction", string(dir)),
		slog.String("reason", reason),
	)
}

func sortOpportunities(opps []domain.Opportunity) {
	sort.Slice(opps, func(i, j int) bool {
		if opps[i].ROI != opps[j].ROI {
			return opps[i].ROI > opps[j].ROI
		}
		return opps[i].ID < opps[j].ID
	})
}
