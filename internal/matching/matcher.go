// Package matching pairs semantically identical contracts listed on Kalshi
// and Polymarket under different identifiers, titles, and phrasing.
package matching

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/polymathbot/polymath/internal/domain"
)

// DefaultThreshold is the minimum 0-100 similarity for a pair to qualify.
const DefaultThreshold = 80

// Config holds the matcher's tunables.
type Config struct {
	// Threshold is the minimum similarity score; DefaultThreshold if zero.
	Threshold float64

	// Overrides maps a Kalshi market id to the Polymarket market id it is
	// known to pair with. Overridden pairs score 100 and skip scoring.
	Overrides map[string]string

	// Excluded lists Kalshi market ids that must never be matched
	// (known false positives).
	Excluded []string

	Scorer Scorer
	Logger *slog.Logger
}

// Matcher produces the 1:1 set of matched pairs for one cycle's snapshots.
// It is safe for the threshold to be updated between cycles from another
// goroutine.
type Matcher struct {
	mu        sync.RWMutex
	threshold float64

	overrides map[string]string
	excluded  map[string]struct{}
	scorer    Scorer
	logger    *slog.Logger
}

// New creates a Matcher from cfg, applying defaults for the threshold and
// scorer.
func New(cfg Config) *Matcher {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	scorer := cfg.Scorer
	if scorer == nil {
		scorer = TitleScorer{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	excluded := make(map[string]struct{}, len(cfg.Excluded))
	for _, id := range cfg.Excluded {
		excluded[id] = struct{}{}
	}
	overrides := make(map[string]string, len(cfg.Overrides))
	for k, v := range cfg.Overrides {
		overrides[k] = v
	}

	return &Matcher{
		threshold: threshold,
		overrides: overrides,
		excluded:  excluded,
		scorer:    scorer,
		logger:    logger.With(slog.String("component", "matcher")),
	}
}

// Threshold returns the current minimum similarity score.
func (m *Matcher) Threshold() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.threshold
}

// SetThreshold updates the minimum similarity score for subsequent cycles.
func (m *Matcher) SetThreshold(t float64) {
	if t <= 0 {
		return
	}
	m.mu.Lock()
	m.threshold = t
	m.mu.Unlock()
}

// candidate is one above-threshold scored pairing before 1:1 resolution.
type candidate struct {
	kalshi int // index into the kalshi slice
	poly   int // index into the poly slice
	score  float64
}

// Match pairs the two venues' snapshots. It is deterministic: identical
// inputs always yield the identical pair set, because ties are broken by
// venue-native id. Each market appears in at most one pair.
func (m *Matcher) Match(kalshi, poly []domain.Market) []domain.MatchedPair {
	if len(kalshi) == 0 || len(poly) == 0 {
		return nil
	}
	threshold := m.Threshold()

	usedKalshi := make(map[string]struct{})
	usedPoly := make(map[string]struct{})

	// Manual overrides pair first and consume both sides.
	var pairs []domain.MatchedPair
	polyByID := make(map[string]int, len(poly))
	for i := range poly {
		polyByID[poly[i].ID] = i
	}
	for i := range kalshi {
		target, ok := m.overrides[kalshi[i].ID]
		if !ok {
			continue
		}
		j, ok := polyByID[target]
		if !ok {
			continue
		}
		pairs = append(pairs, m.buildPair(kalshi[i], poly[j], 100))
		usedKalshi[kalshi[i].ID] = struct{}{}
		usedPoly[poly[j].ID] = struct{}{}
	}

	// Bucket the Polymarket side by topic; the candidate filter only
	// compares within a shared bucket, which bounds the cross product.
	normPoly := make([]string, len(poly))
	polyBuckets := make(map[string][]int)
	for i := range poly {
		if _, taken := usedPoly[poly[i].ID]; taken {
			continue
		}
		topic := marketTopic(poly[i])
		normPoly[i] = NormalizeTitle(poly[i].Title)
		polyBuckets[topic] = append(polyBuckets[topic], i)
	}

	var cands []candidate
	for i := range kalshi {
		if _, taken := usedKalshi[kalshi[i].ID]; taken {
			continue
		}
		if _, skip := m.excluded[kalshi[i].ID]; skip {
			continue
		}
		norm := NormalizeTitle(kalshi[i].Title)
		if norm == "" {
			continue
		}
		for _, j := range polyBuckets[marketTopic(kalshi[i])] {
			if normPoly[j] == "" {
				continue
			}
			score := m.scorer.Score(norm, normPoly[j])
			if score >= threshold {
				cands = append(cands, candidate{kalshi: i, poly: j, score: score})
			}
		}
	}

	// Greedy 1:1 resolution: highest score wins, each market consumed at
	// most once. Ties break on ids so repeated runs agree.
	sort.Slice(cands, func(a, b int) bool {
		ca, cb := cands[a], cands[b]
		if ca.score != cb.score {
			return ca.score > cb.score
		}
		if kalshi[ca.kalshi].ID != kalshi[cb.kalshi].ID {
			return kalshi[ca.kalshi].ID < kalshi[cb.kalshi].ID
		}
		return poly[ca.poly].ID < poly[cb.poly].ID
	})
	for _, c := range cands {
		km, pm := kalshi[c.kalshi], poly[c.poly]
		if _, taken := usedKalshi[km.ID]; taken {
			continue
		}
		if _, taken := usedPoly[pm.ID]; taken {
			continue
		}
		usedKalshi[km.ID] = struct{}{}
		usedPoly[pm.ID] = struct{}{}
		pairs = append(pairs, m.buildPair(km, pm, c.score))
	}

	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].Similarity != pairs[b].Similarity {
			return pairs[a].Similarity > pairs[b].Similarity
		}
		return pairs[a].KalshiID < pairs[b].KalshiID
	})

	m.logger.Debug("matched market pairs",
		slog.Int("pairs", len(pairs)),
		slog.Float64("threshold", threshold),
	)
	return pairs
}

func (m *Matcher) buildPair(km, pm domain.Market, score float64) domain.MatchedPair {
	return domain.MatchedPair{
		KalshiID:     km.ID,
		PolymarketID: pm.ID,
		Kalshi:       km,
		Polymarket:   pm,
		Similarity:   score,
		Topic:        marketTopic(km),
	}
}

// marketTopic prefers the adapter-provided category tag and falls back to
// keyword tagging on the titles.
func marketTopic(m domain.Market) string {
	if m.Topic != "" {
		return m.Topic
	}
	return TagTopic(m.Title, m.EventTitle)
}
