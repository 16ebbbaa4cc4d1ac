package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/polymathbot/polymath/internal/domain"
)

// snapshotTTL bounds how long a cached venue snapshot is useful. A day-old
// snapshot would feed detection prices with no relation to reality.
const snapshotTTL = 24 * time.Hour

// SnapshotCache implements domain.SnapshotCache: one key per venue holding
// the last good market snapshot with its fetch time.
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

type snapshotEnvelope struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Markets   []domain.Market `json:"markets"`
}

func snapshotKey(venue domain.Venue) string {
	return "polymath:snapshot:" + string(venue)
}

// PutMarkets stores a venue snapshot, replacing any previous one.
func (c *SnapshotCache) PutMarkets(ctx context.Context, venue domain.Venue, markets []domain.Market) error {
	payload, err := json.Marshal(snapshotEnvelope{
		FetchedAt: time.Now().UTC(),
		Markets:   markets,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot: %w", err)
	}

	if err := c.rdb.Set(ctx, snapshotKey(venue), payload, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: put snapshot %s: %w", venue, err)
	}
	return nil
}

// GetMarkets returns the cached snapshot and its fetch time, or
// domain.ErrNotFound when no snapshot exists.
func (c *SnapshotCache) GetMarkets(ctx context.Context, venue domain.Venue) ([]domain.Market, time.Time, error) {
	payload, err := c.rdb.Get(ctx, snapshotKey(venue)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, time.Time{}, fmt.Errorf("redis: snapshot %s: %w", venue, domain.ErrNotFound)
		}
		return nil, time.Time{}, fmt.Errorf("redis: get snapshot %s: %w", venue, err)
	}

	var env snapshotEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: decode snapshot %s: %w", venue, err)
	}
	return env.Markets, env.FetchedAt, nil
}

var _ domain.SnapshotCache = (*SnapshotCache)(nil)
