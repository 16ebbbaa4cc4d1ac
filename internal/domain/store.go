package domain

import (
	"context"
	"io"
	"time"
)

// MarketSource is one venue's market-snapshot adapter. FetchActiveMarkets
// returns the venue's currently tradable binary contracts normalized into
// Market records; any error is an adapter failure and triggers the scanner's
// stale-data fallback for that venue.
type MarketSource interface {
	Venue() Venue
	FetchActiveMarkets(ctx context.Context) ([]Market, error)
}

// OrderPlacer is the order-placement collaborator for one venue. CheckOrder
// reconciles an unknown outcome after a placement timeout.
type OrderPlacer interface {
	Venue() Venue
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CheckOrder(ctx context.Context, orderID string) (OrderResult, error)
}

// RiskStore persists the daily risk ledger so the loss limit survives a
// process restart within the same trading day.
type RiskStore interface {
	Load(ctx context.Context, day string) (RiskState, error) // ErrNotFound when absent
	Save(ctx context.Context, state RiskState) error
}

// ExecutionStore persists dual-leg execution attempts.
type ExecutionStore interface {
	Create(ctx context.Context, rec ExecutionRecord) error
	ListRecent(ctx context.Context, limit int) ([]ExecutionRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]ExecutionRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// SnapshotCache holds the last good market snapshot per venue. The scanner
// warms its stale-fallback state from it on startup and refreshes it after
// every successful fetch.
type SnapshotCache interface {
	PutMarkets(ctx context.Context, venue Venue, markets []Market) error
	GetMarkets(ctx context.Context, venue Venue) ([]Market, time.Time, error)
}

// SignalBus is the pub/sub fabric between the scanner and the dashboard
// WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter limits request rates per key across process instances.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// BlobWriter uploads cold-archive objects.
type BlobWriter interface {
	Put(ctx context.Context, path string, body io.Reader, contentType string) error
}
