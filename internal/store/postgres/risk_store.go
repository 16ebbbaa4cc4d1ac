package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polymathbot/polymath/internal/domain"
)

// RiskStore implements domain.RiskStore on the risk_days table.
type RiskStore struct {
	pool *pgxpool.Pool
}

// NewRiskStore creates a RiskStore.
func NewRiskStore(pool *pgxpool.Pool) *RiskStore {
	return &RiskStore{pool: pool}
}

// Load returns the ledger row for one UTC day, or domain.ErrNotFound.
func (s *RiskStore) Load(ctx context.Context, day string) (domain.RiskState, error) {
	var state domain.RiskState
	err := s.pool.QueryRow(ctx, `
		SELECT day, realized_loss, halted, updated_at
		FROM risk_days WHERE day = $1`,
		day,
	).Scan(&state.Day, &state.RealizedLoss, &state.Halted, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RiskState{}, domain.ErrNotFound
		}
		return domain.RiskState{}, fmt.Errorf("postgres: load risk day %s: %w", day, err)
	}
	return state, nil
}

// Save upserts the ledger row for the state's day.
func (s *RiskStore) Save(ctx context.Context, state domain.RiskState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO risk_days (day, realized_loss, halted, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (day) DO UPDATE SET
			realized_loss = EXCLUDED.realized_loss,
			halted = EXCLUDED.halted,
			updated_at = EXCLUDED.updated_at`,
		state.Day, state.RealizedLoss, state.Halted, state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save risk day %s: %w", state.Day, err)
	}
	return nil
}

var _ domain.RiskStore = (*RiskStore)(nil)
