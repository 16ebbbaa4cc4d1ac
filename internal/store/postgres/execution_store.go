package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polymathbot/polymath/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore on the executions and
// execution_legs tables.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Create inserts an execution record and its legs in one transaction.
func (s *ExecutionStore) Create(ctx context.Context, rec domain.ExecutionRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO executions (id, opportunity_id, direction, state, size, estimated_profit, realized_loss, unwound_size, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.OpportunityID, string(rec.Direction), string(rec.State),
		rec.Size, rec.EstimatedProfit, rec.RealizedLoss, rec.UnwoundSize,
		rec.Error, rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution: %w", err)
	}

	for _, leg := range rec.Legs {
		_, err = tx.Exec(ctx, `
			INSERT INTO execution_legs (execution_id, venue, market_id, token_id, side, contract, req_size, limit_price, order_id, status, fill_price, fill_size, message, placed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			rec.ID, string(leg.Request.Venue), leg.Request.MarketID, leg.Request.TokenID,
			string(leg.Request.Side), string(leg.Request.Contract), leg.Request.Size, leg.Request.LimitPrice,
			leg.Result.OrderID, string(leg.Result.Status), leg.Result.FillPrice, leg.Result.FillSize,
			leg.Result.Message, leg.PlacedAt,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert execution leg: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListRecent returns the newest executions with their legs.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.list(ctx, `
		SELECT id, opportunity_id, direction, state, size, estimated_profit, realized_loss, unwound_size, error, started_at, completed_at
		FROM executions ORDER BY started_at DESC LIMIT $1`, limit)
}

// ListBefore returns executions started before the cutoff, oldest first,
// for archival.
func (s *ExecutionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionRecord, error) {
	return s.list(ctx, `
		SELECT id, opportunity_id, direction, state, size, estimated_profit, realized_loss, unwound_size, error, started_at, completed_at
		FROM executions WHERE started_at < $1 ORDER BY started_at ASC`, before)
}

// DeleteBefore removes executions started before the cutoff and returns
// how many rows went away. Legs cascade.
func (s *ExecutionStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM executions WHERE started_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete executions before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

func (s *ExecutionStore) list(ctx context.Context, query string, arg any) ([]domain.ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var recs []domain.ExecutionRecord
	for rows.Next() {
		var rec domain.ExecutionRecord
		var direction, state string
		if err := rows.Scan(&rec.ID, &rec.OpportunityID, &direction, &state,
			&rec.Size, &rec.EstimatedProfit, &rec.RealizedLoss, &rec.UnwoundSize,
			&rec.Error, &rec.StartedAt, &rec.CompletedAt); err != nil {
			return nil, err
		}
		rec.Direction = domain.Direction(direction)
		rec.State = domain.ExecState(state)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range recs {
		legs, err := s.legs(ctx, recs[i].ID)
		if err != nil {
			return nil, err
		}
		recs[i].Legs = legs
	}
	return recs, nil
}

func (s *ExecutionStore) legs(ctx context.Context, executionID string) ([]domain.LegResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT venue, market_id, token_id, side, contract, req_size, limit_price, order_id, status, fill_price, fill_size, message, placed_at
		FROM execution_legs WHERE execution_id = $1 ORDER BY id`,
		executionID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list execution legs: %w", err)
	}
	defer rows.Close()

	var legs []domain.LegResult
	for rows.Next() {
		var leg domain.LegResult
		var venue, side, contract, status string
		if err := rows.Scan(&venue, &leg.Request.MarketID, &leg.Request.TokenID,
			&side, &contract, &leg.Request.Size, &leg.Request.LimitPrice,
			&leg.Result.OrderID, &status, &leg.Result.FillPrice, &leg.Result.FillSize,
			&leg.Result.Message, &leg.PlacedAt); err != nil {
			return nil, err
		}
		leg.Request.Venue = domain.Venue(venue)
		leg.Request.Side = domain.OrderSide(side)
		leg.Request.Contract = domain.ContractSide(contract)
		leg.Result.Status = domain.OrderStatus(status)
		legs = append(legs, leg)
	}
	return legs, rows.Err()
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)
