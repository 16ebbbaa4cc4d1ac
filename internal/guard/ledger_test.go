package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/polymathbot/polymath/internal/domain"
)

func testLedger(limit float64) *Ledger {
	return NewLedger(limit, nil, testLogger())
}

func TestReserveWithinLimit(t *testing.T) {
	l := testLedger(50)

	if err := l.Reserve(25); err != nil {
		t.Fatalf("Reserve(25) = %v, want nil", err)
	}
	if err := l.Reserve(20); err != nil {
		t.Fatalf("Reserve(20) = %v, want nil", err)
	}
	if l.Halted() {
		t.Error("ledger halted after reservations within limit")
	}
}

func TestReserveRefusesWithoutHalting(t *testing.T) {
	l := testLedger(50)

	// Realize a $30 loss, then try to reserve a projected $25 more.
	l.Commit(context.Background(), 0, 30)
	err := l.Reserve(25)
	if !errors.Is(err, domain.ErrRiskLimit) {
		t.Fatalf("Reserve(25) = %v, want ErrRiskLimit", err)
	}
	if l.Halted() {
		t.Error("refused reservation halted the ledger; only realized losses may halt")
	}

	// A smaller reservation still fits.
	if err := l.Reserve(15); err != nil {
		t.Errorf("Reserve(15) = %v, want nil", err)
	}
}

func TestReserveCountsOutstandingReservations(t *testing.T) {
	l := testLedger(50)

	if err := l.Reserve(30); err != nil {
		t.Fatalf("Reserve(30) = %v, want nil", err)
	}
	if err := l.Reserve(25); !errors.Is(err, domain.ErrRiskLimit) {
		t.Fatalf("Reserve(25) with 30 reserved = %v, want ErrRiskLimit", err)
	}

	l.Release(30)
	if err := l.Reserve(25); err != nil {
		t.Errorf("Reserve(25) after release = %v, want nil", err)
	}
}

func TestCommitHaltsAtLimit(t *testing.T) {
	l := testLedger(50)
	ctx := context.Background()

	l.Commit(ctx, 0, 49.99)
	if l.Halted() {
		t.Fatal("halted below limit")
	}

	l.Commit(ctx, 0, 0.01)
	if !l.Halted() {
		t.Fatal("not halted at limit")
	}
	if err := l.Reserve(1); !errors.Is(err, domain.ErrRiskHalted) {
		t.Errorf("Reserve while halted = %v, want ErrRiskHalted", err)
	}
}

func TestCommitProfitDoesNotReduceLoss(t *testing.T) {
	l := testLedger(50)
	ctx := context.Background()

	l.Commit(ctx, 0, 30)
	l.Commit(ctx, 0, -100) // profitable attempt, loss stays
	if got := l.State().RealizedLoss; got != 30 {
		t.Errorf("RealizedLoss = %.2f, want 30.00", got)
	}
}

func TestResetLiftsHaltKeepsLoss(t *testing.T) {
	l := testLedger(50)
	ctx := context.Background()

	l.Commit(ctx, 0, 60)
	if !l.Halted() {
		t.Fatal("not halted after exceeding limit")
	}

	l.Reset(ctx)
	if l.Halted() {
		t.Error("still halted after Reset")
	}
	if got := l.State().RealizedLoss; got != 60 {
		t.Errorf("RealizedLoss after Reset = %.2f, want 60.00", got)
	}

	// The kept loss means the next losing commit re-halts immediately.
	l.Commit(ctx, 0, 0.5)
	if !l.Halted() {
		t.Error("not re-halted when realized loss still exceeds limit")
	}
}

func TestDayRolloverClearsState(t *testing.T) {
	l := testLedger(50)
	ctx := context.Background()

	current := time.Date(2026, 3, 14, 23, 50, 0, 0, time.UTC)
	l.now = func() time.Time { return current }

	l.Commit(ctx, 0, 60)
	if !l.Halted() {
		t.Fatal("not halted")
	}

	current = current.Add(20 * time.Minute) // crosses UTC midnight
	if l.Halted() {
		t.Error("halt survived the UTC day rollover")
	}
	state := l.State()
	if state.RealizedLoss != 0 {
		t.Errorf("RealizedLoss after rollover = %.2f, want 0", state.RealizedLoss)
	}
	if state.Day != "2026-03-15" {
		t.Errorf("Day = %q, want 2026-03-15", state.Day)
	}
}

type fakeRiskStore struct {
	state  domain.RiskState
	err    error
	saved  []domain.RiskState
	loaded string
}

func (s *fakeRiskStore) Load(_ context.Context, day string) (domain.RiskState, error) {
	s.loaded = day
	if s.err != nil {
		return domain.RiskState{}, s.err
	}
	return s.state, nil
}

func (s *fakeRiskStore) Save(_ context.Context, state domain.RiskState) error {
	s.saved = append(s.saved, state)
	return nil
}

func TestRestoreFreshDay(t *testing.T) {
	store := &fakeRiskStore{err: domain.ErrNotFound}
	l := NewLedger(50, store, testLogger())

	if err := l.Restore(context.Background()); err != nil {
		t.Fatalf("Restore = %v, want nil on ErrNotFound", err)
	}
	if l.Halted() {
		t.Error("fresh ledger halted")
	}
}

func TestRestoreCarriesLossAcrossRestart(t *testing.T) {
	l := NewLedger(50, nil, testLogger())
	l.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }

	store := &fakeRiskStore{state: domain.RiskState{Day: "2026-03-14", RealizedLoss: 55, Halted: true}}
	l.store = store

	if err := l.Restore(context.Background()); err != nil {
		t.Fatalf("Restore = %v", err)
	}
	if store.loaded != "2026-03-14" {
		t.Errorf("loaded day %q, want 2026-03-14", store.loaded)
	}
	if !l.Halted() {
		t.Error("restored ledger not halted despite loss over limit")
	}
	if got := l.State().RealizedLoss; got != 55 {
		t.Errorf("RealizedLoss = %.2f, want 55.00", got)
	}
}

func TestRestoreRejectsCorruptState(t *testing.T) {
	store := &fakeRiskStore{state: domain.RiskState{RealizedLoss: -10}}
	l := NewLedger(50, store, testLogger())

	err := l.Restore(context.Background())
	if !errors.Is(err, domain.ErrRiskStateCorrupt) {
		t.Fatalf("Restore = %v, want ErrRiskStateCorrupt", err)
	}
	if err := l.Reserve(1); !errors.Is(err, domain.ErrRiskHalted) {
		t.Errorf("Reserve after corrupt restore = %v, want ErrRiskHalted", err)
	}
}

func TestCommitPersistsState(t *testing.T) {
	store := &fakeRiskStore{err: domain.ErrNotFound}
	l := NewLedger(50, store, testLogger())

	l.Commit(context.Background(), 0, 10)
	if len(store.saved) != 1 {
		t.Fatalf("saved %d states, want 1", len(store.saved))
	}
	if store.saved[0].RealizedLoss != 10 {
		t.Errorf("persisted RealizedLoss = %.2f, want 10.00", store.saved[0].RealizedLoss)
	}
}
