package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// QuotaStore is the narrow persistence contract the ledger needs. The
// conditional increment is the one operation that must be atomic with
// respect to concurrent calls for the same user: the implementation performs
// check-and-increment as a single statement, never read-then-write.
type QuotaStore interface {
	// IncrementUsed atomically applies "used += delta where used+delta <= limit".
	// ok=false means the condition failed and no state changed.
	IncrementUsed(ctx context.Context, userID string, delta int64) (ok bool, err error)

	// DecrementUsed applies "used -= delta", clamping at zero.
	// clamped=true reports that the full decrement would have gone negative.
	DecrementUsed(ctx context.Context, userID string, delta int64) (clamped bool, err error)
}

// Ledger gates storage consumption per user. All mutation of the quota
// counters flows through Reserve/Release/AdjustOnDelete; nothing else in the
// codebase touches them.
type Ledger struct {
	store QuotaStore
}

func NewLedger(store QuotaStore) *Ledger {
	return &Ledger{store: store}
}

// Reserve atomically checks and claims bytes of the user's quota. The
// reservation is single-phase: the increment is final unless Release is
// called as a compensating action. Fails with ErrQuotaExceeded when the
// bytes do not fit; no state changes in that case.
func (l *Ledger) Reserve(ctx context.Context, userID string, bytes int64) (*Reservation, error) {
	if bytes < 0 {
		return nil, fmt.Errorf("cannot reserve negative byte count %d", bytes)
	}

	ok, err := l.store.IncrementUsed(ctx, userID, bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve quota for user %s: %w", userID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: user %s cannot store %d additional bytes", ErrQuotaExceeded, userID, bytes)
	}

	slog.Debug("quota reserved", "user_id", userID, "bytes", bytes)
	return &Reservation{ledger: l, userID: userID, bytes: bytes}, nil
}

// AdjustOnDelete returns bytes of a deleted asset to the user's quota. An
// underflow is an accounting bug: it is clamped to zero and logged as an
// invariant violation rather than surfaced to the caller.
func (l *Ledger) AdjustOnDelete(ctx context.Context, userID string, bytes int64) error {
	if bytes < 0 {
		return fmt.Errorf("cannot release negative byte count %d", bytes)
	}

	clamped, err := l.store.DecrementUsed(ctx, userID, bytes)
	if err != nil {
		return fmt.Errorf("failed to adjust quota for user %s: %w", userID, err)
	}
	if clamped {
		slog.Error("quota underflow clamped to zero",
			"user_id", userID,
			"bytes", bytes,
			"error", ErrInvariantViolation)
	}
	return nil
}

// Reservation is the token handed out by Reserve. It can be settled exactly
// once, either by Commit (keep the increment) or by Release (compensating
// decrement); any further settle attempt is a no-op.
type Reservation struct {
	ledger  *Ledger
	userID  string
	bytes   int64
	settled atomic.Bool
}

// Bytes returns the reserved amount.
func (r *Reservation) Bytes() int64 { return r.bytes }

// Commit finalizes the reservation. In the single-phase design the increment
// already happened during Reserve, so committing only consumes the token.
func (r *Reservation) Commit() {
	r.settled.Store(true)
}

// Release undoes the reservation's increment. Safe to call on an already
// settled token: the decrement is applied at most once.
func (r *Reservation) Release(ctx context.Context) error {
	if !r.settled.CompareAndSwap(false, true) {
		return nil
	}

	clamped, err := r.ledger.store.DecrementUsed(ctx, r.userID, r.bytes)
	if err != nil {
		// The token stays settled: retrying a failed release risks
		// double-decrementing if the first attempt landed.
		return fmt.Errorf("failed to release %d reserved bytes for user %s: %w", r.bytes, r.userID, err)
	}
	if clamped {
		slog.Error("quota underflow clamped to zero during release",
			"user_id", r.userID,
			"bytes", r.bytes,
			"error", ErrInvariantViolation)
	}
	slog.Debug("quota released", "user_id", r.userID, "bytes", r.bytes)
	return nil
}
