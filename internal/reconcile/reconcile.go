// Package reconcile holds the small helpers shared by the client stores:
// optimistic mutations reconciled against the server, and request fencing.
package reconcile

import (
	"context"
	"sync/atomic"
)

// Sequence hands out monotonically increasing request tickets. Only the most
// recently issued ticket is current, so responses to superseded requests can
// be dropped.
type Sequence struct {
	n atomic.Uint64
}

// Next issues a new ticket, superseding every earlier one.
func (s *Sequence) Next() uint64 {
	return s.n.Add(1)
}

// Current reports whether ticket is still the latest one issued.
func (s *Sequence) Current(ticket uint64) bool {
	return s.n.Load() == ticket
}

// Mutation is an optimistic change: a local delta applied before the request,
// server truth applied after it, and a rollback for failures.
type Mutation[T any] struct {
	// Local applies the optimistic delta. Optional.
	Local func()
	// Remote performs the request and returns the authoritative result.
	Remote func(ctx context.Context) (T, error)
	// Commit replaces local state with the server result. Optional.
	Commit func(result T)
	// Rollback discards the optimistic delta after Remote fails. Optional.
	Rollback func(ctx context.Context, cause error)
}

// Apply runs the mutation: Local, then Remote, then Commit on success or
// Rollback on failure. The Remote error is returned unchanged.
func Apply[T any](ctx context.Context, m Mutation[T]) (T, error) {
	if m.Local != nil {
		m.Local()
	}

	result, err := m.Remote(ctx)
	if err != nil {
		if m.Rollback != nil {
			m.Rollback(ctx, err)
		}
		var zero T
		return zero, err
	}

	if m.Commit != nil {
		m.Commit(result)
	}
	return result, nil
}
