// Package tx defines the posting unit that domain services run their writes in.
package tx

import (
	"context"
)

// Manager runs a posting unit atomically.
//
// If fn returns an error nothing written inside fn survives. If fn succeeds
// every write becomes visible at once. Nested calls join the unit already
// carried by ctx, so a register service may open its own unit and still be
// composed into a larger one by the orchestrator.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager is a Manager that can also open a read-only snapshot.
type ReadOnlyManager interface {
	Manager
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnly runs fn in a read-only snapshot when m supports one and in an
// ordinary unit otherwise.
func ReadOnly(ctx context.Context, m Manager, fn func(ctx context.Context) error) error {
	if ro, ok := m.(ReadOnlyManager); ok {
		return ro.ReadOnly(ctx, fn)
	}
	return m.RunInTransaction(ctx, fn)
}
