// Package targets defines the in-memory-speed cache of tracked fids used by
// the realtime relevance filter.
package targets

import "context"

// Cache holds the set of tracked target fids and client app fids. It backs
// the hot path of event filtering, so lookups must be cheap.
type Cache interface {
	// AddTarget adds a fid to the target set.
	AddTarget(ctx context.Context, fid uint64) error
	// RemoveTarget removes a fid from the target set.
	RemoveTarget(ctx context.Context, fid uint64) error
	// IsTarget reports whether a fid is tracked.
	IsTarget(ctx context.Context, fid uint64) (bool, error)

	// AddTargetClient adds a client app fid.
	AddTargetClient(ctx context.Context, fid uint64) error
	// RemoveTargetClient removes a client app fid.
	RemoveTargetClient(ctx context.Context, fid uint64) error
	// IsTargetClient reports whether a fid is a tracked client app.
	IsTargetClient(ctx context.Context, fid uint64) (bool, error)

	// LoadTargets replaces the target set with the given fids.
	LoadTargets(ctx context.Context, fids []uint64) error
	// LoadTargetClients replaces the client set with the given fids.
	LoadTargetClients(ctx context.Context, fids []uint64) error

	// CountTargets returns the size of the target set.
	CountTargets(ctx context.Context) (int64, error)

	// Close releases the underlying connections.
	Close() error
}
