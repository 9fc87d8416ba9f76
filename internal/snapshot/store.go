// Package snapshot persists a best-effort mirror of room state. The snapshot
// is written after every mutating room operation and read once at process
// start; it is not a transaction log, and a missing or unreadable snapshot
// simply means a cold start.
package snapshot

import (
	"context"

	"quizbattle/internal/models"
)

// Store is the load/save pair the engine persists through. Load returns
// (nil, nil) when no snapshot exists.
type Store interface {
	Load(ctx context.Context) (*models.Snapshot, error)
	Save(ctx context.Context, snap *models.Snapshot) error
}

// NopStore discards snapshots, for tests and for running without
// persistence.
type NopStore struct{}

func (NopStore) Load(context.Context) (*models.Snapshot, error) { return nil, nil }
func (NopStore) Save(context.Context, *models.Snapshot) error   { return nil }
