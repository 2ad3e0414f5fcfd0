package port

import (
	"context"

	"github.com/rl1809/labstock/internal/core/domain"
)

type Syncer interface {
	// SchedulePush queues a push of the given snapshot, returning immediately
	SchedulePush(snapshot domain.Snapshot) error

	// SchedulePull queues a catalog refresh from the remote mirror
	SchedulePull()

	// Invalidate discards the result of any pull still in flight
	Invalidate()
}

// CatalogSink is the side of the local store the sync engine writes into.
type CatalogSink interface {
	SyncConfig() domain.SyncConfig
	Snapshot() domain.Snapshot
	ReplaceItems(ctx context.Context, items []domain.InventoryItem) error
}
