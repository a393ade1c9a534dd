package i

import (
	"context"

	dmn "github.com/beka-birhanu/vinom-mazesync/domain"
)

// MazeBuilder builds the local world for an agreed seed.
type MazeBuilder interface {
	Build(ctx context.Context, seed int32) error
}

// LayoutArchive records published layouts.
type LayoutArchive interface {
	// Save inserts or updates a layout record.
	Save(ctx context.Context, layout *dmn.Layout) error

	// ByRoom returns the layouts recorded for a room, newest first.
	ByRoom(ctx context.Context, roomID string) ([]*dmn.Layout, error)
}
