package dmn

import (
	"time"

	"github.com/google/uuid"
)

// GridPoint is a cell coordinate.
type GridPoint struct {
	X int `bson:"x" json:"x"`
	Z int `bson:"z" json:"z"`
}

// Layout is the audit record of one generated maze: the agreed seed and the
// cells the authority chose for the goal and the collectibles.
type Layout struct {
	ID           uuid.UUID   `bson:"_id" json:"id"`
	RoomID       string      `bson:"roomId" json:"roomId"`
	Seed         int32       `bson:"seed" json:"seed"`
	Width        int         `bson:"width" json:"width"`
	Depth        int         `bson:"depth" json:"depth"`
	Authority    uuid.UUID   `bson:"authority" json:"authority"`
	Entry        GridPoint   `bson:"entry" json:"entry"`
	Goal         *GridPoint  `bson:"goal,omitempty" json:"goal,omitempty"`
	Collectibles []GridPoint `bson:"collectibles" json:"collectibles"`
	CreatedAt    time.Time   `bson:"createdAt" json:"createdAt"`
}
