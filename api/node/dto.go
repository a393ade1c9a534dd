// Package nodeapi provides the request and response shapes of the participant control API.
package nodeapi

import (
	"github.com/beka-birhanu/vinom-mazesync/maze"
	"github.com/beka-birhanu/vinom-mazesync/service"
	"github.com/google/uuid"
)

// PointDTO is a grid cell coordinate.
type PointDTO struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// WallDTO is an opening between two adjacent cells.
type WallDTO struct {
	A PointDTO `json:"a"`
	B PointDTO `json:"b"`
}

// MazeResponse describes the locally built maze.
type MazeResponse struct {
	Seed         int32      `json:"seed"`
	Width        int        `json:"width"`
	Depth        int        `json:"depth"`
	ASCII        string     `json:"ascii"`
	Entry        *PointDTO  `json:"entry,omitempty"`
	Goal         *PointDTO  `json:"goal,omitempty"`
	Midpoint     *PointDTO  `json:"midpoint,omitempty"`
	Collectibles []PointDTO `json:"collectibles"`
	Openings     []WallDTO  `json:"openings"`
}

// ItemDTO is a collectible as seen by this participant.
type ItemDTO struct {
	ID       uuid.UUID `json:"id"`
	Key      string    `json:"key"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Z        float64   `json:"z"`
	PickedUp bool      `json:"picked_up"`
}

// ParticipantDTO is one member of the room.
type ParticipantDTO struct {
	ID          uuid.UUID      `json:"id"`
	IsAuthority bool           `json:"is_authority"`
	Properties  map[string]any `json:"properties"`
}

// StateResponse is the node's view of the room.
type StateResponse struct {
	LocalID      uuid.UUID        `json:"local_id"`
	IsAuthority  bool             `json:"is_authority"`
	State        string           `json:"state"`
	Seed         *int32           `json:"seed,omitempty"`
	Generated    bool             `json:"generated"`
	ColorIndex   *int             `json:"color_index,omitempty"`
	Color        string           `json:"color,omitempty"`
	FinishedBy   *uuid.UUID       `json:"finished_by,omitempty"`
	Participants []ParticipantDTO `json:"participants"`
	Items        []ItemDTO        `json:"items"`
}

func pointOf(c *maze.Cell) *PointDTO {
	if c == nil {
		return nil
	}
	return &PointDTO{X: c.X, Z: c.Z}
}

func newMazeResponse(l *service.Layout) MazeResponse {
	resp := MazeResponse{
		Seed:         l.Seed,
		Width:        l.Graph.Width(),
		Depth:        l.Graph.Depth(),
		Entry:        pointOf(l.Entry),
		Goal:         pointOf(l.Goal),
		Midpoint:     pointOf(l.Midpoint),
		Collectibles: make([]PointDTO, 0, len(l.Collectibles)),
		Openings:     make([]WallDTO, 0, l.Graph.Len()),
	}

	marks := make(map[maze.Position]rune)
	for _, c := range l.Collectibles {
		resp.Collectibles = append(resp.Collectibles, *pointOf(c))
		marks[c.Position] = '*'
	}
	if l.Entry != nil {
		marks[l.Entry.Position] = 'S'
	}
	if l.Goal != nil {
		marks[l.Goal.Position] = 'G'
	}
	resp.ASCII = l.Graph.Render(marks)

	for _, e := range l.Graph.ClearedWalls() {
		resp.Openings = append(resp.Openings, WallDTO{
			A: PointDTO{X: e.A.X, Z: e.A.Z},
			B: PointDTO{X: e.B.X, Z: e.B.Z},
		})
	}
	return resp
}

func newStateResponse(s service.Snapshot) StateResponse {
	resp := StateResponse{
		LocalID:      s.LocalID,
		IsAuthority:  s.IsAuthority,
		State:        s.State.String(),
		Generated:    s.Generated,
		Color:        s.Color,
		Participants: make([]ParticipantDTO, 0, len(s.Participants)),
		Items:        make([]ItemDTO, 0, len(s.Items)),
	}
	if s.Generated {
		seed := s.Seed
		resp.Seed = &seed
	}
	if s.ColorIndex >= 0 {
		idx := s.ColorIndex
		resp.ColorIndex = &idx
	}
	if s.FinishedBy != uuid.Nil {
		by := s.FinishedBy
		resp.FinishedBy = &by
	}
	for _, p := range s.Participants {
		resp.Participants = append(resp.Participants, ParticipantDTO{
			ID:          p.ID,
			IsAuthority: p.IsAuthority,
			Properties:  p.Properties,
		})
	}
	for _, it := range s.Items {
		resp.Items = append(resp.Items, ItemDTO{
			ID:       it.ID,
			Key:      it.Key,
			X:        it.Position.X,
			Y:        it.Position.Y,
			Z:        it.Position.Z,
			PickedUp: it.PickedUp,
		})
	}
	return resp
}
