package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	dmn "github.com/beka-birhanu/vinom-mazesync/domain"
	"github.com/beka-birhanu/vinom-mazesync/maze"
	"github.com/beka-birhanu/vinom-mazesync/placement"
	"github.com/beka-birhanu/vinom-mazesync/service/i"
	"github.com/beka-birhanu/vinom-mazesync/session"
	"github.com/google/uuid"
)

const (
	defaultCellSize      = 1
	defaultPlaceYOffset  = 0.5
	defaultConsumableKey = "HasTicket"
)

// WorldConfig describes the maze and how items are placed on it.
type WorldConfig struct {
	RoomID                 string
	Width                  int
	Depth                  int
	CellSize               float64
	Entry                  placement.Point // where players enter, in world units
	SpawnProbability       float64
	MaxCollectibles        int
	MinCollectibleDistance float64
	MidpointCollectible    bool
	PlaceYOffset           float64
	ConsumableKey          string
}

// Validate checks ranges and fills defaults for unset optional fields.
func (c *WorldConfig) Validate() error {
	switch {
	case c.Width <= 0 || c.Depth <= 0:
		return fmt.Errorf("%w: grid %dx%d must be positive", ErrInvalidConfig, c.Width, c.Depth)
	case c.SpawnProbability < 0 || c.SpawnProbability > 1:
		return fmt.Errorf("%w: spawn probability %v outside [0,1]", ErrInvalidConfig, c.SpawnProbability)
	case c.MaxCollectibles < 0:
		return fmt.Errorf("%w: negative max collectibles", ErrInvalidConfig)
	case c.MinCollectibleDistance < 0:
		return fmt.Errorf("%w: negative collectible distance", ErrInvalidConfig)
	case c.CellSize < 0:
		return fmt.Errorf("%w: negative cell size", ErrInvalidConfig)
	}

	if c.CellSize == 0 {
		c.CellSize = defaultCellSize
	}
	if c.PlaceYOffset == 0 {
		c.PlaceYOffset = defaultPlaceYOffset
	}
	if c.ConsumableKey == "" {
		c.ConsumableKey = defaultConsumableKey
	}
	return nil
}

// Layout is the locally generated world.
type Layout struct {
	Seed         int32
	Graph        *maze.Graph
	Entry        *maze.Cell
	Goal         *maze.Cell // nil when no goal could be placed
	Collectibles []*maze.Cell
	Midpoint     *maze.Cell
}

// MazeWorld builds the maze for an agreed seed, places the goal and the
// collectibles, and on the authority spawns them as shared objects.
type MazeWorld struct {
	cfg     WorldConfig
	session i.SessionService
	items   *Consumables
	archive i.LayoutArchive
	logger  i.Logger

	mu     sync.RWMutex
	layout *Layout
	goalID uuid.UUID
}

// NewMazeWorld validates cfg and wires the world. archive may be nil.
func NewMazeWorld(s i.SessionService, items *Consumables, archive i.LayoutArchive, logger i.Logger, cfg WorldConfig) (*MazeWorld, error) {
	if s == nil {
		return nil, ErrMissingSession
	}
	if logger == nil {
		return nil, ErrMissingLogger
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if items == nil {
		items = NewConsumables()
	}
	return &MazeWorld{
		cfg:     cfg,
		session: s,
		items:   items,
		archive: archive,
		logger:  logger,
	}, nil
}

// Config returns the validated configuration.
func (w *MazeWorld) Config() WorldConfig { return w.cfg }

// Items returns the collectible registry.
func (w *MazeWorld) Items() *Consumables { return w.items }

// Layout returns the built world.
func (w *MazeWorld) Layout() (*Layout, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.layout, w.layout != nil
}

// GoalObject returns the shared object id of the goal marker.
func (w *MazeWorld) GoalObject() (uuid.UUID, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.goalID, w.goalID != uuid.Nil
}

// Build generates the maze from seed and places items on it. Only the first
// call has any effect.
func (w *MazeWorld) Build(ctx context.Context, seed int32) error {
	w.mu.Lock()
	if w.layout != nil {
		built := w.layout.Seed
		w.mu.Unlock()
		w.logger.Warning(fmt.Sprintf("World already built from seed %d, ignoring seed %d", built, seed))
		return nil
	}
	layout := w.generate(seed)
	w.layout = layout
	w.mu.Unlock()

	w.logger.Info(fmt.Sprintf("Built %dx%d maze from seed %d with %d collectibles", w.cfg.Width, w.cfg.Depth, seed, len(layout.Collectibles)))

	existing, err := w.session.Objects(ctx)
	if err != nil {
		w.logger.Warning(fmt.Sprintf("Listing shared objects: %s", err))
	}
	for _, obj := range existing {
		w.Apply(obj)
	}

	if !w.session.IsAuthority() {
		return nil
	}
	if len(existing) > 0 {
		w.logger.Info("Shared objects already spawned by a previous authority")
		return nil
	}
	w.spawn(ctx, layout)
	w.record(ctx, layout)
	return nil
}

func (w *MazeWorld) generate(seed int32) *Layout {
	g := maze.NewGraph(w.cfg.Width, w.cfg.Depth)
	rng := maze.NewRng(seed)
	start, _ := g.Cell(0, 0)
	maze.Generate(g, start, rng)

	policy := placement.New(rng, w.cfg.CellSize)
	layout := &Layout{Seed: seed, Graph: g}
	layout.Entry, _ = policy.ClosestCell(g, w.cfg.Entry)

	goal, ok := policy.ChooseGoal(g, w.cfg.Entry)
	if !ok {
		w.logger.Warning("No goal cell found, skipping goal placement")
	} else {
		layout.Goal = goal
	}

	layout.Collectibles = policy.ChooseCollectibles(g, w.cfg.Entry, w.cfg.MaxCollectibles, w.cfg.SpawnProbability, w.cfg.MinCollectibleDistance)

	if w.cfg.MidpointCollectible && layout.Goal != nil {
		layout.Midpoint = policy.ChooseMidpoint(g, layout.Entry, layout.Goal)
		layout.Collectibles = appendUnique(layout.Collectibles, layout.Midpoint)
	}
	return layout
}

func (w *MazeWorld) spawn(ctx context.Context, layout *Layout) {
	if layout.Goal != nil {
		id, err := w.session.InstantiateShared(ctx, ObjectGoal, w.WorldPosition(layout.Goal))
		if err != nil {
			w.logger.Warning(fmt.Sprintf("Spawning goal: %s", err))
		} else {
			w.mu.Lock()
			w.goalID = id
			w.mu.Unlock()
		}
	}

	for _, c := range layout.Collectibles {
		pos := w.WorldPosition(c)
		id, err := w.session.InstantiateShared(ctx, ObjectCollectible, pos)
		if err != nil {
			w.logger.Warning(fmt.Sprintf("Spawning collectible at %v: %s", c.Position, err))
			continue
		}
		w.items.Add(Consumable{ID: id, Key: w.cfg.ConsumableKey, Position: pos})
	}
}

func (w *MazeWorld) record(ctx context.Context, layout *Layout) {
	if w.archive == nil {
		w.logger.Debug("Layout archive disabled")
		return
	}

	rec := &dmn.Layout{
		ID:        uuid.New(),
		RoomID:    w.cfg.RoomID,
		Seed:      layout.Seed,
		Width:     w.cfg.Width,
		Depth:     w.cfg.Depth,
		Authority: w.session.LocalID(),
		Entry:     gridPoint(layout.Entry),
		CreatedAt: time.Now().UTC(),
	}
	if layout.Goal != nil {
		goal := gridPoint(layout.Goal)
		rec.Goal = &goal
	}
	for _, c := range layout.Collectibles {
		rec.Collectibles = append(rec.Collectibles, gridPoint(c))
	}

	if err := w.archive.Save(ctx, rec); err != nil {
		w.logger.Warning(fmt.Sprintf("Archiving layout: %s", err))
	}
}

// Run keeps the collectible registry in step with shared object events until
// ctx ends.
func (w *MazeWorld) Run(ctx context.Context) error {
	sub, err := w.session.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribing to session: %w", err)
	}
	return w.Serve(ctx, sub)
}

// Serve is Run on a subscription the caller opened. It closes sub.
func (w *MazeWorld) Serve(ctx context.Context, sub *session.Subscription) error {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return ErrSubscriptionClosed
			}
			if ev.Kind == session.EventObject {
				w.Apply(ev.Object)
			}
		}
	}
}

// Apply records a shared object spawn or removal.
func (w *MazeWorld) Apply(obj session.SharedObject) {
	switch obj.Kind {
	case ObjectGoal:
		w.mu.Lock()
		if obj.Destroyed && w.goalID == obj.ID {
			w.goalID = uuid.Nil
		} else if !obj.Destroyed {
			w.goalID = obj.ID
		}
		w.mu.Unlock()
	case ObjectCollectible:
		w.items.Add(Consumable{ID: obj.ID, Key: w.cfg.ConsumableKey, Position: obj.Position})
		if obj.Destroyed {
			w.items.Claim(obj.ID)
		}
	}
}

// WorldPosition returns where objects for c are spawned.
func (w *MazeWorld) WorldPosition(c *maze.Cell) session.Vec3 {
	return session.Vec3{
		X: float64(c.X) * w.cfg.CellSize,
		Y: w.cfg.PlaceYOffset,
		Z: float64(c.Z) * w.cfg.CellSize,
	}
}

func gridPoint(c *maze.Cell) dmn.GridPoint {
	if c == nil {
		return dmn.GridPoint{}
	}
	return dmn.GridPoint{X: c.X, Z: c.Z}
}

func appendUnique(cells []*maze.Cell, c *maze.Cell) []*maze.Cell {
	for _, have := range cells {
		if have == c {
			return cells
		}
	}
	return append(cells, c)
}
