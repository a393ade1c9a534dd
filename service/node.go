package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/beka-birhanu/vinom-mazesync/service/i"
	"github.com/beka-birhanu/vinom-mazesync/session"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// NodeOptions configures a participant node.
type NodeOptions struct {
	Seed    SeedOptions
	World   WorldConfig
	Palette []string
}

// ParticipantView is one participant's shared properties.
type ParticipantView struct {
	ID          uuid.UUID
	IsAuthority bool
	Properties  map[string]any
}

// Snapshot is a point-in-time view of the node.
type Snapshot struct {
	LocalID      uuid.UUID
	IsAuthority  bool
	State        AgreementState
	Seed         int32
	Generated    bool
	ColorIndex   int // -1 until assigned
	Color        string
	FinishedBy   uuid.UUID
	Participants []ParticipantView
	Items        []Consumable
}

// Node is one participant: it runs the seed handshake, builds the world,
// arbitrates requests when it holds the authority role and applies outcomes.
type Node struct {
	session i.SessionService
	logger  i.Logger

	agreement *SeedAgreement
	arbiter   *Arbiter
	world     *MazeWorld
	colors    *ColorRule

	mu         sync.RWMutex
	colorIndex int
	finishedBy uuid.UUID
}

// NewNode wires a participant. archive may be nil.
func NewNode(s i.SessionService, archive i.LayoutArchive, logger i.Logger, opts NodeOptions) (*Node, error) {
	if s == nil {
		return nil, ErrMissingSession
	}
	if logger == nil {
		return nil, ErrMissingLogger
	}

	n := &Node{session: s, logger: logger, colorIndex: -1}

	var err error
	items := NewConsumables()
	if n.world, err = NewMazeWorld(s, items, archive, logger, opts.World); err != nil {
		return nil, err
	}
	if n.agreement, err = NewSeedAgreement(s, n, logger, &opts.Seed); err != nil {
		return nil, err
	}
	if n.arbiter, err = NewArbiter(s, logger); err != nil {
		return nil, err
	}

	key := n.world.Config().ConsumableKey
	n.colors = NewColorRule(s, opts.Palette)
	n.arbiter.Register(
		NewPickupRule(s, items, logger),
		n.colors,
		NewFinishRule(s, key),
	)
	n.arbiter.OnOutcome(KindPickup, n.onPickup)
	n.arbiter.OnOutcome(KindColor, n.onColor)
	n.arbiter.OnOutcome(KindFinish, n.onFinish)

	return n, nil
}

// LocalID returns the participant id.
func (n *Node) LocalID() uuid.UUID { return n.session.LocalID() }

// Agreement returns the seed handshake.
func (n *Node) Agreement() *SeedAgreement { return n.agreement }

// World returns the local world.
func (n *Node) World() *MazeWorld { return n.world }

// Layout returns the locally built world, false until the seed is applied.
func (n *Node) Layout() (*Layout, bool) { return n.world.Layout() }

// Palette returns the player colors.
func (n *Node) Palette() []string { return n.colors.Palette() }

// Run drives the node until ctx ends or a loop fails. All subscriptions are
// opened before any loop starts so no outcome is missed.
func (n *Node) Run(ctx context.Context) error {
	subs := make([]*session.Subscription, 0, 3)
	for range 3 {
		sub, err := n.session.Subscribe(ctx)
		if err != nil {
			for _, s := range subs {
				s.Close()
			}
			return fmt.Errorf("subscribing to session: %w", err)
		}
		subs = append(subs, sub)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.arbiter.Serve(ctx, subs[0]) })
	g.Go(func() error { return n.world.Serve(ctx, subs[1]) })
	g.Go(func() error { return n.agreement.Serve(ctx, subs[2]) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Build implements i.MazeBuilder for the seed handshake: it builds the world,
// marks the local player spawned and asks for a color.
func (n *Node) Build(ctx context.Context, seed int32) error {
	if err := n.world.Build(ctx, seed); err != nil {
		return err
	}
	if err := n.session.SetProperty(ctx, session.Player(n.LocalID()), KeySpawned, session.Bool(true)); err != nil {
		n.logger.Warning(fmt.Sprintf("Marking spawned: %s", err))
	}
	if err := n.RequestColor(ctx); err != nil {
		n.logger.Warning(fmt.Sprintf("Requesting color: %s", err))
	}
	return nil
}

// MarkReady sets the local readiness flag.
func (n *Node) MarkReady(ctx context.Context) error {
	return n.session.SetProperty(ctx, session.Player(n.LocalID()), KeyReady, session.Bool(true))
}

// RequestPickup asks the authority for a collectible. A participant already
// holding the consumable does not ask.
func (n *Node) RequestPickup(ctx context.Context, item uuid.UUID) error {
	if _, built := n.world.Layout(); !built {
		return ErrNotBuilt
	}
	key := n.world.Config().ConsumableKey
	holding, _, err := n.session.Property(ctx, session.Player(n.LocalID()), key)
	if err != nil {
		return err
	}
	if holding.Truthy() {
		return ErrAlreadyHolding
	}
	return n.arbiter.Request(ctx, KindPickup, item.String(), session.Value{})
}

// RequestColor asks the authority for a palette index.
func (n *Node) RequestColor(ctx context.Context) error {
	return n.arbiter.Request(ctx, KindColor, "", session.Value{})
}

// RequestFinish tells the authority the local player reached the goal.
func (n *Node) RequestFinish(ctx context.Context) error {
	if _, built := n.world.Layout(); !built {
		return ErrNotBuilt
	}
	return n.arbiter.Request(ctx, KindFinish, "", session.Value{})
}

// Snapshot gathers the node's view of the room.
func (n *Node) Snapshot(ctx context.Context) (Snapshot, error) {
	seed, generated := n.agreement.Seed()
	n.mu.RLock()
	snap := Snapshot{
		LocalID:     n.LocalID(),
		IsAuthority: n.session.IsAuthority(),
		State:       n.agreement.State(),
		Seed:        seed,
		Generated:   generated,
		ColorIndex:  n.colorIndex,
		FinishedBy:  n.finishedBy,
		Items:       n.world.Items().All(),
	}
	n.mu.RUnlock()

	if palette := n.Palette(); snap.ColorIndex >= 0 && snap.ColorIndex < len(palette) {
		snap.Color = palette[snap.ColorIndex]
	}

	ids, err := n.session.Participants(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	authority, _ := n.session.Authority()
	for _, id := range ids {
		props, err := n.session.Properties(ctx, session.Player(id))
		if err != nil {
			return Snapshot{}, err
		}
		view := ParticipantView{ID: id, IsAuthority: id == authority, Properties: make(map[string]any, len(props))}
		for k, v := range props {
			view.Properties[k] = v.Any()
		}
		snap.Participants = append(snap.Participants, view)
	}
	return snap, nil
}

func (n *Node) onPickup(_ context.Context, o Outcome) {
	if !o.Granted {
		n.logger.Info(fmt.Sprintf("Pickup of %s denied: %s", o.Target, o.Reason))
		return
	}
	if id, err := uuid.Parse(o.Target); err == nil {
		n.world.Items().Claim(id)
	}
	if o.Requester == n.LocalID() {
		n.logger.Info(fmt.Sprintf("Picked up %s", o.Target))
	}
}

func (n *Node) onColor(_ context.Context, o Outcome) {
	if o.Requester != n.LocalID() {
		return
	}
	if !o.Granted {
		n.logger.Warning(fmt.Sprintf("Color request denied: %s", o.Reason))
		return
	}
	idx, ok := o.Value.AsInt()
	if !ok {
		return
	}
	n.mu.Lock()
	n.colorIndex = int(idx)
	n.mu.Unlock()
	n.logger.Info(fmt.Sprintf("Assigned color %d", idx))
}

func (n *Node) onFinish(_ context.Context, o Outcome) {
	if !o.Granted {
		n.logger.Info(fmt.Sprintf("Finish denied: %s", o.Reason))
		return
	}
	n.mu.Lock()
	n.finishedBy = o.Requester
	n.mu.Unlock()
	n.logger.Info(fmt.Sprintf("Game finished by %s", o.Requester))
}
