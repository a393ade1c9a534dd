package service

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/beka-birhanu/vinom-mazesync/service/i"
	"github.com/beka-birhanu/vinom-mazesync/session"
	"github.com/google/uuid"
)

// Pickup denial reasons.
const (
	ReasonUnknownItem    = "unknown-item"
	ReasonAlreadyPicked  = "already-picked"
	ReasonAlreadyHolding = "already-holding"
)

// Consumable is a collectible that grants a player property when picked up.
type Consumable struct {
	ID       uuid.UUID
	Key      string
	Position session.Vec3
	PickedUp bool
}

// Consumables is the registry of collectibles in the room. Every participant
// keeps one; the authority's copy is the one pickups are decided against.
type Consumables struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Consumable
	order []uuid.UUID
}

// NewConsumables creates an empty registry.
func NewConsumables() *Consumables {
	return &Consumables{items: make(map[uuid.UUID]*Consumable)}
}

// Add registers c. Registering a known id again keeps the existing state.
func (r *Consumables) Add(c Consumable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[c.ID]; ok {
		return
	}
	r.items[c.ID] = &c
	r.order = append(r.order, c.ID)
}

// Get returns the item with id.
func (r *Consumables) Get(id uuid.UUID) (Consumable, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return Consumable{}, false
	}
	return *c, true
}

// All returns every item in registration order.
func (r *Consumables) All() []Consumable {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Consumable, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.items[id])
	}
	return out
}

// Available returns the items not yet picked up.
func (r *Consumables) Available() []Consumable {
	return slices.DeleteFunc(r.All(), func(c Consumable) bool { return c.PickedUp })
}

// Claim flips the picked-up latch. It reports false if the item is unknown
// or was already claimed.
func (r *Consumables) Claim(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok || c.PickedUp {
		return false
	}
	c.PickedUp = true
	return true
}

// Release clears the picked-up latch of a claim that could not be committed.
func (r *Consumables) Release(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.items[id]; ok {
		c.PickedUp = false
	}
}

// PickupRule grants a collectible to the first participant that asks for it
// while not already holding its key.
type PickupRule struct {
	session i.SessionService
	items   *Consumables
	logger  i.Logger
}

// NewPickupRule decides pickups against items.
func NewPickupRule(s i.SessionService, items *Consumables, logger i.Logger) *PickupRule {
	return &PickupRule{session: s, items: items, logger: logger}
}

func (r *PickupRule) Kind() string { return KindPickup }

// Decide commits the pickup: latch the item, write the consumable key on the
// requester and destroy the shared object. The latch is released when the key
// cannot be written, so the item stays available to others.
func (r *PickupRule) Decide(ctx context.Context, req Request) (Decision, error) {
	id, err := uuid.Parse(req.Target)
	if err != nil {
		return Deny(ReasonUnknownItem), nil
	}
	item, ok := r.items.Get(id)
	if !ok {
		return Deny(ReasonUnknownItem), nil
	}
	if item.PickedUp {
		return Deny(ReasonAlreadyPicked), nil
	}

	holding, _, err := r.session.Property(ctx, session.Player(req.Requester), item.Key)
	if err != nil {
		return Decision{}, fmt.Errorf("reading %s of %s: %w", item.Key, req.Requester, err)
	}
	if holding.Truthy() {
		return Deny(ReasonAlreadyHolding), nil
	}

	if !r.items.Claim(id) {
		return Deny(ReasonAlreadyPicked), nil
	}
	if err := r.session.SetProperty(ctx, session.Player(req.Requester), item.Key, session.Bool(true)); err != nil {
		r.items.Release(id)
		return Decision{}, fmt.Errorf("granting %s to %s: %w", item.Key, req.Requester, err)
	}
	if err := r.session.DestroyShared(ctx, id); err != nil {
		r.logger.Warning(fmt.Sprintf("Destroying picked up item %s: %s", id, err))
	}
	return Grant(session.Str(item.Key)), nil
}
