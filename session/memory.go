package session

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Hub is an in-process room. Members join in order and the earliest member
// still present holds the authority role.
type Hub struct {
	mu        sync.Mutex
	capacity  int
	members   []uuid.UUID
	authority uuid.UUID
	room      map[string]Value
	players   map[uuid.UUID]map[string]Value
	objects   map[uuid.UUID]SharedObject
	order     []uuid.UUID
	subs      map[uuid.UUID]map[*Subscription]struct{}
}

// NewHub creates an empty room. A capacity of zero or less means unlimited.
func NewHub(capacity int) *Hub {
	return &Hub{
		capacity: capacity,
		room:     make(map[string]Value),
		players:  make(map[uuid.UUID]map[string]Value),
		objects:  make(map[uuid.UUID]SharedObject),
		subs:     make(map[uuid.UUID]map[*Subscription]struct{}),
	}
}

// Join adds id to the room and returns its handle.
func (h *Hub) Join(id uuid.UUID) (*Member, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if slices.Contains(h.members, id) {
		return &Member{hub: h, id: id}, nil
	}
	if h.capacity > 0 && len(h.members) >= h.capacity {
		return nil, ErrRoomFull
	}

	h.members = append(h.members, id)
	h.players[id] = make(map[string]Value)
	h.subs[id] = make(map[*Subscription]struct{})
	h.publish(Event{Kind: EventMembership, Participant: id, Joined: true})

	if h.authority == uuid.Nil {
		h.setAuthority(id)
	}
	return &Member{hub: h, id: id}, nil
}

// Leave removes id from the room, closes its subscriptions and hands the
// authority role to the earliest remaining member if id held it.
func (h *Hub) Leave(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := slices.Index(h.members, id)
	if idx < 0 {
		return
	}
	h.members = slices.Delete(h.members, idx, idx+1)
	delete(h.players, id)

	subs := h.subs[id]
	delete(h.subs, id)
	for s := range subs {
		s.Shutdown()
	}

	h.publish(Event{Kind: EventMembership, Participant: id, Joined: false})

	if h.authority == id {
		next := uuid.Nil
		if len(h.members) > 0 {
			next = h.members[0]
		}
		h.setAuthority(next)
	}
}

// Handoff moves the authority role to a current member.
func (h *Hub) Handoff(id uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !slices.Contains(h.members, id) {
		return ErrNotMember
	}
	if h.authority != id {
		h.setAuthority(id)
	}
	return nil
}

func (h *Hub) setAuthority(id uuid.UUID) {
	h.authority = id
	h.publish(Event{Kind: EventAuthority, Authority: id})
}

// publish fans e out to every subscription it addresses. Callers hold mu.
func (h *Hub) publish(e Event) {
	for member, subs := range h.subs {
		if !e.For(member) {
			continue
		}
		for s := range subs {
			s.Push(e)
		}
	}
}

func (h *Hub) member(id uuid.UUID) bool {
	return slices.Contains(h.members, id)
}

// Member is one participant's view of a Hub.
type Member struct {
	hub *Hub
	id  uuid.UUID
}

// LocalID returns the participant id of this member.
func (m *Member) LocalID() uuid.UUID { return m.id }

// IsAuthority reports whether this member holds the authority role.
func (m *Member) IsAuthority() bool {
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()
	return m.hub.authority == m.id
}

// Authority returns the current authority, if any.
func (m *Member) Authority() (uuid.UUID, bool) {
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()
	return m.hub.authority, m.hub.authority != uuid.Nil
}

// ParticipantCount returns the number of members present.
func (m *Member) ParticipantCount(context.Context) (int, error) {
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()
	return len(m.hub.members), nil
}

// ExpectedParticipantCount returns the room capacity.
func (m *Member) ExpectedParticipantCount() int {
	return m.hub.capacity
}

// Participants returns the members in join order.
func (m *Member) Participants(context.Context) ([]uuid.UUID, error) {
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()
	return slices.Clone(m.hub.members), nil
}

// SetProperty writes key in scope. Members may write their own scope; other
// scopes need the authority role.
func (m *Member) SetProperty(_ context.Context, scope Scope, key string, value Value) error {
	h := m.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	props, err := h.writable(m.id, scope)
	if err != nil {
		return err
	}
	props[key] = value
	h.publish(Event{Kind: EventProperty, Property: PropertyChange{Scope: scope, Key: key, Value: value}})
	return nil
}

// SetPropertyOnce writes key in scope only if it is absent. It returns the
// value stored afterwards and whether this call wrote it.
func (m *Member) SetPropertyOnce(_ context.Context, scope Scope, key string, value Value) (Value, bool, error) {
	h := m.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	props, err := h.writable(m.id, scope)
	if err != nil {
		return Value{}, false, err
	}
	if current, ok := props[key]; ok {
		return current, false, nil
	}
	props[key] = value
	h.publish(Event{Kind: EventProperty, Property: PropertyChange{Scope: scope, Key: key, Value: value}})
	return value, true, nil
}

// writable returns the property map id may write in scope. Callers hold mu.
func (h *Hub) writable(id uuid.UUID, scope Scope) (map[string]Value, error) {
	if !h.member(id) {
		return nil, ErrNotMember
	}
	if !scope.valid() {
		return nil, ErrInvalidScope
	}
	if !scope.Owned(id) && h.authority != id {
		return nil, ErrNotPermitted
	}
	if scope.IsRoom() {
		return h.room, nil
	}
	props, ok := h.players[scope.Participant]
	if !ok {
		return nil, ErrNotMember
	}
	return props, nil
}

// Property reads key in scope.
func (m *Member) Property(_ context.Context, scope Scope, key string) (Value, bool, error) {
	h := m.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	props, err := h.scopeProps(scope)
	if err != nil {
		return Value{}, false, err
	}
	v, ok := props[key]
	return v, ok, nil
}

// Properties returns a copy of every property in scope.
func (m *Member) Properties(_ context.Context, scope Scope) (map[string]Value, error) {
	h := m.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	props, err := h.scopeProps(scope)
	if err != nil {
		return nil, err
	}
	return maps.Clone(props), nil
}

func (h *Hub) scopeProps(scope Scope) (map[string]Value, error) {
	if !scope.valid() {
		return nil, ErrInvalidScope
	}
	if scope.IsRoom() {
		return h.room, nil
	}
	props, ok := h.players[scope.Participant]
	if !ok {
		return map[string]Value{}, nil
	}
	return props, nil
}

// SendRequest delivers msg to the authority only.
func (m *Member) SendRequest(_ context.Context, msg Message) error {
	h := m.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.member(m.id) {
		return ErrNotMember
	}
	if h.authority == uuid.Nil {
		return ErrNoAuthority
	}
	wire, err := m.stamp(msg)
	if err != nil {
		return err
	}
	h.publish(Event{Kind: EventMessage, To: h.authority, Message: wire})
	return nil
}

// Broadcast delivers msg to every member, this one included.
func (m *Member) Broadcast(_ context.Context, msg Message) error {
	h := m.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.member(m.id) {
		return ErrNotMember
	}
	wire, err := m.stamp(msg)
	if err != nil {
		return err
	}
	h.publish(Event{Kind: EventMessage, Message: wire})
	return nil
}

// stamp sets the sender and passes msg through the wire codec so in-process
// delivery sees exactly what a remote peer would.
func (m *Member) stamp(msg Message) (Message, error) {
	msg.From = m.id
	return DecodeMessage(EncodeMessage(msg))
}

// Subscribe opens a mailbox receiving every event addressed to this member.
func (m *Member) Subscribe(context.Context) (*Subscription, error) {
	h := m.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subs[m.id]
	if !ok {
		return nil, ErrNotMember
	}
	var s *Subscription
	s = NewSubscription(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[m.id], s)
	})
	subs[s] = struct{}{}
	return s, nil
}

// InstantiateShared spawns an object visible to every member.
func (m *Member) InstantiateShared(_ context.Context, kind string, pos Vec3) (uuid.UUID, error) {
	h := m.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.authority != m.id {
		return uuid.Nil, ErrNotAuthority
	}
	obj := SharedObject{ID: uuid.New(), Kind: kind, Position: pos}
	h.objects[obj.ID] = obj
	h.order = append(h.order, obj.ID)
	h.publish(Event{Kind: EventObject, Object: obj})
	return obj.ID, nil
}

// DestroyShared removes an object spawned with InstantiateShared.
func (m *Member) DestroyShared(_ context.Context, id uuid.UUID) error {
	h := m.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.authority != m.id {
		return ErrNotAuthority
	}
	obj, ok := h.objects[id]
	if !ok {
		return ErrUnknownObj
	}
	delete(h.objects, id)
	h.order = slices.DeleteFunc(h.order, func(o uuid.UUID) bool { return o == id })

	obj.Destroyed = true
	h.publish(Event{Kind: EventObject, Object: obj})
	return nil
}

// Objects lists live shared objects in spawn order.
func (m *Member) Objects(context.Context) ([]SharedObject, error) {
	h := m.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]SharedObject, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.objects[id])
	}
	return out, nil
}

// Leave removes this member from the room.
func (m *Member) Leave(context.Context) error {
	m.hub.Leave(m.id)
	return nil
}
