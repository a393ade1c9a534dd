package session

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotPermitted = errors.New("write not permitted for this scope")
	ErrNotAuthority = errors.New("operation requires the authority role")
	ErrNoAuthority  = errors.New("session has no authority")
	ErrRoomFull     = errors.New("room is full")
	ErrNotMember    = errors.New("participant is not a member of the room")
	ErrInvalidScope = errors.New("invalid property scope")
	ErrUnknownObj   = errors.New("unknown shared object")
)

// EventKind tags the payload carried by an Event.
type EventKind uint8

const (
	EventProperty EventKind = iota + 1
	EventMessage
	EventAuthority
	EventMembership
	EventObject
)

func (k EventKind) String() string {
	switch k {
	case EventProperty:
		return "property"
	case EventMessage:
		return "message"
	case EventAuthority:
		return "authority"
	case EventMembership:
		return "membership"
	case EventObject:
		return "object"
	default:
		return "unknown"
	}
}

// Outcome is the phase of an arbitrated message.
type Outcome uint8

const (
	OutcomeRequest Outcome = iota + 1
	OutcomeGranted
	OutcomeDenied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRequest:
		return "request"
	case OutcomeGranted:
		return "granted"
	case OutcomeDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Message is a fire-and-forget payload between participants.
type Message struct {
	Kind      string
	Outcome   Outcome
	From      uuid.UUID
	Requester uuid.UUID
	Target    string
	Reason    string
	Value     Value
}

// PropertyChange reports a new value for a key in a scope.
type PropertyChange struct {
	Scope Scope
	Key   string
	Value Value
}

// Vec3 is a world position.
type Vec3 struct {
	X, Y, Z float64
}

// SharedObject is an entity spawned by the authority and visible to all.
type SharedObject struct {
	ID        uuid.UUID
	Kind      string
	Position  Vec3
	Destroyed bool
}

// Event is a notification delivered to a subscription. To, when set, limits
// delivery to one participant.
type Event struct {
	Kind        EventKind
	To          uuid.UUID
	Property    PropertyChange
	Message     Message
	Authority   uuid.UUID
	Participant uuid.UUID
	Joined      bool
	Object      SharedObject
}

// For reports whether e should be delivered to participant id.
func (e Event) For(id uuid.UUID) bool {
	return e.To == uuid.Nil || e.To == id
}
