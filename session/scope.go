package session

import (
	"fmt"

	"github.com/google/uuid"
)

// ScopeKind selects the namespace a property lives in.
type ScopeKind uint8

const (
	ScopeRoom ScopeKind = iota + 1
	ScopePlayer
)

// Scope addresses either the room-wide properties or one participant's.
type Scope struct {
	Kind        ScopeKind
	Participant uuid.UUID
}

// Room is the session-wide scope.
func Room() Scope { return Scope{Kind: ScopeRoom} }

// Player is the scope owned by participant id.
func Player(id uuid.UUID) Scope { return Scope{Kind: ScopePlayer, Participant: id} }

// IsRoom reports whether s is the session-wide scope.
func (s Scope) IsRoom() bool { return s.Kind == ScopeRoom }

// Owned reports whether s is the player scope of id.
func (s Scope) Owned(id uuid.UUID) bool {
	return s.Kind == ScopePlayer && s.Participant == id
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeRoom:
		return "room"
	case ScopePlayer:
		return fmt.Sprintf("player:%s", s.Participant)
	default:
		return "invalid"
	}
}

func (s Scope) valid() bool {
	switch s.Kind {
	case ScopeRoom:
		return true
	case ScopePlayer:
		return s.Participant != uuid.Nil
	default:
		return false
	}
}
