package i

import (
	"context"

	"github.com/beka-birhanu/vinom-mazesync/session"
	"github.com/google/uuid"
)

// SessionService is a participant's handle on the shared room: membership,
// authority, scoped properties, messaging and shared objects.
type SessionService interface {
	// LocalID returns the id of the participant this handle belongs to.
	LocalID() uuid.UUID

	// IsAuthority reports whether the local participant holds the authority role.
	IsAuthority() bool

	// Authority returns the current authority, false while none is elected.
	Authority() (uuid.UUID, bool)

	ParticipantCount(ctx context.Context) (int, error)

	// ExpectedParticipantCount returns the room capacity.
	ExpectedParticipantCount() int

	// Participants returns the members in join order.
	Participants(ctx context.Context) ([]uuid.UUID, error)

	// SetProperty writes a shared property. Writing a scope other than the
	// local player's own requires the authority role.
	SetProperty(ctx context.Context, scope session.Scope, key string, value session.Value) error

	// SetPropertyOnce writes a shared property only if it is absent, with the
	// same permissions as SetProperty. It returns the value stored afterwards
	// and whether this call wrote it.
	SetPropertyOnce(ctx context.Context, scope session.Scope, key string, value session.Value) (session.Value, bool, error)

	// Property reads a shared property; the bool is false when it is absent.
	Property(ctx context.Context, scope session.Scope, key string) (session.Value, bool, error)

	Properties(ctx context.Context, scope session.Scope) (map[string]session.Value, error)

	// SendRequest delivers a message to the authority only.
	SendRequest(ctx context.Context, msg session.Message) error

	// Broadcast delivers a message to every participant, the sender included.
	Broadcast(ctx context.Context, msg session.Message) error

	// Subscribe opens a stream of events addressed to the local participant.
	// The caller must close it.
	Subscribe(ctx context.Context) (*session.Subscription, error)

	// InstantiateShared spawns an object visible to all (authority only).
	InstantiateShared(ctx context.Context, kind string, pos session.Vec3) (uuid.UUID, error)

	// DestroyShared removes a shared object (authority only).
	DestroyShared(ctx context.Context, id uuid.UUID) error

	Objects(ctx context.Context) ([]session.SharedObject, error)

	// Leave removes the local participant from the room.
	Leave(ctx context.Context) error
}
