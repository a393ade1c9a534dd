package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func next(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case e, ok := <-s.Events():
		require.True(t, ok, "subscription closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return Event{}
	}
}

// nextOf skips events until one of kind arrives.
func nextOf(t *testing.T, s *Subscription, kind EventKind) Event {
	t.Helper()
	for {
		if e := next(t, s); e.Kind == kind {
			return e
		}
	}
}

func TestSubscription(t *testing.T) {
	t.Run("Delivers in push order", func(t *testing.T) {
		s := NewSubscription(nil)
		defer s.Close()
		for i := 0; i < 100; i++ {
			require.True(t, s.Push(Event{Kind: EventProperty, Property: PropertyChange{Key: "k", Value: Int(int64(i))}}))
		}
		for i := 0; i < 100; i++ {
			v, _ := next(t, s).Property.Value.AsInt()
			assert.Equal(t, int64(i), v)
		}
	})

	t.Run("Close runs callback once and ends delivery", func(t *testing.T) {
		calls := 0
		s := NewSubscription(func() { calls++ })
		s.Close()
		s.Close()
		assert.Equal(t, 1, calls)
		assert.False(t, s.Push(Event{Kind: EventMessage}))

		_, ok := <-s.Events()
		assert.False(t, ok)
	})

	t.Run("Shutdown skips callback", func(t *testing.T) {
		calls := 0
		s := NewSubscription(func() { calls++ })
		s.Shutdown()
		s.Close()
		assert.Zero(t, calls)
	})
}

func TestCodec(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	t.Run("Event round trip", func(t *testing.T) {
		events := []Event{
			{Kind: EventProperty, Property: PropertyChange{Scope: Player(a), Key: "ready", Value: Bool(true)}},
			{Kind: EventProperty, Property: PropertyChange{Scope: Room(), Key: "mazeSeed", Value: Int(-42)}},
			{Kind: EventMessage, To: b, Message: Message{
				Kind: "pickup", Outcome: OutcomeDenied, From: b, Requester: a,
				Target: "item", Reason: "already-picked", Value: Str("HasTicket"),
			}},
			{Kind: EventAuthority, Authority: b},
			{Kind: EventMembership, Participant: a, Joined: true},
			{Kind: EventObject, Object: SharedObject{ID: a, Kind: "goal", Position: Vec3{X: 1.5, Y: 0.5, Z: -3}, Destroyed: true}},
		}
		for _, e := range events {
			got, err := DecodeEvent(EncodeEvent(e))
			require.NoError(t, err, e.Kind.String())
			assert.Equal(t, e, got)
		}
	})

	t.Run("Unknown fields are skipped", func(t *testing.T) {
		raw := EncodeValue(Str("x"))
		raw = protowire.AppendTag(raw, 99, protowire.VarintType)
		raw = protowire.AppendVarint(raw, 7)
		v, err := DecodeValue(raw)
		require.NoError(t, err)
		assert.Equal(t, Str("x"), v)
	})

	t.Run("Malformed input", func(t *testing.T) {
		_, err := DecodeEvent([]byte{0xff})
		assert.ErrorIs(t, err, ErrMalformed)

		_, err = DecodeEvent(nil)
		assert.ErrorIs(t, err, ErrMalformed)

		bad := protowire.AppendTag(nil, msgFrom, protowire.BytesType)
		bad = protowire.AppendBytes(bad, []byte{1, 2, 3})
		_, err = DecodeMessage(bad)
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestHub(t *testing.T) {
	ctx := context.Background()

	join := func(t *testing.T, h *Hub) *Member {
		t.Helper()
		m, err := h.Join(uuid.New())
		require.NoError(t, err)
		return m
	}

	t.Run("First member is authority", func(t *testing.T) {
		h := NewHub(2)
		a, b := join(t, h), join(t, h)
		assert.True(t, a.IsAuthority())
		assert.False(t, b.IsAuthority())

		id, ok := b.Authority()
		assert.True(t, ok)
		assert.Equal(t, a.LocalID(), id)

		n, _ := a.ParticipantCount(ctx)
		assert.Equal(t, 2, n)
		assert.Equal(t, 2, a.ExpectedParticipantCount())

		_, err := h.Join(uuid.New())
		assert.ErrorIs(t, err, ErrRoomFull)
	})

	t.Run("Write permissions", func(t *testing.T) {
		h := NewHub(0)
		a, b := join(t, h), join(t, h)

		assert.NoError(t, b.SetProperty(ctx, Player(b.LocalID()), "ready", Bool(true)))
		assert.ErrorIs(t, b.SetProperty(ctx, Player(a.LocalID()), "ready", Bool(true)), ErrNotPermitted)
		assert.ErrorIs(t, b.SetProperty(ctx, Room(), "mazeSeed", Int(1)), ErrNotPermitted)
		assert.ErrorIs(t, b.SetProperty(ctx, Scope{}, "x", Int(1)), ErrInvalidScope)

		assert.NoError(t, a.SetProperty(ctx, Room(), "mazeSeed", Int(1)))
		assert.NoError(t, a.SetProperty(ctx, Player(b.LocalID()), "colorIndex", Int(3)))

		v, ok, err := b.Property(ctx, Room(), "mazeSeed")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, Int(1), v)

		props, err := a.Properties(ctx, Player(b.LocalID()))
		require.NoError(t, err)
		assert.Equal(t, map[string]Value{"ready": Bool(true), "colorIndex": Int(3)}, props)

		_, ok, err = a.Property(ctx, Player(uuid.New()), "ready")
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Write-once property keeps the first value", func(t *testing.T) {
		h := NewHub(0)
		a, b := join(t, h), join(t, h)

		sub, err := b.Subscribe(ctx)
		require.NoError(t, err)
		defer sub.Close()

		v, written, err := a.SetPropertyOnce(ctx, Room(), "mazeSeed", Int(1))
		require.NoError(t, err)
		assert.True(t, written)
		assert.Equal(t, Int(1), v)

		v, written, err = a.SetPropertyOnce(ctx, Room(), "mazeSeed", Int(2))
		require.NoError(t, err)
		assert.False(t, written)
		assert.Equal(t, Int(1), v)

		_, _, err = b.SetPropertyOnce(ctx, Room(), "mazeSeed", Int(3))
		assert.ErrorIs(t, err, ErrNotPermitted)

		got, _, _ := b.Property(ctx, Room(), "mazeSeed")
		assert.Equal(t, Int(1), got)

		e := <-sub.Events()
		assert.Equal(t, EventProperty, e.Kind)
		assert.Equal(t, Int(1), e.Property.Value)
		select {
		case e := <-sub.Events():
			t.Fatalf("unexpected second event %v", e.Kind)
		case <-time.After(20 * time.Millisecond):
		}
	})

	t.Run("Property changes reach every member", func(t *testing.T) {
		h := NewHub(0)
		a, b := join(t, h), join(t, h)
		sa, err := a.Subscribe(ctx)
		require.NoError(t, err)
		defer sa.Close()
		sb, err := b.Subscribe(ctx)
		require.NoError(t, err)
		defer sb.Close()

		require.NoError(t, a.SetProperty(ctx, Room(), "mazeSeed", Int(9)))
		for _, s := range []*Subscription{sa, sb} {
			e := nextOf(t, s, EventProperty)
			assert.True(t, e.Property.Scope.IsRoom())
			assert.Equal(t, "mazeSeed", e.Property.Key)
		}
	})

	t.Run("Requests reach only the authority", func(t *testing.T) {
		h := NewHub(0)
		a, b := join(t, h), join(t, h)
		sa, _ := a.Subscribe(ctx)
		defer sa.Close()
		sb, _ := b.Subscribe(ctx)
		defer sb.Close()

		require.NoError(t, b.SendRequest(ctx, Message{Kind: "color", Outcome: OutcomeRequest, Requester: b.LocalID()}))
		require.NoError(t, a.Broadcast(ctx, Message{Kind: "color", Outcome: OutcomeGranted, Requester: b.LocalID()}))

		e := nextOf(t, sa, EventMessage)
		assert.Equal(t, OutcomeRequest, e.Message.Outcome)
		assert.Equal(t, b.LocalID(), e.Message.From)

		e = nextOf(t, sb, EventMessage)
		assert.Equal(t, OutcomeGranted, e.Message.Outcome)
		assert.Equal(t, a.LocalID(), e.Message.From)
	})

	t.Run("Authority migrates to earliest remaining member", func(t *testing.T) {
		h := NewHub(0)
		a, b, c := join(t, h), join(t, h), join(t, h)
		sc, _ := c.Subscribe(ctx)
		defer sc.Close()

		sa, _ := a.Subscribe(ctx)
		require.NoError(t, a.Leave(ctx))
		_, ok := <-sa.Events()
		assert.False(t, ok)

		e := nextOf(t, sc, EventAuthority)
		assert.Equal(t, b.LocalID(), e.Authority)
		assert.True(t, b.IsAuthority())

		require.NoError(t, h.Handoff(c.LocalID()))
		assert.True(t, c.IsAuthority())
		assert.ErrorIs(t, h.Handoff(a.LocalID()), ErrNotMember)

		require.NoError(t, b.Leave(ctx))
		require.NoError(t, c.Leave(ctx))
		assert.ErrorIs(t, c.SendRequest(ctx, Message{}), ErrNotMember)
	})

	t.Run("No authority", func(t *testing.T) {
		h := NewHub(0)
		a := join(t, h)
		h.mu.Lock()
		h.authority = uuid.Nil
		h.mu.Unlock()
		assert.ErrorIs(t, a.SendRequest(ctx, Message{Kind: "pickup"}), ErrNoAuthority)
	})

	t.Run("Shared objects", func(t *testing.T) {
		h := NewHub(0)
		a, b := join(t, h), join(t, h)
		sb, _ := b.Subscribe(ctx)
		defer sb.Close()

		_, err := b.InstantiateShared(ctx, "goal", Vec3{})
		assert.ErrorIs(t, err, ErrNotAuthority)

		goal, err := a.InstantiateShared(ctx, "goal", Vec3{X: 2, Y: 0.5, Z: 1})
		require.NoError(t, err)
		item, err := a.InstantiateShared(ctx, "collectible", Vec3{X: 4, Y: 0.5})
		require.NoError(t, err)

		objs, _ := b.Objects(ctx)
		require.Len(t, objs, 2)
		assert.Equal(t, goal, objs[0].ID)

		assert.ErrorIs(t, b.DestroyShared(ctx, item), ErrNotAuthority)
		require.NoError(t, a.DestroyShared(ctx, item))
		assert.ErrorIs(t, a.DestroyShared(ctx, item), ErrUnknownObj)

		nextOf(t, sb, EventObject)
		nextOf(t, sb, EventObject)
		e := nextOf(t, sb, EventObject)
		assert.True(t, e.Object.Destroyed)
		assert.Equal(t, item, e.Object.ID)

		objs, _ = b.Objects(ctx)
		assert.Len(t, objs, 1)
	})
}
