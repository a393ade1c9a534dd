package service

import (
	"context"
	"testing"

	"github.com/beka-birhanu/vinom-mazesync/session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickupRule(t *testing.T) {
	ctx := context.Background()
	hub := session.NewHub(0)
	m := joinN(t, hub, 2)
	items := NewConsumables()
	rule := NewPickupRule(m[0], items, &testLogger{})

	first, err := m[0].InstantiateShared(ctx, ObjectCollectible, session.Vec3{})
	require.NoError(t, err)
	second, err := m[0].InstantiateShared(ctx, ObjectCollectible, session.Vec3{X: 1})
	require.NoError(t, err)
	items.Add(Consumable{ID: first, Key: "HasTicket"})
	items.Add(Consumable{ID: second, Key: "HasTicket"})

	req := func(target string) Request {
		return Request{Kind: KindPickup, Requester: m[1].LocalID(), Target: target}
	}

	t.Run("Unknown item", func(t *testing.T) {
		d, err := rule.Decide(ctx, req("not-an-id"))
		require.NoError(t, err)
		assert.Equal(t, Deny(ReasonUnknownItem), d)

		d, _ = rule.Decide(ctx, req(uuid.NewString()))
		assert.Equal(t, Deny(ReasonUnknownItem), d)
	})

	t.Run("Grant commits", func(t *testing.T) {
		d, err := rule.Decide(ctx, req(first.String()))
		require.NoError(t, err)
		assert.True(t, d.Granted)

		v, _, _ := m[1].Property(ctx, session.Player(m[1].LocalID()), "HasTicket")
		assert.True(t, v.Truthy())
		item, _ := items.Get(first)
		assert.True(t, item.PickedUp)
		assert.Len(t, items.Available(), 1)
	})

	t.Run("Already picked", func(t *testing.T) {
		d, _ := rule.Decide(ctx, Request{Kind: KindPickup, Requester: m[0].LocalID(), Target: first.String()})
		assert.Equal(t, Deny(ReasonAlreadyPicked), d)
	})

	t.Run("Already holding", func(t *testing.T) {
		d, _ := rule.Decide(ctx, req(second.String()))
		assert.Equal(t, Deny(ReasonAlreadyHolding), d)
		item, _ := items.Get(second)
		assert.False(t, item.PickedUp)
	})
}

func TestPickupRuleDepartedRequester(t *testing.T) {
	ctx := context.Background()
	hub := session.NewHub(0)
	m := joinN(t, hub, 3)
	items := NewConsumables()
	rule := NewPickupRule(m[0], items, &testLogger{})

	id, err := m[0].InstantiateShared(ctx, ObjectCollectible, session.Vec3{})
	require.NoError(t, err)
	items.Add(Consumable{ID: id, Key: "HasTicket"})

	require.NoError(t, m[1].Leave(ctx))

	t.Run("Failed grant releases the item", func(t *testing.T) {
		_, err := rule.Decide(ctx, Request{Kind: KindPickup, Requester: m[1].LocalID(), Target: id.String()})
		require.ErrorIs(t, err, session.ErrNotMember)

		item, ok := items.Get(id)
		require.True(t, ok)
		assert.False(t, item.PickedUp)
		assert.Len(t, items.Available(), 1)
	})

	t.Run("Next requester gets it", func(t *testing.T) {
		d, err := rule.Decide(ctx, Request{Kind: KindPickup, Requester: m[2].LocalID(), Target: id.String()})
		require.NoError(t, err)
		assert.True(t, d.Granted)

		objs, err := m[0].Objects(ctx)
		require.NoError(t, err)
		assert.Empty(t, objs)
		item, _ := items.Get(id)
		assert.True(t, item.PickedUp)
	})
}

func TestColorRule(t *testing.T) {
	ctx := context.Background()

	t.Run("Lowest free index and re-grant", func(t *testing.T) {
		hub := session.NewHub(0)
		m := joinN(t, hub, 3)
		rule := NewColorRule(m[0], nil)
		assert.Len(t, rule.Palette(), 8)

		require.NoError(t, m[0].SetProperty(ctx, session.Player(m[0].LocalID()), KeyColorIndex, session.Int(0)))

		d, err := rule.Decide(ctx, Request{Requester: m[1].LocalID()})
		require.NoError(t, err)
		assert.Equal(t, Grant(session.Int(1)), d)

		d, _ = rule.Decide(ctx, Request{Requester: m[2].LocalID()})
		assert.Equal(t, Grant(session.Int(2)), d)

		d, _ = rule.Decide(ctx, Request{Requester: m[1].LocalID()})
		assert.Equal(t, Grant(session.Int(1)), d)

		v, _, _ := m[2].Property(ctx, session.Player(m[2].LocalID()), KeyColorIndex)
		assert.Equal(t, session.Int(2), v)
	})

	t.Run("Full palette picks at random", func(t *testing.T) {
		hub := session.NewHub(0)
		m := joinN(t, hub, 3)
		rule := NewColorRule(m[0], []string{"red", "blue"})
		rule.pick = func(n int) int { return n - 1 }

		for _, member := range m[:2] {
			_, err := rule.Decide(ctx, Request{Requester: member.LocalID()})
			require.NoError(t, err)
		}
		d, err := rule.Decide(ctx, Request{Requester: m[2].LocalID()})
		require.NoError(t, err)
		assert.Equal(t, Grant(session.Int(1)), d)
	})

	t.Run("Follower cannot commit", func(t *testing.T) {
		hub := session.NewHub(0)
		m := joinN(t, hub, 2)
		rule := NewColorRule(m[1], nil)
		_, err := rule.Decide(ctx, Request{Requester: m[0].LocalID()})
		assert.ErrorIs(t, err, session.ErrNotPermitted)
	})
}

func TestFinishRule(t *testing.T) {
	ctx := context.Background()
	hub := session.NewHub(0)
	m := joinN(t, hub, 3)
	rule := NewFinishRule(m[0], "HasTicket")

	t.Run("Requires the consumable", func(t *testing.T) {
		d, err := rule.Decide(ctx, Request{Requester: m[1].LocalID()})
		require.NoError(t, err)
		assert.Equal(t, Deny(ReasonMissingTicket), d)
	})

	t.Run("First finisher wins", func(t *testing.T) {
		for _, member := range m[1:] {
			require.NoError(t, m[0].SetProperty(ctx, session.Player(member.LocalID()), "HasTicket", session.Bool(true)))
		}

		d, err := rule.Decide(ctx, Request{Requester: m[2].LocalID()})
		require.NoError(t, err)
		assert.True(t, d.Granted)

		d, _ = rule.Decide(ctx, Request{Requester: m[1].LocalID()})
		assert.Equal(t, Deny(ReasonAlreadyFinished), d)

		who, ok := rule.Finisher()
		assert.True(t, ok)
		assert.Equal(t, m[2].LocalID(), who)

		v, _, _ := m[1].Property(ctx, session.Room(), KeyGameFinishedBy)
		assert.Equal(t, session.Str(m[2].LocalID().String()), v)
	})

	t.Run("New authority honors a committed finish", func(t *testing.T) {
		successor := NewFinishRule(m[0], "HasTicket")
		d, err := successor.Decide(ctx, Request{Requester: m[1].LocalID()})
		require.NoError(t, err)
		assert.Equal(t, Deny(ReasonAlreadyFinished), d)
	})
}
