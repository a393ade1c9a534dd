package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beka-birhanu/vinom-mazesync/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedAgreement(t *testing.T) {
	ctx := context.Background()
	fixed := func(seed int32, expected int) *SeedOptions {
		return &SeedOptions{
			UseFixedSeed:         true,
			FixedSeed:            seed,
			ExpectedParticipants: expected,
			WaitForAllReady:      true,
			PollInterval:         10 * time.Millisecond,
		}
	}

	t.Run("Authority waits for every participant to be ready", func(t *testing.T) {
		hub := session.NewHub(2)
		m := joinN(t, hub, 2)
		builder := &recordingBuilder{}
		a, err := NewSeedAgreement(m[0], builder, &testLogger{}, fixed(42, 2))
		require.NoError(t, err)

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		done := runAsync(runCtx, a.Run)

		require.NoError(t, m[0].SetProperty(ctx, session.Player(m[0].LocalID()), KeyReady, session.Bool(true)))
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, StateAwaitingPreconditions, a.State())
		_, published := seedProperty(t, m[0])
		assert.False(t, published)
		assert.Empty(t, builder.built())

		require.NoError(t, m[1].SetProperty(ctx, session.Player(m[1].LocalID()), KeyReady, session.Bool(true)))
		require.Eventually(t, a.Generated, waitFor, tick)

		seed, ok := seedProperty(t, m[0])
		assert.True(t, ok)
		assert.Equal(t, int64(42), seed)
		assert.Equal(t, StateSeedPublished, a.State())
		assert.Equal(t, []int32{42}, builder.built())
		assert.NoError(t, <-done)
	})

	t.Run("Participant count gates publication", func(t *testing.T) {
		hub := session.NewHub(0)
		m := joinN(t, hub, 1)
		opts := fixed(5, 2)
		opts.WaitForAllReady = false
		a, _ := NewSeedAgreement(m[0], &recordingBuilder{}, &testLogger{}, opts)

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		done := runAsync(runCtx, a.Run)

		time.Sleep(40 * time.Millisecond)
		assert.False(t, a.Generated())

		joinN(t, hub, 1)
		require.Eventually(t, a.Generated, waitFor, tick)
		assert.NoError(t, <-done)
	})

	t.Run("Expected count derives from capacity", func(t *testing.T) {
		hub := session.NewHub(3)
		m := joinN(t, hub, 2)
		opts := fixed(5, 0)
		opts.WaitForAllReady = false
		a, _ := NewSeedAgreement(m[0], &recordingBuilder{}, &testLogger{}, opts)

		ok, err := a.preconditionsMet(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		joinN(t, hub, 1)
		ok, err = a.preconditionsMet(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Followers build the published seed", func(t *testing.T) {
		hub := session.NewHub(2)
		m := joinN(t, hub, 2)
		authority, follower := &recordingBuilder{}, &recordingBuilder{}
		a, _ := NewSeedAgreement(m[0], authority, &testLogger{}, fixed(77, 2))
		b, _ := NewSeedAgreement(m[1], follower, &testLogger{}, fixed(1, 2))

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		doneB := runAsync(runCtx, b.Run)
		require.Eventually(t, func() bool { return b.State() == StateAwaitingSeed }, waitFor, tick)
		doneA := runAsync(runCtx, a.Run)

		for _, member := range m {
			require.NoError(t, member.SetProperty(ctx, session.Player(member.LocalID()), KeyReady, session.Bool(true)))
		}

		require.Eventually(t, b.Generated, waitFor, tick)
		assert.Equal(t, []int32{77}, follower.built())
		assert.Equal(t, StateGenerating, b.State())
		assert.NoError(t, <-doneA)
		assert.NoError(t, <-doneB)
		assert.Equal(t, authority.built(), follower.built())
	})

	t.Run("Late joiner reads the published seed", func(t *testing.T) {
		hub := session.NewHub(0)
		m := joinN(t, hub, 1)
		require.NoError(t, m[0].SetProperty(ctx, session.Room(), KeyMazeSeed, session.Int(-9)))

		late := joinN(t, hub, 1)[0]
		builder := &recordingBuilder{}
		a, _ := NewSeedAgreement(late, builder, &testLogger{}, fixed(1, 5))
		require.NoError(t, a.Run(ctx))

		seed, ok := a.Seed()
		assert.True(t, ok)
		assert.Equal(t, int32(-9), seed)
		assert.Equal(t, []int32{-9}, builder.built())
	})

	t.Run("Generation happens once", func(t *testing.T) {
		hub := session.NewHub(0)
		m := joinN(t, hub, 1)
		builder := &recordingBuilder{}
		a, _ := NewSeedAgreement(m[0], builder, &testLogger{}, fixed(3, 1))

		a.generate(ctx, 3)
		a.handle(ctx, session.Event{
			Kind:     session.EventProperty,
			Property: session.PropertyChange{Scope: session.Room(), Key: KeyMazeSeed, Value: session.Int(4)},
		})
		a.poll(ctx)
		assert.Equal(t, []int32{3}, builder.built())
	})

	t.Run("New authority resumes before publication", func(t *testing.T) {
		hub := session.NewHub(0)
		m := joinN(t, hub, 2)
		logger := &testLogger{}
		builder := &recordingBuilder{}
		opts := fixed(11, 1)
		opts.PollInterval = time.Hour
		b, _ := NewSeedAgreement(m[1], builder, logger, opts)
		require.NoError(t, m[1].SetProperty(ctx, session.Player(m[1].LocalID()), KeyReady, session.Bool(true)))

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		done := runAsync(runCtx, b.Run)
		require.Eventually(t, func() bool { return b.State() == StateAwaitingSeed }, waitFor, tick)

		require.NoError(t, m[0].Leave(ctx))
		require.Eventually(t, b.Generated, waitFor, tick)

		assert.Equal(t, []int32{11}, builder.built())
		assert.Equal(t, StateSeedPublished, b.State())
		assert.True(t, logger.contains("resuming handshake"))
		assert.NoError(t, <-done)
	})

	t.Run("Random seeds stay in range", func(t *testing.T) {
		for i := 0; i < 200; i++ {
			seed, err := randomSeed()
			require.NoError(t, err)
			assert.GreaterOrEqual(t, seed, int32(1))
			assert.Less(t, seed, int32(1000000))
		}
	})

	t.Run("Seed source failure keeps waiting", func(t *testing.T) {
		hub := session.NewHub(0)
		m := joinN(t, hub, 1)
		logger := &testLogger{}
		a, _ := NewSeedAgreement(m[0], &recordingBuilder{}, logger, &SeedOptions{
			ExpectedParticipants: 1,
			SeedSource:           func() (int32, error) { return 0, errors.New("entropy exhausted") },
		})

		a.poll(ctx)
		assert.False(t, a.Generated())
		assert.Equal(t, StateAwaitingPreconditions, a.State())
		assert.True(t, logger.contains("entropy exhausted"))
	})

	t.Run("Seed published meanwhile is adopted", func(t *testing.T) {
		hub := session.NewHub(0)
		m := joinN(t, hub, 1)
		builder := &recordingBuilder{}
		a, _ := NewSeedAgreement(m[0], builder, &testLogger{}, &SeedOptions{
			ExpectedParticipants: 1,
			SeedSource: func() (int32, error) {
				// Another authority publishes between the read and the write.
				require.NoError(t, m[0].SetProperty(ctx, session.Room(), KeyMazeSeed, session.Int(7)))
				return 99, nil
			},
		})

		a.poll(ctx)
		require.True(t, a.Generated())
		seed, _ := a.Seed()
		assert.Equal(t, int32(7), seed)
		assert.Equal(t, []int32{7}, builder.built())

		stored, ok := seedProperty(t, m[0])
		assert.True(t, ok)
		assert.Equal(t, int64(7), stored)
	})

	t.Run("Missing builder is a warning", func(t *testing.T) {
		hub := session.NewHub(0)
		m := joinN(t, hub, 1)
		logger := &testLogger{}
		a, _ := NewSeedAgreement(m[0], nil, logger, fixed(8, 1))
		require.NoError(t, m[0].SetProperty(ctx, session.Player(m[0].LocalID()), KeyReady, session.Bool(true)))
		a.poll(ctx)
		assert.True(t, a.Generated())
		assert.True(t, logger.contains("No maze builder"))
	})

	t.Run("Cancellation tears down before generation", func(t *testing.T) {
		hub := session.NewHub(0)
		m := joinN(t, hub, 1)
		a, _ := NewSeedAgreement(m[0], &recordingBuilder{}, &testLogger{}, fixed(8, 3))

		runCtx, cancel := context.WithCancel(ctx)
		done := runAsync(runCtx, a.Run)
		time.Sleep(20 * time.Millisecond)
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
		assert.False(t, a.Generated())
	})

	t.Run("Leaving closes the subscription", func(t *testing.T) {
		hub := session.NewHub(0)
		m := joinN(t, hub, 2)
		b, _ := NewSeedAgreement(m[1], &recordingBuilder{}, &testLogger{}, fixed(8, 3))
		done := runAsync(ctx, b.Run)
		require.Eventually(t, func() bool { return b.State() == StateAwaitingSeed }, waitFor, tick)

		require.NoError(t, m[1].Leave(ctx))
		assert.ErrorIs(t, <-done, ErrSubscriptionClosed)
	})

	t.Run("Requires session and logger", func(t *testing.T) {
		_, err := NewSeedAgreement(nil, nil, &testLogger{}, nil)
		assert.ErrorIs(t, err, ErrMissingSession)

		hub := session.NewHub(0)
		_, err = NewSeedAgreement(joinN(t, hub, 1)[0], nil, nil, nil)
		assert.ErrorIs(t, err, ErrMissingLogger)
	})
}
