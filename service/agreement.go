package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/beka-birhanu/vinom-mazesync/service/i"
	"github.com/beka-birhanu/vinom-mazesync/session"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	randomSeedMin       = 1
	randomSeedMax       = 1000000
)

// AgreementState is a step of the seed handshake.
type AgreementState int

const (
	// Authority role.
	StateAwaitingPreconditions AgreementState = iota + 1
	StateSeedProposed
	StateSeedPublished

	// Follower role.
	StateAwaitingSeed
	StateGenerating
)

func (s AgreementState) String() string {
	switch s {
	case StateAwaitingPreconditions:
		return "awaiting-preconditions"
	case StateSeedProposed:
		return "seed-proposed"
	case StateSeedPublished:
		return "seed-published"
	case StateAwaitingSeed:
		return "awaiting-seed"
	case StateGenerating:
		return "generating"
	default:
		return "unknown"
	}
}

// SeedOptions configures the handshake.
type SeedOptions struct {
	UseFixedSeed         bool
	FixedSeed            int32
	ExpectedParticipants int // 0 derives the count from the room capacity
	WaitForAllReady      bool
	PollInterval         time.Duration
	SeedSource           func() (int32, error) // overrides the random draw
}

// SeedAgreement elects a single maze seed for the room. The authority waits
// for the expected participants to be present and ready, then publishes a
// seed; everyone, the authority included, builds the maze exactly once from
// the published value.
type SeedAgreement struct {
	session i.SessionService
	builder i.MazeBuilder
	logger  i.Logger
	opts    SeedOptions

	mu        sync.Mutex
	state     AgreementState
	seed      int32
	generated bool
}

// NewSeedAgreement wires a handshake for one room.
func NewSeedAgreement(s i.SessionService, builder i.MazeBuilder, logger i.Logger, opts *SeedOptions) (*SeedAgreement, error) {
	if s == nil {
		return nil, ErrMissingSession
	}
	if logger == nil {
		return nil, ErrMissingLogger
	}
	if opts == nil {
		opts = &SeedOptions{WaitForAllReady: true}
	}
	o := *opts
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.ExpectedParticipants < 0 {
		o.ExpectedParticipants = 0
	}
	if o.SeedSource == nil {
		o.SeedSource = randomSeed
	}

	return &SeedAgreement{
		session: s,
		builder: builder,
		logger:  logger,
		opts:    o,
	}, nil
}

// State returns the current handshake step.
func (a *SeedAgreement) State() AgreementState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Seed returns the seed the local maze was built from.
func (a *SeedAgreement) Seed() (int32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seed, a.generated
}

// Generated reports whether the local maze has been built.
func (a *SeedAgreement) Generated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generated
}

// Run drives the handshake until the local maze is built or ctx ends. The
// poll ticker and the session subscription are released when it returns.
func (a *SeedAgreement) Run(ctx context.Context) error {
	sub, err := a.session.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribing to session: %w", err)
	}
	return a.Serve(ctx, sub)
}

// Serve is Run on a subscription the caller opened. It closes sub.
func (a *SeedAgreement) Serve(ctx context.Context, sub *session.Subscription) error {
	defer sub.Close()

	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	// Late joiners find an already published seed here.
	a.poll(ctx)

	for !a.Generated() {
		select {
		case <-ctx.Done():
			a.logger.Info("Seed agreement cancelled before generation")
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return ErrSubscriptionClosed
			}
			a.handle(ctx, ev)
		case <-ticker.C:
			a.poll(ctx)
		}
	}
	return nil
}

func (a *SeedAgreement) handle(ctx context.Context, ev session.Event) {
	switch ev.Kind {
	case session.EventProperty:
		p := ev.Property
		if p.Scope.IsRoom() && p.Key == KeyMazeSeed {
			if seed, ok := seedOf(p.Value); ok {
				a.generate(ctx, seed)
			}
		}
	case session.EventAuthority:
		if ev.Authority == a.session.LocalID() && !a.Generated() {
			a.logger.Info("Authority role acquired before seed publication, resuming handshake")
			a.setState(StateAwaitingPreconditions)
			a.poll(ctx)
		}
	}
}

// poll runs one handshake step for the local role.
func (a *SeedAgreement) poll(ctx context.Context) {
	if a.Generated() {
		return
	}

	v, ok, err := a.session.Property(ctx, session.Room(), KeyMazeSeed)
	if err != nil {
		a.logger.Warning(fmt.Sprintf("Reading published seed: %s", err))
		return
	}
	if ok {
		if seed, valid := seedOf(v); valid {
			a.generate(ctx, seed)
			return
		}
		a.logger.Warning(fmt.Sprintf("Ignoring malformed seed property %s", v))
	}

	if !a.session.IsAuthority() {
		a.setState(StateAwaitingSeed)
		return
	}

	a.setState(StateAwaitingPreconditions)
	ready, err := a.preconditionsMet(ctx)
	if err != nil {
		a.logger.Warning(fmt.Sprintf("Checking seed preconditions: %s", err))
		return
	}
	if !ready {
		return
	}
	a.publish(ctx)
}

func (a *SeedAgreement) preconditionsMet(ctx context.Context) (bool, error) {
	expected := a.opts.ExpectedParticipants
	if expected == 0 {
		expected = a.session.ExpectedParticipantCount()
	}

	participants, err := a.session.Participants(ctx)
	if err != nil {
		return false, err
	}
	if len(participants) < expected {
		a.logger.Debug(fmt.Sprintf("Waiting for participants: %d/%d", len(participants), expected))
		return false, nil
	}

	if !a.opts.WaitForAllReady {
		return true, nil
	}
	for _, id := range participants {
		v, _, err := a.session.Property(ctx, session.Player(id), KeyReady)
		if err != nil {
			return false, err
		}
		if !v.Truthy() {
			a.logger.Debug(fmt.Sprintf("Waiting for participant %s to be ready", id))
			return false, nil
		}
	}
	return true, nil
}

func (a *SeedAgreement) publish(ctx context.Context) {
	seed := a.opts.FixedSeed
	if !a.opts.UseFixedSeed {
		var err error
		if seed, err = a.opts.SeedSource(); err != nil {
			a.logger.Error(fmt.Sprintf("Drawing seed: %s", err))
			return
		}
	}

	a.setState(StateSeedProposed)
	stored, written, err := a.session.SetPropertyOnce(ctx, session.Room(), KeyMazeSeed, session.Int(int64(seed)))
	if err != nil {
		a.logger.Warning(fmt.Sprintf("Publishing seed %d: %s", seed, err))
		a.setState(StateAwaitingPreconditions)
		return
	}
	if !written {
		existing, ok := seedOf(stored)
		if !ok {
			a.logger.Warning(fmt.Sprintf("Ignoring malformed seed property %s", stored))
			a.setState(StateAwaitingPreconditions)
			return
		}
		a.logger.Info(fmt.Sprintf("Seed %d already published, adopting it", existing))
		a.setState(StateAwaitingSeed)
		a.generate(ctx, existing)
		return
	}

	a.logger.Info(fmt.Sprintf("Published maze seed %d", seed))
	a.generate(ctx, seed)
}

// generate builds the maze once. Later seeds, including a re-published one,
// are ignored so an already placed world is never rebuilt.
func (a *SeedAgreement) generate(ctx context.Context, seed int32) {
	a.mu.Lock()
	if a.generated {
		a.mu.Unlock()
		return
	}
	a.generated = true
	a.seed = seed
	if a.state == StateSeedProposed {
		a.state = StateSeedPublished
	} else {
		a.state = StateGenerating
	}
	a.mu.Unlock()

	if a.builder == nil {
		a.logger.Warning("No maze builder configured, skipping generation")
		return
	}
	a.logger.Info(fmt.Sprintf("Generating maze from seed %d", seed))
	if err := a.builder.Build(ctx, seed); err != nil {
		a.logger.Error(fmt.Sprintf("Building maze from seed %d: %s", seed, err))
	}
}

func (a *SeedAgreement) setState(s AgreementState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.generated {
		a.state = s
	}
}

func seedOf(v session.Value) (int32, bool) {
	n, ok := v.AsInt()
	if !ok || n < -1<<31 || n > 1<<31-1 {
		return 0, false
	}
	return int32(n), true
}

// randomSeed draws a seed in [1, 1000000).
func randomSeed() (int32, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(randomSeedMax-randomSeedMin))
	if err != nil {
		return 0, err
	}
	return int32(n.Int64() + randomSeedMin), nil
}
