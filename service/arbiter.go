package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/beka-birhanu/vinom-mazesync/service/i"
	"github.com/beka-birhanu/vinom-mazesync/session"
	"github.com/google/uuid"
)

// Denial reasons shared by the built-in rules.
const (
	ReasonUnknownKind   = "unknown-kind"
	ReasonInternalError = "internal-error"
)

// Request is an arbitrated change asked for by one participant.
type Request struct {
	Kind      string
	Requester uuid.UUID
	Target    string
	Value     session.Value
}

// Decision is a rule's verdict on a request.
type Decision struct {
	Granted bool
	Reason  string
	Value   session.Value
}

// Grant accepts a request, attaching v to the broadcast outcome.
func Grant(v session.Value) Decision { return Decision{Granted: true, Value: v} }

// Deny rejects a request.
func Deny(reason string) Decision { return Decision{Reason: reason} }

// Rule validates and commits one kind of request. Decide runs only on the
// authority, one request at a time.
type Rule interface {
	Kind() string
	Decide(ctx context.Context, req Request) (Decision, error)
}

// Outcome is the committed result seen by participants.
type Outcome struct {
	Kind      string
	Requester uuid.UUID
	Target    string
	Granted   bool
	Reason    string
	Value     session.Value
}

// OutcomeHandler applies an outcome locally.
type OutcomeHandler func(ctx context.Context, o Outcome)

// Arbiter routes requests to the authority and outcomes back to everyone.
// Grants are applied by every participant; denials only by the requester.
type Arbiter struct {
	session i.SessionService
	logger  i.Logger

	mu       sync.RWMutex
	rules    map[string]Rule
	handlers map[string][]OutcomeHandler
}

// NewArbiter creates an arbiter with no rules.
func NewArbiter(s i.SessionService, logger i.Logger) (*Arbiter, error) {
	if s == nil {
		return nil, ErrMissingSession
	}
	if logger == nil {
		return nil, ErrMissingLogger
	}
	return &Arbiter{
		session:  s,
		logger:   logger,
		rules:    make(map[string]Rule),
		handlers: make(map[string][]OutcomeHandler),
	}, nil
}

// Register installs rules, replacing any rule of the same kind.
func (a *Arbiter) Register(rules ...Rule) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range rules {
		a.rules[r.Kind()] = r
	}
}

// OnOutcome adds a handler for outcomes of kind.
func (a *Arbiter) OnOutcome(kind string, h OutcomeHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[kind] = append(a.handlers[kind], h)
}

// Request asks the authority for a change. It returns once the request is
// sent; the result arrives later as an outcome.
func (a *Arbiter) Request(ctx context.Context, kind, target string, value session.Value) error {
	err := a.session.SendRequest(ctx, session.Message{
		Kind:      kind,
		Outcome:   session.OutcomeRequest,
		Requester: a.session.LocalID(),
		Target:    target,
		Value:     value,
	})
	if errors.Is(err, session.ErrNoAuthority) {
		a.logger.Warning(fmt.Sprintf("Dropping %s request for %q: no authority", kind, target))
	}
	return err
}

// Run handles arbitration messages until ctx ends.
func (a *Arbiter) Run(ctx context.Context) error {
	sub, err := a.session.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribing to session: %w", err)
	}
	return a.Serve(ctx, sub)
}

// Serve is Run on a subscription the caller opened. It closes sub.
func (a *Arbiter) Serve(ctx context.Context, sub *session.Subscription) error {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return ErrSubscriptionClosed
			}
			a.Handle(ctx, ev)
		}
	}
}

// Handle processes one session event. Events other than messages are ignored.
func (a *Arbiter) Handle(ctx context.Context, ev session.Event) {
	if ev.Kind != session.EventMessage {
		return
	}
	msg := ev.Message

	switch msg.Outcome {
	case session.OutcomeRequest:
		a.decide(ctx, msg)
	case session.OutcomeGranted:
		a.dispatch(ctx, outcomeOf(msg))
	case session.OutcomeDenied:
		if msg.Requester == a.session.LocalID() {
			a.dispatch(ctx, outcomeOf(msg))
		}
	}
}

func (a *Arbiter) decide(ctx context.Context, msg session.Message) {
	if !a.session.IsAuthority() {
		a.logger.Warning(fmt.Sprintf("Dropping %s request from %s: not the authority", msg.Kind, msg.From))
		return
	}

	// The sender is the requester; a message cannot speak for someone else.
	req := Request{Kind: msg.Kind, Requester: msg.From, Target: msg.Target, Value: msg.Value}
	if req.Requester == uuid.Nil {
		req.Requester = msg.Requester
	}

	a.mu.RLock()
	rule, ok := a.rules[msg.Kind]
	a.mu.RUnlock()

	decision := Deny(ReasonUnknownKind)
	if ok {
		var err error
		if decision, err = rule.Decide(ctx, req); err != nil {
			a.logger.Error(fmt.Sprintf("Deciding %s request from %s: %s", req.Kind, req.Requester, err))
			decision = Deny(ReasonInternalError)
		}
	} else {
		a.logger.Warning(fmt.Sprintf("No rule for %s requests", msg.Kind))
	}

	out := session.Message{
		Kind:      req.Kind,
		Outcome:   session.OutcomeDenied,
		Requester: req.Requester,
		Target:    req.Target,
		Reason:    decision.Reason,
		Value:     decision.Value,
	}
	if decision.Granted {
		out.Outcome = session.OutcomeGranted
		a.logger.Info(fmt.Sprintf("Granted %s %q to %s", req.Kind, req.Target, req.Requester))
	} else {
		a.logger.Info(fmt.Sprintf("Denied %s %q to %s: %s", req.Kind, req.Target, req.Requester, decision.Reason))
	}

	if err := a.session.Broadcast(ctx, out); err != nil {
		a.logger.Error(fmt.Sprintf("Broadcasting %s outcome: %s", req.Kind, err))
	}
}

func (a *Arbiter) dispatch(ctx context.Context, o Outcome) {
	a.mu.RLock()
	handlers := a.handlers[o.Kind]
	a.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, o)
	}
}

func outcomeOf(msg session.Message) Outcome {
	return Outcome{
		Kind:      msg.Kind,
		Requester: msg.Requester,
		Target:    msg.Target,
		Granted:   msg.Outcome == session.OutcomeGranted,
		Reason:    msg.Reason,
		Value:     msg.Value,
	}
}
