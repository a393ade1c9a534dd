package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/beka-birhanu/vinom-mazesync/service/i"
	"github.com/beka-birhanu/vinom-mazesync/session"
	"github.com/google/uuid"
)

// Finish denial reasons.
const (
	ReasonAlreadyFinished = "already-finished"
	ReasonMissingTicket   = "missing-ticket"
)

// FinishRule lets the first participant holding the required consumable
// finish the game by reaching the goal.
type FinishRule struct {
	session  i.SessionService
	required string

	mu       sync.Mutex
	finisher uuid.UUID
}

// NewFinishRule requires the consumable key required to finish.
func NewFinishRule(s i.SessionService, required string) *FinishRule {
	return &FinishRule{session: s, required: required}
}

func (r *FinishRule) Kind() string { return KindFinish }

// Finisher returns the participant that finished, if any.
func (r *FinishRule) Finisher() (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finisher, r.finisher != uuid.Nil
}

func (r *FinishRule) Decide(ctx context.Context, req Request) (Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finisher == uuid.Nil {
		// A previous authority may have committed the finish already.
		v, ok, err := r.session.Property(ctx, session.Room(), KeyGameFinishedBy)
		if err != nil {
			return Decision{}, fmt.Errorf("reading finish state: %w", err)
		}
		if s, isStr := v.AsString(); ok && isStr {
			if id, err := uuid.Parse(s); err == nil {
				r.finisher = id
			}
		}
	}
	if r.finisher != uuid.Nil {
		return Deny(ReasonAlreadyFinished), nil
	}

	if r.required != "" {
		ticket, _, err := r.session.Property(ctx, session.Player(req.Requester), r.required)
		if err != nil {
			return Decision{}, fmt.Errorf("reading %s of %s: %w", r.required, req.Requester, err)
		}
		if !ticket.Truthy() {
			return Deny(ReasonMissingTicket), nil
		}
	}

	stored, written, err := r.session.SetPropertyOnce(ctx, session.Room(), KeyGameFinishedBy, session.Str(req.Requester.String()))
	if err != nil {
		return Decision{}, fmt.Errorf("recording finish of %s: %w", req.Requester, err)
	}
	if !written {
		if s, ok := stored.AsString(); ok {
			if id, err := uuid.Parse(s); err == nil {
				r.finisher = id
			}
		}
		return Deny(ReasonAlreadyFinished), nil
	}
	r.finisher = req.Requester
	return Grant(session.Str(req.Requester.String())), nil
}
