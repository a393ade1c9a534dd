package service

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/beka-birhanu/vinom-mazesync/service/i"
	"github.com/beka-birhanu/vinom-mazesync/session"
)

// DefaultPalette is the set of player colors handed out by ColorRule.
var DefaultPalette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8",
	"#f58231", "#911eb4", "#46f0f0", "#f032e6",
}

// ColorRule assigns each participant a palette index, preferring the lowest
// index nobody uses. A participant that already has one is granted it again.
type ColorRule struct {
	session i.SessionService
	palette []string
	pick    func(n int) int
}

// NewColorRule hands out indices into palette, DefaultPalette when empty.
func NewColorRule(s i.SessionService, palette []string) *ColorRule {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	return &ColorRule{session: s, palette: palette, pick: rand.IntN}
}

func (r *ColorRule) Kind() string { return KindColor }

// Palette returns the colors indices refer to.
func (r *ColorRule) Palette() []string { return r.palette }

func (r *ColorRule) Decide(ctx context.Context, req Request) (Decision, error) {
	current, ok, err := r.session.Property(ctx, session.Player(req.Requester), KeyColorIndex)
	if err != nil {
		return Decision{}, fmt.Errorf("reading color of %s: %w", req.Requester, err)
	}
	if idx, isInt := current.AsInt(); ok && isInt {
		return Grant(session.Int(idx)), nil
	}

	participants, err := r.session.Participants(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("listing participants: %w", err)
	}
	used := make([]bool, len(r.palette))
	for _, id := range participants {
		v, _, err := r.session.Property(ctx, session.Player(id), KeyColorIndex)
		if err != nil {
			return Decision{}, fmt.Errorf("reading color of %s: %w", id, err)
		}
		if idx, ok := v.AsInt(); ok && idx >= 0 && int(idx) < len(used) {
			used[idx] = true
		}
	}

	chosen := -1
	for idx, taken := range used {
		if !taken {
			chosen = idx
			break
		}
	}
	if chosen < 0 {
		chosen = r.pick(len(r.palette))
	}

	if err := r.session.SetProperty(ctx, session.Player(req.Requester), KeyColorIndex, session.Int(int64(chosen))); err != nil {
		return Decision{}, fmt.Errorf("assigning color to %s: %w", req.Requester, err)
	}
	return Grant(session.Int(int64(chosen))), nil
}
