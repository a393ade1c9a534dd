package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	dmn "github.com/beka-birhanu/vinom-mazesync/domain"
	"github.com/beka-birhanu/vinom-mazesync/session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type testLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *testLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+msg)
}

func (l *testLogger) Debug(msg string)   { l.add("DEBUG", msg) }
func (l *testLogger) Info(msg string)    { l.add("INFO", msg) }
func (l *testLogger) Warning(msg string) { l.add("WARNING", msg) }
func (l *testLogger) Error(msg string)   { l.add("ERROR", msg) }

func (l *testLogger) contains(part string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, part) {
			return true
		}
	}
	return false
}

type recordingBuilder struct {
	mu    sync.Mutex
	seeds []int32
}

func (b *recordingBuilder) Build(_ context.Context, seed int32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seeds = append(b.seeds, seed)
	return nil
}

func (b *recordingBuilder) built() []int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int32(nil), b.seeds...)
}

type memoryArchive struct {
	mu      sync.Mutex
	layouts []*dmn.Layout
}

func (a *memoryArchive) Save(_ context.Context, l *dmn.Layout) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.layouts = append(a.layouts, l)
	return nil
}

func (a *memoryArchive) ByRoom(_ context.Context, roomID string) ([]*dmn.Layout, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*dmn.Layout
	for i := len(a.layouts) - 1; i >= 0; i-- {
		if a.layouts[i].RoomID == roomID {
			out = append(out, a.layouts[i])
		}
	}
	return out, nil
}

func (a *memoryArchive) saved() []*dmn.Layout {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*dmn.Layout(nil), a.layouts...)
}

func joinN(t *testing.T, h *session.Hub, n int) []*session.Member {
	t.Helper()
	members := make([]*session.Member, n)
	for i := range members {
		m, err := h.Join(uuid.New())
		require.NoError(t, err)
		members[i] = m
	}
	return members
}

// runAsync starts fn and returns a channel receiving its result.
func runAsync(ctx context.Context, fn func(context.Context) error) <-chan error {
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	return done
}

func seedProperty(t *testing.T, m *session.Member) (int64, bool) {
	t.Helper()
	v, ok, err := m.Property(context.Background(), session.Room(), KeyMazeSeed)
	require.NoError(t, err)
	n, _ := v.AsInt()
	return n, ok
}
