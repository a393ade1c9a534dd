package session

import (
	"sync"

	"github.com/zyedidia/generic/queue"
)

// Subscription is an unbounded mailbox of events. Publishers never block on
// a slow reader; events are handed to Events in the order they were pushed.
type Subscription struct {
	mu      sync.Mutex
	pending *queue.Queue[Event]
	wake    chan struct{}
	out     chan Event
	done    chan struct{}
	once    sync.Once
	onClose func()
}

// NewSubscription starts a mailbox. onClose, if set, runs once when the
// subscription is closed.
func NewSubscription(onClose func()) *Subscription {
	s := &Subscription{
		pending: queue.New[Event](),
		wake:    make(chan struct{}, 1),
		out:     make(chan Event),
		done:    make(chan struct{}),
		onClose: onClose,
	}
	go s.pump()
	return s
}

// Events returns the delivery channel. It is closed after Close.
func (s *Subscription) Events() <-chan Event {
	return s.out
}

// Push queues e. It reports false once the subscription is closed.
func (s *Subscription) Push(e Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	s.mu.Lock()
	s.pending.Enqueue(e)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Close stops delivery and drops anything still queued.
func (s *Subscription) Close() {
	s.close(true)
}

// close stops delivery, running onClose only when notify is set. Owners that
// already dropped the subscription from their registry pass false.
func (s *Subscription) close(notify bool) {
	s.once.Do(func() {
		close(s.done)
		if notify && s.onClose != nil {
			s.onClose()
		}
	})
}

// Shutdown closes the subscription without running onClose.
func (s *Subscription) Shutdown() {
	s.close(false)
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if s.pending.Empty() {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		e := s.pending.Dequeue()
		s.mu.Unlock()

		select {
		case s.out <- e:
		case <-s.done:
			return
		}
	}
}
