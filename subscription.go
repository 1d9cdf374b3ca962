package gopref

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/petermattis/goid"
	"github.com/sasha-s/go-deadlock"
)

// Subscription is a live registration of one stream callback.
// Each subscription delivers on its own goroutine, in order.
type Subscription struct {
	id     uuid.UUID
	stream streamKind
	key    string
	hub    *hub

	deliver func(any)
	load    func() any

	mu       deadlock.Mutex
	coalesce bool
	pending  []any
	lastSeq  uint64
	signal   chan struct{}
	quit     chan struct{}
	done     chan struct{}

	// deliverMu is held for the whole user callback, which has no time
	// bound, so it is not a deadlock-detected mutex.
	deliverMu sync.Mutex
	cancelled atomic.Bool
	runner    atomic.Int64
}

func newSubscription(h *hub, stream streamKind, key string, deliver func(any)) *Subscription {
	return &Subscription{
		id:       uuid.New(),
		stream:   stream,
		key:      key,
		hub:      h,
		deliver:  deliver,
		coalesce: stream != streamKeys,
		signal:   make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() uuid.UUID { return s.id }

// Done is closed once the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Cancel stops delivery. It is idempotent and safe from any goroutine.
//
// Called from another goroutine, Cancel waits for a callback in progress to
// return, so no callback runs once it returns. Called from inside the
// subscription's own callback it returns at once.
func (s *Subscription) Cancel() {
	if !s.cancelled.CompareAndSwap(false, true) {
		return
	}
	close(s.quit)
	if s.hub != nil {
		s.hub.remove(s)
	}
	if goid.Get() == s.runner.Load() {
		return
	}
	s.deliverMu.Lock()
	s.deliverMu.Unlock()
}

// offer queues v, computed for hub sequence seq. Coalescing subscriptions
// keep only the latest value and drop values computed before one they
// already accepted.
func (s *Subscription) offer(v any, seq uint64) {
	if s.cancelled.Load() {
		return
	}
	s.mu.Lock()
	if s.coalesce {
		if seq < s.lastSeq {
			s.mu.Unlock()
			return
		}
		s.lastSeq = seq
		s.pending = append(s.pending[:0], v)
	} else {
		s.pending = append(s.pending, v)
	}
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) drain() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

func (s *Subscription) run() {
	s.runner.Store(goid.Get())
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case <-s.signal:
		}
		for _, v := range s.drain() {
			if !s.invoke(v) {
				return
			}
		}
	}
}

// invoke calls the callback with v unless the subscription was cancelled.
func (s *Subscription) invoke(v any) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.cancelled.Load() {
		return false
	}

	s.deliver(v)
	if s.hub != nil {
		s.hub.tel.delivered(s.stream)
	}
	return true
}
