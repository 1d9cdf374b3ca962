package gopref

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"

	"github.com/davidroman0O/gopref/store"
)

// BulkKey is delivered on the keys stream for changes that carry no key,
// such as clearing every entry.
const BulkKey = ""

type streamKind uint8

const (
	streamKeys streamKind = iota
	streamValue
	streamCount
)

func (s streamKind) String() string {
	switch s {
	case streamKeys:
		return "keys"
	case streamValue:
		return "value"
	case streamCount:
		return "count"
	}
	return "unknown"
}

// hub is the single backend listener of a Preferences. It fans every change
// event out to the keys, per-key value and count subscribers.
//
// Every event takes a sequence number before its payloads are computed. A
// payload with a higher sequence was computed after every write whose event
// holds a lower one, so latest-wins subscribers keep the highest.
type hub struct {
	seq    atomic.Uint64
	mu     deadlock.RWMutex
	keys   map[uuid.UUID]*Subscription
	values map[string]map[uuid.UUID]*Subscription
	counts map[uuid.UUID]*Subscription
	closed bool

	count  func() (int, error)
	logger Logger
	tel    *telemetry
}

func newHub(count func() (int, error), logger Logger, tel *telemetry) *hub {
	return &hub{
		keys:   make(map[uuid.UUID]*Subscription),
		values: make(map[string]map[uuid.UUID]*Subscription),
		counts: make(map[uuid.UUID]*Subscription),
		count:  count,
		logger: logger,
		tel:    tel,
	}
}

// OnChange implements store.Listener.
func (h *hub) OnChange(_ store.Backend, ev store.ChangeEvent) {
	seq := h.seq.Add(1)
	h.tel.changeEvents.Inc()

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	keys := collect(h.keys)
	counts := collect(h.counts)
	var values []*Subscription
	if ev.Bulk {
		for _, subs := range h.values {
			values = append(values, collect(subs)...)
		}
	} else {
		values = collect(h.values[ev.Key])
	}
	h.mu.RUnlock()

	key := ev.Key
	if ev.Bulk {
		key = BulkKey
	}
	for _, s := range keys {
		s.offer(key, seq)
	}

	for _, s := range values {
		s.offer(s.load(), seq)
	}

	if len(counts) > 0 {
		n, err := h.count()
		if err != nil {
			h.logger.Error("Failed to count entries after change of %q: %v", ev.Key, err)
			return
		}
		for _, s := range counts {
			s.offer(n, seq)
		}
	}
}

func collect(subs map[uuid.UUID]*Subscription) []*Subscription {
	if len(subs) == 0 {
		return nil
	}
	out := make([]*Subscription, 0, len(subs))
	for _, s := range subs {
		out = append(out, s)
	}
	return out
}

// subscribe registers s and queues its replay value, if any, before any live
// event can reach it.
func (h *hub) subscribe(s *Subscription, replay func() (any, bool)) *Subscription {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.hub = nil
		s.Cancel()
		go s.run()
		return s
	}

	if replay != nil {
		seq := h.seq.Add(1)
		if v, ok := replay(); ok {
			s.offer(v, seq)
		}
	}
	switch s.stream {
	case streamKeys:
		h.keys[s.id] = s
	case streamValue:
		subs, ok := h.values[s.key]
		if !ok {
			subs = make(map[uuid.UUID]*Subscription)
			h.values[s.key] = subs
		}
		subs[s.id] = s
	case streamCount:
		h.counts[s.id] = s
	}
	h.mu.Unlock()

	h.tel.subscribed(s.stream, 1)
	h.logger.Debug("Opened %s subscription %s", s.stream, s.id)
	go s.run()
	return s
}

func (h *hub) remove(s *Subscription) {
	h.mu.Lock()
	removed := false
	switch s.stream {
	case streamKeys:
		if _, removed = h.keys[s.id]; removed {
			delete(h.keys, s.id)
		}
	case streamValue:
		if subs, ok := h.values[s.key]; ok {
			if _, removed = subs[s.id]; removed {
				delete(subs, s.id)
				if len(subs) == 0 {
					delete(h.values, s.key)
				}
			}
		}
	case streamCount:
		if _, removed = h.counts[s.id]; removed {
			delete(h.counts, s.id)
		}
	}
	h.mu.Unlock()

	if removed {
		h.tel.subscribed(s.stream, -1)
		h.logger.Debug("Closed %s subscription %s", s.stream, s.id)
	}
}

// close cancels every subscription and rejects new ones.
func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	all := collect(h.keys)
	all = append(all, collect(h.counts)...)
	for _, subs := range h.values {
		all = append(all, collect(subs)...)
	}
	h.mu.Unlock()

	for _, s := range all {
		s.Cancel()
	}
}
