package gopref

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"

	"github.com/davidroman0O/gopref/store"
)

// Pair is a key and the value to store under it.
type Pair struct {
	Key   string
	Value any
}

// P builds a Pair.
func P(key string, value any) Pair {
	return Pair{Key: key, Value: value}
}

// Preferences is a typed, observable view over a store.Backend.
type Preferences struct {
	backend    store.Backend
	logger     Logger
	tel        *telemetry
	hub        *hub
	keysReplay bool
	executor   func(func())
	closed     atomic.Bool
}

// New wraps backend and registers its change listener. A registration
// failure is returned as an error.
func New(backend store.Backend, opts ...Option) (*Preferences, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}

	s := settings{
		logger:         NewDefaultLogger(),
		keysReplay:     true,
		executor:       func(fn func()) { go fn() },
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	tel, err := newTelemetry(s.registerer, s.tracerProvider, s.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	p := &Preferences{
		backend:    backend,
		logger:     s.logger,
		tel:        tel,
		keysReplay: s.keysReplay,
		executor:   s.executor,
	}
	p.hub = newHub(p.Count, p.logger, tel)

	if err := backend.RegisterListener(p.hub); err != nil {
		return nil, fmt.Errorf("register change listener: %w", err)
	}
	p.logger.Debug("Registered change listener on %T", backend)
	return p, nil
}

func (p *Preferences) check(key string) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}

func (p *Preferences) decoder() decoder {
	return decoder{backend: p.backend, logger: p.logger, tel: p.tel}
}

// Put encodes value and stores it under key.
func (p *Preferences) Put(key string, value any) error {
	return p.put(context.Background(), key, value)
}

func (p *Preferences) put(ctx context.Context, key string, value any) (err error) {
	_, span := p.tel.start(ctx, "gopref.Put", key)
	defer func() { finish(span, err) }()

	if err := p.check(key); err != nil {
		return err
	}
	p.tel.op("put")

	kind, raw, err := encode(value)
	if err != nil {
		return err
	}
	if err := write(p.backend, key, kind, raw); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// PutAll stores every pair in order. It stops at the first failure; pairs
// stored before it stay stored.
func (p *Preferences) PutAll(pairs ...Pair) error {
	return p.putAll(context.Background(), pairs)
}

func (p *Preferences) putAll(ctx context.Context, pairs []Pair) error {
	for i, pair := range pairs {
		if err := p.put(ctx, pair.Key, pair.Value); err != nil {
			return fmt.Errorf("pair %d: %w", i, err)
		}
	}
	return nil
}

// Get reads key as T. The dynamic type of def selects how the stored value is
// decoded; def is returned when the key is absent.
//
// Binary kinds return the zero value of T, not def, when the key is absent.
// Only structured values can fail to decode.
func Get[T any](p *Preferences, key string, def T) (T, error) {
	return get(context.Background(), p, key, def)
}

func get[T any](ctx context.Context, p *Preferences, key string, def T) (v T, err error) {
	_, span := p.tel.start(ctx, "gopref.Get", key)
	defer func() { finish(span, err) }()

	if err := p.check(key); err != nil {
		return def, err
	}
	p.tel.op("get")
	return decode(p.decoder(), key, def)
}

// Clear removes the given keys. With no keys it removes every entry.
func (p *Preferences) Clear(keys ...string) error {
	return p.clear(context.Background(), keys)
}

func (p *Preferences) clear(ctx context.Context, keys []string) (err error) {
	_, span := p.tel.start(ctx, "gopref.Clear", fmt.Sprint(keys))
	defer func() { finish(span, err) }()

	if p.closed.Load() {
		return ErrClosed
	}
	p.tel.op("clear")

	if len(keys) == 0 {
		if err := p.backend.Clear(); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		return nil
	}
	for _, key := range keys {
		if key == "" {
			return ErrEmptyKey
		}
		if err := p.backend.Remove(key); err != nil {
			return fmt.Errorf("remove %q: %w", key, err)
		}
	}
	return nil
}

// counter is implemented by backends that count entries without listing them.
type counter interface {
	Count() int
}

// Count returns the number of stored keys.
func (p *Preferences) Count() (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	p.tel.op("count")

	if c, ok := p.backend.(counter); ok {
		return c.Count(), nil
	}
	keys, err := p.backend.Keys()
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return len(keys), nil
}

// Keys returns every key ordered by last modification, oldest first.
func (p *Preferences) Keys() ([]string, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	p.tel.op("keys")

	keys, err := p.backend.Keys()
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	return keys, nil
}

// KeyValues returns every entry with its raw stored value, undecoded.
func (p *Preferences) KeyValues() (map[string]any, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	p.tel.op("key_values")

	all, err := p.backend.All()
	if err != nil {
		return nil, fmt.Errorf("key values: %w", err)
	}
	return all, nil
}

// Close cancels every subscription and unregisters the change listener.
// The backend itself is left open. Closing twice is a no-op.
func (p *Preferences) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.backend.UnregisterListener(p.hub)
	p.hub.close()
	p.logger.Debug("Closed preferences over %T", p.backend)
	return nil
}
