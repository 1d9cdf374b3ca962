package gopref

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

const waitTimeout = 2 * time.Second

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for delivery")
	}
	var zero T
	return zero
}

func assertQuiet[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected delivery %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchKeysReplayAndLiveness(t *testing.T) {
	p, _ := newTestPreferences(t)
	require.NoError(t, p.Put("k0", "seed"))

	keys := make(chan string, 16)
	sub := p.WatchKeys(func(key string) { keys <- key })
	defer sub.Cancel()

	assert.Equal(t, "k0", receive(t, keys))

	require.NoError(t, p.Put("k1", "value1"))
	require.NoError(t, p.Put("k2", "value2"))
	require.NoError(t, p.Clear("k1"))

	var got []string
	for i := 0; i < 3; i++ {
		got = append(got, receive(t, keys))
	}
	assert.Equal(t, []string{"k1", "k2", "k1"}, got)
	assertQuiet(t, keys)

	require.NoError(t, p.Clear())
	assert.Equal(t, BulkKey, receive(t, keys))
}

func TestWatchKeysReplayOptions(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		p, _ := newTestPreferences(t, WithKeysReplay(false))
		require.NoError(t, p.Put("k0", 1))

		keys := make(chan string, 4)
		sub := p.WatchKeys(func(key string) { keys <- key })
		defer sub.Cancel()

		assertQuiet(t, keys)
		require.NoError(t, p.Put("k1", 1))
		assert.Equal(t, "k1", receive(t, keys))
	})

	t.Run("empty store", func(t *testing.T) {
		p, _ := newTestPreferences(t)

		keys := make(chan string, 4)
		sub := p.WatchKeys(func(key string) { keys <- key })
		defer sub.Cancel()

		assertQuiet(t, keys)
	})

	t.Run("most recently modified", func(t *testing.T) {
		p, _ := newTestPreferences(t)
		require.NoError(t, p.PutAll(P("a", 1), P("b", 2), P("a", 3)))

		keys := make(chan string, 4)
		sub := p.WatchKeys(func(key string) { keys <- key })
		defer sub.Cancel()

		assert.Equal(t, "a", receive(t, keys))
	})
}

func TestWatchFiltersByKey(t *testing.T) {
	p, _ := newTestPreferences(t)

	values := make(chan string, 8)
	sub := Watch(p, "x", "none", func(v string, err error) {
		assert.NoError(t, err)
		values <- v
	})
	defer sub.Cancel()

	assert.Equal(t, "none", receive(t, values))

	require.NoError(t, p.Put("y", "other"))
	require.NoError(t, p.Put("x", "V"))
	assert.Equal(t, "V", receive(t, values))
	assertQuiet(t, values)

	// Clearing everything removes x too.
	require.NoError(t, p.Clear())
	assert.Equal(t, "none", receive(t, values))
}

func TestWatchStructuredDecodeError(t *testing.T) {
	p, backend := newTestPreferences(t)

	errs := make(chan error, 4)
	sub := Watch(p, "profile", profile{}, func(_ profile, err error) { errs <- err })
	defer sub.Cancel()

	assert.NoError(t, receive(t, errs))
	require.NoError(t, backend.PutString("profile", `{"unknown":true}`))
	assert.ErrorIs(t, receive(t, errs), ErrDecode)
}

func TestWatchCountSequence(t *testing.T) {
	p, _ := newTestPreferences(t)

	counts := make(chan int, 8)
	sub := p.WatchCount(func(n int) { counts <- n })
	defer sub.Cancel()

	got := []int{receive(t, counts)}
	steps := []func() error{
		func() error { return p.Put("key1", "value1") },
		func() error { return p.Put("key2", "value2") },
		func() error { return p.Put("key3", "value4") },
		func() error { return p.Clear("key3") },
	}
	for _, step := range steps {
		require.NoError(t, step())
		got = append(got, receive(t, counts))
	}
	assert.Equal(t, []int{0, 1, 2, 3, 2}, got)
}

func TestWatchCountLatestWins(t *testing.T) {
	p, _ := newTestPreferences(t)

	started := make(chan struct{})
	release := make(chan struct{})
	counts := make(chan int, 8)
	var first atomic.Bool
	sub := p.WatchCount(func(n int) {
		if first.CompareAndSwap(false, true) {
			close(started)
			<-release
		}
		counts <- n
	})
	defer sub.Cancel()

	<-started
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Put(fmt.Sprintf("k%d", i), i))
	}
	close(release)

	assert.Equal(t, 0, receive(t, counts))
	assert.Equal(t, 5, receive(t, counts))
	assertQuiet(t, counts)
}

func TestSubscriptionCancelFromCallback(t *testing.T) {
	p, _ := newTestPreferences(t, WithKeysReplay(false))

	var calls atomic.Int32
	var sub *Subscription
	ready := make(chan struct{})
	sub = p.WatchKeys(func(string) {
		<-ready
		calls.Add(1)
		sub.Cancel()
	})
	close(ready)

	require.NoError(t, p.Put("a", 1))
	select {
	case <-sub.Done():
	case <-time.After(waitTimeout):
		t.Fatal("delivery goroutine did not exit")
	}

	require.NoError(t, p.Put("b", 2))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubscriptionCancelIsIdempotent(t *testing.T) {
	p, _ := newTestPreferences(t)

	sub := p.WatchCount(func(int) {})
	assert.NotEqual(t, sub.ID(), p.WatchCount(func(int) {}).ID())

	sub.Cancel()
	sub.Cancel()
	<-sub.Done()
	assert.NotPanics(t, sub.Cancel)
}

func TestSubscriptionCancelDuringNotifications(t *testing.T) {
	p, _ := newTestPreferences(t)

	var delivered atomic.Int64
	sub := p.WatchKeys(func(string) {
		delivered.Add(1)
		time.Sleep(time.Millisecond)
	})

	var g errgroup.Group
	for w := 0; w < 4; w++ {
		g.Go(func() error {
			for i := 0; i < 50; i++ {
				if err := p.Put(fmt.Sprintf("w%d-%d", w, i), i); err != nil {
					return err
				}
			}
			return nil
		})
	}

	time.Sleep(5 * time.Millisecond)
	sub.Cancel()
	atCancel := delivered.Load()

	require.NoError(t, g.Wait())
	<-sub.Done()

	assert.Equal(t, atCancel, delivered.Load())
}

func TestSubscriptionCancelWaitsForRunningCallback(t *testing.T) {
	p, _ := newTestPreferences(t, WithKeysReplay(false))

	entered := make(chan struct{})
	var finished atomic.Bool
	sub := p.WatchKeys(func(string) {
		close(entered)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})

	require.NoError(t, p.Put("a", 1))
	receive(t, entered)

	sub.Cancel()
	assert.True(t, finished.Load())
	<-sub.Done()
}

func TestSubscriptionCancelFromOtherCallback(t *testing.T) {
	p, _ := newTestPreferences(t, WithKeysReplay(false))

	var calls atomic.Int32
	target := p.WatchCount(func(int) { calls.Add(1) })

	cancelled := make(chan struct{})
	var once sync.Once
	sub := p.WatchKeys(func(string) {
		once.Do(func() {
			target.Cancel()
			close(cancelled)
		})
	})
	defer sub.Cancel()

	require.NoError(t, p.Put("a", 1))
	receive(t, cancelled)
	<-target.Done()

	atCancel := calls.Load()
	require.NoError(t, p.Put("b", 2))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, atCancel, calls.Load())
}

func TestCloseStopsEverySubscription(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p, backend := newTestPreferences(t)
	subs := []*Subscription{
		p.WatchKeys(func(string) {}),
		p.WatchCount(func(int) {}),
		Watch(p, "a", 0, func(int, error) {}),
		Watch(p, "a", 0, func(int, error) {}),
	}
	require.NoError(t, p.Put("a", 1))
	require.NoError(t, p.Close())

	for _, s := range subs {
		select {
		case <-s.Done():
		case <-time.After(waitTimeout):
			t.Fatal("subscription still running after Close")
		}
	}

	// Events after Close reach nobody.
	require.NoError(t, backend.PutBool("b", true))
	assert.Equal(t, 0, backend.ListenerCount())
}
