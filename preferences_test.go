package gopref

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidroman0O/gopref/store"
)

// rejectingBackend refuses listener registration.
type rejectingBackend struct {
	*store.MemoryStore
}

var errRejected = errors.New("listener rejected")

func (rejectingBackend) RegisterListener(store.Listener) error { return errRejected }

func TestNewRegistersListenerOnce(t *testing.T) {
	p, backend := newTestPreferences(t)
	assert.Equal(t, 1, backend.ListenerCount())

	subs := []*Subscription{
		p.WatchKeys(func(string) {}),
		p.WatchCount(func(int) {}),
		Watch(p, "k", "", func(string, error) {}),
	}
	for _, s := range subs {
		s.Cancel()
	}
	assert.Equal(t, 1, backend.ListenerCount())

	require.NoError(t, p.Close())
	assert.Equal(t, 0, backend.ListenerCount())
}

func TestNewFailsWhenListenerRegistrationFails(t *testing.T) {
	p, err := New(rejectingBackend{store.NewMemoryStore()})
	assert.Nil(t, p)
	assert.ErrorIs(t, err, errRejected)

	_, err = New(nil)
	assert.Error(t, err)
}

func TestDefaultFallback(t *testing.T) {
	p, _ := newTestPreferences(t)

	b, err := Get(p, "never", true)
	assert.NoError(t, err)
	assert.True(t, b)

	s, _ := Get(p, "never", "default")
	assert.Equal(t, "default", s)

	require.NoError(t, p.Put("written", int64(9)))
	require.NoError(t, p.Clear("written"))
	n, _ := Get(p, "written", int64(-1))
	assert.Equal(t, int64(-1), n)
}

func TestClear(t *testing.T) {
	p, _ := newTestPreferences(t)

	// Absent keys are fine.
	require.NoError(t, p.Clear("missing"))
	count, _ := p.Count()
	assert.Equal(t, 0, count)

	require.NoError(t, p.PutAll(P("a", 1), P("b", 2), P("c", 3)))
	require.NoError(t, p.Clear("a", "b"))
	keys, err := p.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, keys)

	// No keys means every key.
	require.NoError(t, p.Clear())
	count, _ = p.Count()
	assert.Equal(t, 0, count)
	require.NoError(t, p.Clear())

	assert.ErrorIs(t, p.Clear("x", ""), ErrEmptyKey)
}

func TestCountConsistency(t *testing.T) {
	p, _ := newTestPreferences(t)

	require.NoError(t, p.Put("a", "1"))
	require.NoError(t, p.Put("b", "2"))
	require.NoError(t, p.Put("b", "3"))
	require.NoError(t, p.Clear("a"))

	count, err := p.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPutAllStopsAtFirstFailure(t *testing.T) {
	p, _ := newTestPreferences(t)

	err := p.PutAll(P("first", 1), P("bad", make(chan int)), P("third", 3))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	first, _ := Get(p, "first", 0)
	assert.Equal(t, 1, first)
	keys, _ := p.Keys()
	assert.Equal(t, []string{"first"}, keys)
}

func TestKeysAndKeyValues(t *testing.T) {
	p, _ := newTestPreferences(t)

	require.NoError(t, p.Put("a", true))
	require.NoError(t, p.Put("b", 1.25))
	require.NoError(t, p.Put("c", []string{"y", "x"}))
	require.NoError(t, p.Put("a", false))

	keys, err := p.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, keys)

	all, err := p.KeyValues()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": false,
		"b": "1.25",
		"c": []string{"x", "y"},
	}, all)
}

func TestEmptyKey(t *testing.T) {
	p, _ := newTestPreferences(t)

	assert.ErrorIs(t, p.Put("", 1), ErrEmptyKey)

	v, err := Get(p, "", 5)
	assert.ErrorIs(t, err, ErrEmptyKey)
	assert.Equal(t, 5, v)
}

func TestClosedPreferences(t *testing.T) {
	p, backend := newTestPreferences(t)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Put("k", 1), ErrClosed)
	_, err := Get(p, "k", 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.Clear(), ErrClosed)
	_, err = p.Count()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = p.Keys()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = p.KeyValues()
	assert.ErrorIs(t, err, ErrClosed)

	s := p.WatchCount(func(int) { t.Error("callback on closed preferences") })
	<-s.Done()

	// The backend stays usable.
	assert.NoError(t, backend.PutBool("k", true))
}
