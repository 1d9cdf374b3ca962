package store

import "github.com/sasha-s/go-deadlock"

// Listeners is a listener registry for Backend implementations.
// The zero value is ready to use.
type Listeners struct {
	mu   deadlock.RWMutex
	list []Listener
}

// Register adds l. Registering the same listener twice fails.
func (ls *Listeners) Register(l Listener) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	for _, existing := range ls.list {
		if existing == l {
			return ErrListenerRegistered
		}
	}
	ls.list = append(ls.list, l)
	return nil
}

// Unregister removes l if present.
func (ls *Listeners) Unregister(l Listener) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	for i, existing := range ls.list {
		if existing == l {
			ls.list = append(ls.list[:i:i], ls.list[i+1:]...)
			return
		}
	}
}

// Len reports how many listeners are registered.
func (ls *Listeners) Len() int {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return len(ls.list)
}

// Notify calls every listener registered at the time of the call.
// Listeners run without the registry lock held.
func (ls *Listeners) Notify(source Backend, ev ChangeEvent) {
	ls.mu.RLock()
	list := make([]Listener, len(ls.list))
	copy(list, ls.list)
	ls.mu.RUnlock()

	for _, l := range list {
		l.OnChange(source, ev)
	}
}
