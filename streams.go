package gopref

// WatchKeys calls fn with the key of every change, in order. Changes without
// a key deliver BulkKey. Unless disabled with WithKeysReplay(false), fn first
// receives the most recently modified key, if any.
//
// Keys written by one goroutine arrive in write order. Keys written
// concurrently by several goroutines may arrive in a different order than
// Keys reports.
func (p *Preferences) WatchKeys(fn func(key string)) *Subscription {
	s := newSubscription(p.hub, streamKeys, "", func(v any) { fn(v.(string)) })

	var replay func() (any, bool)
	if p.keysReplay {
		replay = func() (any, bool) {
			keys, err := p.Keys()
			if err != nil || len(keys) == 0 {
				return nil, false
			}
			return keys[len(keys)-1], true
		}
	}
	return p.hub.subscribe(s, replay)
}

type watchResult[T any] struct {
	value T
	err   error
}

// Watch calls fn with the current value of key decoded as in Get, then again
// after every change of key or bulk change. A slow fn only sees the latest
// value.
func Watch[T any](p *Preferences, key string, def T, fn func(T, error)) *Subscription {
	s := newSubscription(p.hub, streamValue, key, func(v any) {
		r := v.(watchResult[T])
		fn(r.value, r.err)
	})
	s.load = func() any {
		v, err := Get(p, key, def)
		return watchResult[T]{value: v, err: err}
	}
	return p.hub.subscribe(s, func() (any, bool) { return s.load(), true })
}

// WatchCount calls fn with the current number of keys, then with a fresh
// count after every change. A slow fn only sees the latest count.
func (p *Preferences) WatchCount(fn func(count int)) *Subscription {
	s := newSubscription(p.hub, streamCount, "", func(v any) { fn(v.(int)) })
	return p.hub.subscribe(s, func() (any, bool) {
		n, err := p.Count()
		if err != nil {
			p.logger.Error("Failed to count entries for replay: %v", err)
			return nil, false
		}
		return n, true
	})
}
