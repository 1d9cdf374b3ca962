package gopref

import "context"

// Result carries the outcome of an asynchronous operation.
type Result[T any] struct {
	Value T
	Err   error
}

// submit runs fn on the executor and reports on a buffered channel. A context
// done before fn starts is reported as its error.
func submit[T any](ctx context.Context, p *Preferences, fn func(context.Context) (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)
	if err := ctx.Err(); err != nil {
		out <- Result[T]{Err: err}
		return out
	}
	p.executor(func() {
		if err := ctx.Err(); err != nil {
			out <- Result[T]{Err: err}
			return
		}
		v, err := fn(ctx)
		out <- Result[T]{Value: v, Err: err}
	})
	return out
}

func submitErr(ctx context.Context, p *Preferences, fn func(context.Context) error) <-chan error {
	out := make(chan error, 1)
	if err := ctx.Err(); err != nil {
		out <- err
		return out
	}
	p.executor(func() {
		if err := ctx.Err(); err != nil {
			out <- err
			return
		}
		out <- fn(ctx)
	})
	return out
}

// PutAsync runs Put on the executor.
func (p *Preferences) PutAsync(ctx context.Context, key string, value any) <-chan error {
	return submitErr(ctx, p, func(ctx context.Context) error {
		return p.put(ctx, key, value)
	})
}

// PutAllAsync runs PutAll on the executor.
func (p *Preferences) PutAllAsync(ctx context.Context, pairs ...Pair) <-chan error {
	return submitErr(ctx, p, func(ctx context.Context) error {
		return p.putAll(ctx, pairs)
	})
}

// ClearAsync runs Clear on the executor.
func (p *Preferences) ClearAsync(ctx context.Context, keys ...string) <-chan error {
	return submitErr(ctx, p, func(ctx context.Context) error {
		return p.clear(ctx, keys)
	})
}

// CountAsync runs Count on the executor.
func (p *Preferences) CountAsync(ctx context.Context) <-chan Result[int] {
	return submit(ctx, p, func(context.Context) (int, error) {
		return p.Count()
	})
}

// GetAsync runs Get on the executor.
func GetAsync[T any](ctx context.Context, p *Preferences, key string, def T) <-chan Result[T] {
	return submit(ctx, p, func(ctx context.Context) (T, error) {
		return get(ctx, p, key, def)
	})
}
