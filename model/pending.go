package model

import (
	"context"

	"github.com/mongodb/grip/recovery"
	"github.com/pkg/errors"
)

// Pending is an operation running in the background.
type Pending[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go starts fn in the background. The context is handed to fn.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Pending[T] {
	p := &Pending[T]{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		defer func() {
			if err := recovery.HandlePanicWithError(recover(), nil, "background operation"); err != nil {
				p.err = err
			}
		}()
		p.value, p.err = fn(ctx)
	}()
	return p
}

// Done is closed when the operation has completed.
func (p *Pending[T]) Done() <-chan struct{} { return p.done }

// Wait blocks until the operation completes or the context is done.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, errors.Wrap(ctx.Err(), "waiting for background operation")
	}
}
