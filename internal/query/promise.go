package query

import (
	"context"
	"sync/atomic"

	"github.com/mbd888/starledger/internal/apierror"
)

// Future is the read side of a single-shot completion.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Promise is the write side of a single-shot completion. Exactly one of
// Resolve or Reject may be called; a second call panics.
type Promise[T any] struct {
	future   *Future[T]
	resolved atomic.Bool
}

// NewPromise returns a connected promise and future.
func NewPromise[T any]() (*Promise[T], *Future[T]) {
	f := &Future[T]{done: make(chan struct{})}
	return &Promise[T]{future: f}, f
}

// Resolved returns a future already completed with v.
func Resolved[T any](v T) *Future[T] {
	p, f := NewPromise[T]()
	p.Resolve(v)
	return f
}

// Failed returns a future already completed with err.
func Failed[T any](err error) *Future[T] {
	p, f := NewPromise[T]()
	p.Reject(err)
	return f
}

// Resolve completes the future with v.
func (p *Promise[T]) Resolve(v T) {
	p.claim()
	p.future.value = v
	close(p.future.done)
}

// Reject completes the future with err.
func (p *Promise[T]) Reject(err error) {
	p.claim()
	p.future.err = err
	close(p.future.done)
}

func (p *Promise[T]) claim() {
	if !p.resolved.CompareAndSwap(false, true) {
		panic("query: promise resolved twice")
	}
}

// Done is closed once the future is complete.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future completes or ctx ends. A completed result
// always wins over an ended ctx. A caller that stops waiting gets
// ErrRequestAborted while the query itself is unaffected, so the effects of
// its response may still be applied after Wait returned.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		select {
		case <-f.done:
			return f.value, f.err
		default:
		}
		var zero T
		return zero, apierror.ErrRequestAborted
	}
}

// Then starts next with the value of first once it completes, without
// blocking the caller. An error from first skips next and is delivered as is.
func Then[A, B any](ctx context.Context, first *Future[A], next func(context.Context, A) *Future[B]) *Future[B] {
	p, f := NewPromise[B]()
	go func() {
		v, err := first.Wait(ctx)
		if err != nil {
			p.Reject(err)
			return
		}
		out, err := next(ctx, v).Wait(ctx)
		if err != nil {
			p.Reject(err)
			return
		}
		p.Resolve(out)
	}()
	return f
}
