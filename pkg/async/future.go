// Package async provides the suspension primitive shared by the parser and
// the layout machine: a value that is either ready, failed, or pending until
// an external collaborator settles it.
package async

import (
	"context"
	"errors"
	"sync"
)

// ErrPending is returned by Result while a future has not settled.
var ErrPending = errors.New("async: result still pending")

// Waiter is the type-erased view of a Future used by state machines that
// only need to know when to resume.
type Waiter interface {
	Done() bool
	Subscribe(fn func())
	Chan() <-chan struct{}
}

// Future holds the outcome of an operation that may complete later.
// The first call to resolve or fail wins; later calls are ignored.
type Future[T any] struct {
	mu      sync.Mutex
	done    bool
	value   T
	err     error
	ch      chan struct{}
	waiters []func()
}

// Ready returns a future that is already settled with v.
func Ready[T any](v T) *Future[T] {
	f := &Future[T]{done: true, value: v, ch: make(chan struct{})}
	close(f.ch)
	return f
}

// Failed returns a future that is already settled with err.
func Failed[T any](err error) *Future[T] {
	f := &Future[T]{done: true, err: err, ch: make(chan struct{})}
	close(f.ch)
	return f
}

// NewPending returns an unsettled future together with its settle functions.
func NewPending[T any]() (f *Future[T], resolve func(T), fail func(error)) {
	f = &Future[T]{ch: make(chan struct{})}
	resolve = func(v T) { f.settle(v, nil) }
	fail = func(err error) {
		var zero T
		f.settle(zero, err)
	}
	return f, resolve, fail
}

func (f *Future[T]) settle(v T, err error) {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		return
	}
	f.done = true
	f.value = v
	f.err = err
	waiters := f.waiters
	f.waiters = nil
	close(f.ch)
	f.mu.Unlock()

	for _, fn := range waiters {
		fn()
	}
}

// Done reports whether the future has settled.
func (f *Future[T]) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// Result returns the settled value, or ErrPending when not yet settled.
func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.done {
		var zero T
		return zero, ErrPending
	}
	return f.value, f.err
}

// Subscribe registers fn to run once the future settles. If it already
// has, fn runs immediately on the calling goroutine.
func (f *Future[T]) Subscribe(fn func()) {
	f.mu.Lock()
	if !f.done {
		f.waiters = append(f.waiters, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	fn()
}

// Chan returns a channel closed when the future settles.
func (f *Future[T]) Chan() <-chan struct{} {
	return f.ch
}

// Wait blocks until the future settles or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.ch:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// All returns a waiter that settles once every given waiter has settled.
// Failures are not inspected; callers read each future's Result afterwards.
func All(waiters ...Waiter) *Future[struct{}] {
	f, resolve, _ := NewPending[struct{}]()
	var (
		mu        sync.Mutex
		remaining = len(waiters)
	)
	if remaining == 0 {
		resolve(struct{}{})
		return f
	}
	for _, w := range waiters {
		w.Subscribe(func() {
			mu.Lock()
			remaining--
			last := remaining == 0
			mu.Unlock()
			if last {
				resolve(struct{}{})
			}
		})
	}
	return f
}

// Drive runs step until it reports completion. Whenever step returns a
// waiter, Drive blocks on it, honouring ctx.
func Drive(ctx context.Context, step func() (bool, Waiter)) error {
	for {
		done, w := step()
		if done {
			return nil
		}
		if w == nil {
			continue
		}
		select {
		case <-w.Chan():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Resume runs step cooperatively: it advances until step suspends, then
// re-enters from the waiter's subscription. finish runs once step is done.
func Resume(step func() (bool, Waiter), finish func()) {
	for {
		done, w := step()
		if done {
			finish()
			return
		}
		if w == nil {
			continue
		}
		if !w.Done() {
			w.Subscribe(func() { Resume(step, finish) })
			return
		}
	}
}
