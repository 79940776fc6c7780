// Package owner serializes work onto a single goroutine.
//
// Every closure posted to a Loop runs on the loop goroutine, one at a time,
// in the order it was accepted. State touched only from inside closures
// therefore needs no locking.
package owner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/MahdiBaghbani/confdesk-go/internal/platform/logutil"
)

// DefaultQueueSize is used when New receives a non-positive size.
const DefaultQueueSize = 256

// ErrClosed is returned when work is submitted after Close.
var ErrClosed = errors.New("owner loop closed")

// PanicError is returned by Do when the closure panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in owner loop: %v", e.Value)
}

type task struct {
	fn   func()
	done chan error
}

// Loop is a single-goroutine work queue.
type Loop struct {
	log   *slog.Logger
	queue chan task

	mu      sync.RWMutex
	closed  bool
	started bool

	closeOnce sync.Once
	closing   chan struct{}
	stopped   chan struct{}
}

// New returns a loop with a bounded queue. Call Run to start it.
func New(size int, log *slog.Logger) *Loop {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Loop{
		log:     logutil.NoopIfNil(log).With("component", "owner"),
		queue:   make(chan task, size),
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Run drains the queue until Close is called and every accepted closure
// has run, or until ctx ends. It must be called exactly once.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return errors.New("owner loop already running")
	}
	l.started = true
	l.mu.Unlock()

	defer close(l.stopped)
	for {
		select {
		case t, ok := <-l.queue:
			if !ok {
				return nil
			}
			l.exec(t)
		case <-ctx.Done():
			l.Close()
			// Accepted work is applied to completion.
			for t := range l.queue {
				l.exec(t)
			}
			return ctx.Err()
		}
	}
}

// Start runs the loop on a new goroutine.
func (l *Loop) Start(ctx context.Context) {
	go func() {
		if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.log.Warn("owner loop stopped", "error", err)
		}
	}()
}

func (l *Loop) exec(t task) {
	err := l.call(t.fn)
	if t.done != nil {
		t.done <- err
	}
}

func (l *Loop) call(fn func()) (err error) {
	defer func() {
		if v := recover(); v != nil {
			l.log.Error("recovered panic in owner loop", "panic", v, "stack", string(debug.Stack()))
			err = &PanicError{Value: v}
		}
	}()
	fn()
	return nil
}

func (l *Loop) submit(ctx context.Context, t task) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	select {
	case l.queue <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.closing:
		return ErrClosed
	}
}

// Post enqueues fn without waiting for it to run. It blocks only while the
// queue is full.
func (l *Loop) Post(ctx context.Context, fn func()) error {
	return l.submit(ctx, task{fn: fn})
}

// Do enqueues fn and waits until it has run. If ctx ends first the closure
// may still run later; Do returns ctx.Err(). Use Call when fn produces a
// result.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan error, 1)
	if err := l.submit(ctx, task{fn: fn, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		// The loop may have run the closure just before stopping.
		select {
		case err := <-done:
			return err
		default:
			return ErrClosed
		}
	}
}

// Call runs fn on l and returns its result. The result travels over a
// channel owned by this call, so nothing fn writes is read by the caller
// when ctx ends before fn has run.
func Call[T any](ctx context.Context, l *Loop, fn func() T) (T, error) {
	out := make(chan T, 1)
	if err := l.Do(ctx, func() { out <- fn() }); err != nil {
		var zero T
		return zero, err
	}
	return <-out, nil
}

// Close stops accepting work. Closures already accepted still run.
func (l *Loop) Close() {
	// Release submitters blocked on a full queue before taking the lock.
	l.closeOnce.Do(func() { close(l.closing) })

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
}

// Wait blocks until Run has returned or ctx ends.
func (l *Loop) Wait(ctx context.Context) error {
	select {
	case <-l.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopped is closed once Run has returned.
func (l *Loop) Stopped() <-chan struct{} { return l.stopped }
