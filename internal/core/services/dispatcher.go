package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

var ErrDispatcherStopped = errors.New("dispatcher stopped")

// PanicError is returned by Do when the submitted closure panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in dispatched task: %v", e.Value)
}

type task struct {
	fn   func()
	done chan error
}

// Dispatcher runs submitted closures one at a time on a single goroutine. State touched only
// from inside dispatched closures needs no further synchronization.
type Dispatcher struct {
	queue   chan task
	stopped chan struct{}
	once    sync.Once
	onPanic func(*PanicError)
	logger  *zap.SugaredLogger
}

func NewDispatcher(queueSize int, logger *zap.SugaredLogger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		queue:   make(chan task, queueSize),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// OnPanic registers a hook invoked on the loop goroutine after a closure panics.
func (d *Dispatcher) OnPanic(fn func(*PanicError)) {
	d.onPanic = fn
}

// Run processes tasks until ctx is cancelled. Tasks still queued at that point are rejected
// with ErrDispatcherStopped.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.stop()
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case t := <-d.queue:
			t.done <- d.execute(t.fn)
		}
	}
}

func (d *Dispatcher) execute(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pe := &PanicError{Value: r, Stack: debug.Stack()}
			d.logger.Errorw("recovered panic in dispatch loop", "panic", r, "stack", string(pe.Stack))
			if d.onPanic != nil {
				d.onPanic(pe)
			}
			err = pe
		}
	}()
	fn()
	return nil
}

func (d *Dispatcher) drain() {
	d.stop()
	for {
		select {
		case t := <-d.queue:
			t.done <- ErrDispatcherStopped
		default:
			return
		}
	}
}

func (d *Dispatcher) stop() {
	d.once.Do(func() { close(d.stopped) })
}

// Do submits fn and waits for it to complete. It returns ctx.Err() if ctx ends before fn is
// queued, and ErrDispatcherStopped if the loop exits before running it. fn must not call Do.
func (d *Dispatcher) Do(ctx context.Context, fn func()) error {
	t := task{fn: fn, done: make(chan error, 1)}

	select {
	case <-d.stopped:
		return ErrDispatcherStopped
	default:
	}

	select {
	case d.queue <- t:
	case <-d.stopped:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-t.done:
		return err
	case <-d.stopped:
		// The loop only stops between tasks, so a task it ran has already reported.
		select {
		case err := <-t.done:
			return err
		default:
			return ErrDispatcherStopped
		}
	}
}

// Stopped is closed once the loop has exited.
func (d *Dispatcher) Stopped() <-chan struct{} {
	return d.stopped
}
