// Package eventloop provides the single-writer scheduler every session
// component runs on. Tasks execute one at a time, in the order they were
// posted, on the goroutine that called Run.
package eventloop

import (
	"context"
	"errors"
	"sync"
)

var ErrStopped = errors.New("event loop stopped")

type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post enqueues a task. It never blocks, so it is safe to call from inside a
// running task or from a timer callback. Tasks posted after the loop stops are dropped.
func (l *Loop) Post(task func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call posts a task and waits for it to finish. Must not be called from a task.
func (l *Loop) Call(ctx context.Context, task func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		task()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes tasks until ctx is cancelled. Pending tasks are discarded on exit.
func (l *Loop) Run(ctx context.Context) {
	defer l.stop()

	for {
		for {
			task, ok := l.next()
			if !ok {
				break
			}
			task()
			if ctx.Err() != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

// Drain runs every queued task on the calling goroutine, including tasks
// posted while draining. Intended for tests that drive components without Run.
func (l *Loop) Drain() int {
	n := 0
	for {
		task, ok := l.next()
		if !ok {
			return n
		}
		task()
		n++
	}
}

// Done is closed once Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

func (l *Loop) stop() {
	l.mu.Lock()
	if !l.stopped {
		l.stopped = true
		l.queue = nil
		close(l.done)
	}
	l.mu.Unlock()
}
