// Package mainloop provides the single-threaded scheduler the presence agent
// runs on, plus a manually advanced variant for tests.
package mainloop

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// ErrClosed is returned by Invoke once the loop has been closed.
var ErrClosed = errors.New("mainloop: closed")

// CancelFunc cancels a scheduled callback. Calling it more than once is harmless.
type CancelFunc func()

// Scheduler runs fn once after d has elapsed.
type Scheduler interface {
	ScheduleAfter(d time.Duration, fn func()) CancelFunc
}

// Poster queues fn for execution on the loop as soon as possible.
type Poster interface {
	Post(fn func()) bool
}

// Loop executes every posted and scheduled callback serially on one goroutine.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

// New starts a loop goroutine.
func New() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// Post queues fn. It returns false when the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	select {
	case l.wake <- struct{}{}:
	default:
	}
	l.mu.Unlock()
	return true
}

// ScheduleAfter posts fn to the loop after d. A callback cancelled before it
// starts executing never runs.
func (l *Loop) ScheduleAfter(d time.Duration, fn func()) CancelFunc {
	cancelled := atomic.NewBool(false)
	run := func() {
		if cancelled.Load() {
			return
		}
		fn()
	}

	var timer *time.Timer
	if d <= 0 {
		l.Post(run)
	} else {
		timer = time.AfterFunc(d, func() { l.Post(run) })
	}
	return func() {
		cancelled.Store(true)
		if timer != nil {
			timer.Stop()
		}
	}
}

// Invoke runs fn on the loop and waits for it to finish. It must not be
// called from a callback already running on the loop.
func (l *Loop) Invoke(fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrClosed
	}
}

// Close stops the loop after the callback currently executing, dropping
// anything still queued, and waits for the goroutine to exit.
func (l *Loop) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		l.queue = nil
		close(l.wake)
	}
	l.mu.Unlock()
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for range l.wake {
		for {
			l.mu.Lock()
			if l.closed || len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			fn()
		}
	}
}
