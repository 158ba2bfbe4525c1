// Package loop provides the single-goroutine host event loop.
// Every timer tick and input callback runs to completion on the loop goroutine,
// so code executed through it needs no locking of its own.
package loop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrClosed is returned when work is submitted to a closed loop
var ErrClosed = errors.New("event loop closed")

// DefaultQueueSize is the work queue capacity used by New
const DefaultQueueSize = 100

// Work is a unit of work executed on the loop goroutine
type Work func(ctx context.Context)

// TimerID identifies a repeating timer. The zero value never identifies a live timer.
type TimerID uint64

type timer struct {
	interval time.Duration
	fn       func()
	stop     chan struct{}
}

// Loop runs submitted work and timer callbacks one at a time
type Loop struct {
	workQueue chan Work

	// Shutdown signaling - closing this channel signals senders to stop
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	mu     sync.Mutex
	timers map[TimerID]*timer
	nextID TimerID
}

// New creates a loop with the default queue size
func New() *Loop {
	return NewWithQueueSize(DefaultQueueSize)
}

// NewWithQueueSize creates a loop with a custom queue size
func NewWithQueueSize(queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Loop{
		workQueue: make(chan Work, queueSize),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
		timers:    make(map[TimerID]*timer),
	}
}

// Do queues work without blocking.
// Returns false if the loop is closing, the queue is full, or ctx is cancelled.
func (l *Loop) Do(ctx context.Context, work Work) bool {
	if l.isClosing() {
		log.Warn().Msg("Event loop closing, dropping work")
		return false
	}

	select {
	case <-l.closing:
		log.Warn().Msg("Event loop closing, dropping work")
		return false
	case <-ctx.Done():
		log.Warn().Msg("Context cancelled, dropping loop work")
		return false
	case l.workQueue <- work:
		return true
	default:
		log.Warn().Msg("Event loop queue full, dropping work")
		return false
	}
}

// DoSync queues work, waits for it to run and returns its error.
func (l *Loop) DoSync(ctx context.Context, work func(context.Context) error) error {
	if l.isClosing() {
		return ErrClosed
	}

	result := make(chan error, 1)
	wrapped := Work(func(c context.Context) {
		result <- work(c)
	})

	select {
	case <-l.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case l.workQueue <- wrapped:
	}

	select {
	case <-l.done:
		// Run drains the queue before closing done, so a queued result is always there.
		select {
		case err := <-result:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	case err := <-result:
		return err
	}
}

// Run executes work until ctx is cancelled or Close is called.
// It is the only goroutine that runs submitted work.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	log.Debug().Msg("Event loop started")

	for {
		select {
		case <-ctx.Done():
			l.stopTimers()
			l.drainQueue(ctx)
			return
		case <-l.closing:
			l.drainQueue(ctx)
			return
		case work := <-l.workQueue:
			l.executeWork(ctx, work)
		}
	}
}

// Close stops all timers and signals Run to exit after draining queued work.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.closing)
	})
	l.stopTimers()
}

func (l *Loop) isClosing() bool {
	select {
	case <-l.closing:
		return true
	default:
		return false
	}
}

// Done is closed once Run has returned
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// drainQueue processes any remaining work in the queue before exiting
func (l *Loop) drainQueue(ctx context.Context) {
	for {
		select {
		case work := <-l.workQueue:
			l.executeWork(ctx, work)
		default:
			return
		}
	}
}

// executeWork runs a single work item with panic recovery
func (l *Loop) executeWork(ctx context.Context, work Work) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Loop work panicked - loop continuing")
		}
	}()
	work(ctx)
}
