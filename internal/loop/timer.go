package loop

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// SetRepeating schedules fn to run on the loop every interval until cancelled.
// A tick that reaches the loop after Cancel is discarded, so fn never runs
// once Cancel has returned on the loop goroutine.
func (l *Loop) SetRepeating(interval time.Duration, fn func()) TimerID {
	if interval <= 0 {
		interval = time.Millisecond
	}

	l.mu.Lock()
	l.nextID++
	id := l.nextID
	t := &timer{
		interval: interval,
		fn:       fn,
		stop:     make(chan struct{}),
	}
	l.timers[id] = t
	l.mu.Unlock()

	go l.runTimer(id, t)

	log.Trace().Uint64("timer", uint64(id)).Dur("interval", interval).Msg("Timer scheduled")
	return id
}

// Cancel stops a timer. Cancelling an unknown or already cancelled timer is a no-op.
func (l *Loop) Cancel(id TimerID) {
	l.mu.Lock()
	t, ok := l.timers[id]
	if ok {
		delete(l.timers, id)
	}
	l.mu.Unlock()

	if ok {
		close(t.stop)
		log.Trace().Uint64("timer", uint64(id)).Msg("Timer cancelled")
	}
}

// ActiveTimers returns the number of live timers
func (l *Loop) ActiveTimers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}

func (l *Loop) active(id TimerID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.timers[id]
	return ok
}

// runTimer forwards ticker ticks into the work queue.
// Ticks are never dropped while the queue has room; the ticker itself coalesces
// ticks the loop cannot keep up with.
func (l *Loop) runTimer(id TimerID, t *timer) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	tick := Work(func(context.Context) {
		if !l.active(id) {
			return
		}
		t.fn()
	})

	for {
		select {
		case <-t.stop:
			return
		case <-l.closing:
			return
		case <-ticker.C:
			select {
			case l.workQueue <- tick:
			case <-t.stop:
				return
			case <-l.closing:
				return
			}
		}
	}
}

func (l *Loop) stopTimers() {
	l.mu.Lock()
	timers := l.timers
	l.timers = make(map[TimerID]*timer)
	l.mu.Unlock()

	for _, t := range timers {
		close(t.stop)
	}
}
