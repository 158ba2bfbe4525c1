package device

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Default dispatcher configuration
const (
	DefaultQueueSize    = 64
	DefaultRateLimitRPS = 20.0
	DefaultCallTimeout  = 5 * time.Second
)

// DispatcherConfig configures a Dispatcher
type DispatcherConfig struct {
	QueueSize    int // capacity of the command queue, not counting frames
	RateLimitRPS float64
	CallTimeout  time.Duration
}

type jobKind int

const (
	jobSetColor jobKind = iota
	jobTogglePower
	jobFrame
)

type job struct {
	kind jobKind
	cmd  Command
}

// Dispatcher makes device writes fire-and-forget. A single sender goroutine
// sends them in order, rate limited to protect the device. Failures are logged
// and dropped. GetStatus goes straight to the device.
//
// Writes come in two classes. Animation frames (SetFrame) share one slot that
// always holds the latest frame, so a slow device skips frames instead of
// falling behind. Commands (SetColor, TogglePower) are never dropped: they
// are queued, sent before any pending frame, and block the caller while the
// queue is full. SetColor also discards the pending frame so a restore is
// never overwritten by a stale frame.
type Dispatcher struct {
	dev     Device
	limiter *rate.Limiter
	timeout time.Duration

	commands   chan job
	frameReady chan struct{}
	frameMu    sync.Mutex
	frame      *Command
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	stop   context.CancelFunc
	ctx    context.Context
}

// NewDispatcher creates a dispatcher and starts its sender goroutine
func NewDispatcher(dev Device, cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = DefaultRateLimitRPS
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	burst := int(cfg.RateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		dev:        dev,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst),
		timeout:    cfg.CallTimeout,
		commands:   make(chan job, cfg.QueueSize),
		frameReady: make(chan struct{}, 1),
		ctx:        ctx,
		stop:       cancel,
	}

	d.wg.Add(1)
	go d.run()

	log.Debug().
		Int("queue_size", cfg.QueueSize).
		Float64("rate_limit_rps", cfg.RateLimitRPS).
		Msg("Device dispatcher started")
	return d
}

// SetFrame replaces the pending animation frame
func (d *Dispatcher) SetFrame(cmd Command) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		log.Debug().Msg("Device dispatcher closed, dropping frame")
		return
	}

	d.frameMu.Lock()
	d.frame = &cmd
	d.frameMu.Unlock()

	select {
	case d.frameReady <- struct{}{}:
	default:
	}
}

// SetColor queues a color command and discards any pending frame
func (d *Dispatcher) SetColor(cmd Command) {
	d.enqueue(job{kind: jobSetColor, cmd: cmd}, true)
}

// TogglePower queues a power toggle
func (d *Dispatcher) TogglePower() {
	d.enqueue(job{kind: jobTogglePower}, false)
}

// GetStatus reads the device status synchronously, bounded by the call timeout
func (d *Dispatcher) GetStatus() (Status, error) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()
	return d.dev.GetStatus(ctx)
}

func (d *Dispatcher) enqueue(j job, supersedeFrame bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		log.Warn().Msg("Device dispatcher closed, dropping command")
		return
	}

	if supersedeFrame {
		d.takeFrame()
	}

	select {
	case d.commands <- j:
		return
	default:
	}

	log.Warn().Msg("Device command queue full, waiting for the sender")
	select {
	case d.commands <- j:
	case <-d.ctx.Done():
		log.Warn().Msg("Device dispatcher stopped, dropping command")
	}
}

func (d *Dispatcher) takeFrame() (Command, bool) {
	d.frameMu.Lock()
	defer d.frameMu.Unlock()

	if d.frame == nil {
		return Command{}, false
	}
	cmd := *d.frame
	d.frame = nil
	return cmd, true
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		// Commands go first.
		select {
		case j, ok := <-d.commands:
			if !ok {
				d.flushFrame()
				return
			}
			d.dispatch(j)
			continue
		default:
		}

		select {
		case j, ok := <-d.commands:
			if !ok {
				d.flushFrame()
				return
			}
			d.dispatch(j)
		case <-d.frameReady:
			if cmd, ok := d.takeFrame(); ok {
				d.dispatch(job{kind: jobFrame, cmd: cmd})
			}
		}
	}
}

func (d *Dispatcher) flushFrame() {
	if cmd, ok := d.takeFrame(); ok {
		d.dispatch(job{kind: jobFrame, cmd: cmd})
	}
}

func (d *Dispatcher) dispatch(j job) {
	if err := d.limiter.Wait(d.ctx); err != nil {
		// Context cancelled: shutdown deadline passed, drop the rest.
		return
	}
	d.send(j)
}

func (d *Dispatcher) send(j job) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	switch j.kind {
	case jobSetColor, jobFrame:
		if err := d.dev.SetColor(ctx, j.cmd); err != nil {
			log.Warn().Err(err).Str("command", j.cmd.String()).Msg("Device color update failed")
		}
	case jobTogglePower:
		if err := d.dev.TogglePower(ctx); err != nil {
			log.Warn().Err(err).Msg("Device power toggle failed")
		}
	}
}

// Close stops accepting writes and waits for queued commands and the pending
// frame to be sent. If ctx expires first, the rest is abandoned.
func (d *Dispatcher) Close(ctx context.Context) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.commands)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Device dispatcher drained")
	case <-ctx.Done():
		log.Warn().Msg("Device dispatcher shutdown timed out, pending commands dropped")
		d.stop()
		<-done
	}
	d.stop()
}
