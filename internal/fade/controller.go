// Package fade implements the fade scheduler: a cycle timer that advances through
// the color sequence and a step timer that animates each transition.
//
// A Controller is not safe for concurrent use. All of its methods and timer
// callbacks must run on the same goroutine, normally the host event loop.
package fade

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/rgbwfade/internal/color"
	"github.com/dokzlo13/rgbwfade/internal/device"
	"github.com/dokzlo13/rgbwfade/internal/loop"
)

// Device is the fire-and-forget command sink the controller drives.
// SetFrame may coalesce animation frames; SetColor must deliver every command.
type Device interface {
	SetFrame(cmd device.Command)
	SetColor(cmd device.Command)
	GetStatus() (device.Status, error)
}

// Timers schedules repeating callbacks on the controller's goroutine.
type Timers interface {
	SetRepeating(interval time.Duration, fn func()) loop.TimerID
	Cancel(id loop.TimerID)
}

// RunState is the controller's shared guard state.
// StepActive is only ever true while FadeActive is true.
type RunState struct {
	Index      int
	FadeActive bool
	StepActive bool
}

// Phase is the controller's externally visible state
type Phase string

const (
	PhaseStopped       Phase = "stopped"
	PhaseTransitioning Phase = "transitioning"
	PhaseIdle          Phase = "idle"
)

// Options configures a Controller
type Options struct {
	Duration time.Duration // one full transition and one cycle
	Steps    int           // interpolation steps per transition
	OnEvent  func(Event)   // optional observer, called on the controller's goroutine
}

// Controller owns the run state, both timers and the snapshot.
type Controller struct {
	seq    *color.Sequence
	dev    Device
	timers Timers

	duration     time.Duration
	stepInterval time.Duration
	steps        int
	onEvent      func(Event)

	state      RunState
	runID      string
	cycleTimer loop.TimerID
	stepTimer  loop.TimerID

	// current transition
	from, to color.Target
	step     int

	snapshot *Snapshot
}

// NewController creates a stopped controller. opts.Steps and opts.Duration must be positive.
func NewController(seq *color.Sequence, dev Device, timers Timers, opts Options) *Controller {
	return &Controller{
		seq:          seq,
		dev:          dev,
		timers:       timers,
		duration:     opts.Duration,
		stepInterval: StepInterval(opts.Duration, opts.Steps),
		steps:        opts.Steps,
		onEvent:      opts.OnEvent,
		snapshot:     NewSnapshot(dev),
	}
}

// StepInterval returns duration/steps truncated to whole milliseconds.
func StepInterval(duration time.Duration, steps int) time.Duration {
	if steps <= 0 {
		return duration
	}
	return (duration / time.Duration(steps)).Truncate(time.Millisecond)
}

// Start begins a fade run. It is a no-op if a run is already active.
func (c *Controller) Start() {
	if c.state.FadeActive {
		log.Debug().Str("run_id", c.runID).Msg("Fade already running")
		return
	}

	c.runID = uuid.NewString()
	if err := c.snapshot.Capture(); err != nil {
		log.Warn().Err(err).Str("run_id", c.runID).Msg("Failed to capture device state, it will not be restored")
	}
	c.state.FadeActive = true

	baseline, captured := c.snapshot.Status()
	log.Info().
		Str("run_id", c.runID).
		Dur("duration", c.duration).
		Int("steps", c.steps).
		Bool("baseline_captured", captured).
		Msg("Fade started")
	c.emit(Event{Kind: EventRunStarted, Baseline: baseline, BaselineCaptured: captured})

	c.BeginTransition()
	c.cycleTimer = c.timers.SetRepeating(c.duration, c.BeginTransition)
}

// Stop ends the fade run, cancels both timers and restores the snapshot.
// It is a no-op if no run is active.
func (c *Controller) Stop() {
	if !c.state.FadeActive {
		return
	}

	c.state.FadeActive = false
	c.state.StepActive = false
	if c.cycleTimer != 0 {
		c.timers.Cancel(c.cycleTimer)
		c.cycleTimer = 0
	}
	if c.stepTimer != 0 {
		c.timers.Cancel(c.stepTimer)
		c.stepTimer = 0
	}

	restored := c.snapshot.Restore()
	log.Info().
		Str("run_id", c.runID).
		Bool("restored", restored).
		Msg("Fade stopped")
	c.emit(Event{Kind: EventRunStopped, Restored: restored})
	c.runID = ""
}

// Toggle starts a stopped controller and stops a running one
func (c *Controller) Toggle() {
	if c.state.FadeActive {
		c.Stop()
		return
	}
	c.Start()
}

// BeginTransition starts animating from the current color to the next one.
// It is a no-op while a transition is animating or when no run is active.
func (c *Controller) BeginTransition() {
	if !c.state.FadeActive || c.state.StepActive {
		return
	}

	c.state.StepActive = true
	c.from = c.seq.At(c.state.Index)
	c.state.Index = c.seq.Next(c.state.Index)
	c.to = c.seq.At(c.state.Index)
	c.step = 0

	log.Debug().
		Str("run_id", c.runID).
		Str("from", c.from.String()).
		Str("to", c.to.String()).
		Int("index", c.state.Index).
		Msg("Fading to next color")
	c.emit(Event{Kind: EventTransitionStarted, From: c.from, To: c.to})

	// Frame 0 goes out immediately, the remaining frames on step ticks.
	c.advance()
	if c.state.StepActive {
		c.stepTimer = c.timers.SetRepeating(c.stepInterval, c.advance)
	}
}

// advance sends the frame for the current step and moves to the next one,
// finishing the transition once every frame has been sent.
func (c *Controller) advance() {
	if !c.state.StepActive {
		return
	}

	frame := color.Interpolate(c.from, c.to, c.step, c.steps)
	c.dev.SetFrame(device.Command{
		On:         true,
		RGB:        [3]int{frame.R, frame.G, frame.B},
		White:      0,
		Brightness: frame.Gain,
	})

	c.step++
	if c.step > c.steps {
		if c.stepTimer != 0 {
			c.timers.Cancel(c.stepTimer)
			c.stepTimer = 0
		}
		c.state.StepActive = false
		c.emit(Event{Kind: EventTransitionFinished, From: c.from, To: c.to})
	}
}

// State returns a copy of the run state
func (c *Controller) State() RunState {
	return c.state
}

// Running reports whether a fade run is active
func (c *Controller) Running() bool {
	return c.state.FadeActive
}

// Phase reports the controller's current phase
func (c *Controller) Phase() Phase {
	switch {
	case !c.state.FadeActive:
		return PhaseStopped
	case c.state.StepActive:
		return PhaseTransitioning
	default:
		return PhaseIdle
	}
}

// RunID returns the ID of the active run, or "" when stopped
func (c *Controller) RunID() string {
	return c.runID
}

// Sequence returns the color sequence
func (c *Controller) Sequence() *color.Sequence {
	return c.seq
}

func (c *Controller) emit(ev Event) {
	if c.onEvent == nil {
		return
	}
	ev.RunID = c.runID
	ev.Index = c.state.Index
	ev.At = time.Now()
	c.onEvent(ev)
}
