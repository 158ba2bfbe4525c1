package fade

import (
	"time"

	"github.com/dokzlo13/rgbwfade/internal/color"
	"github.com/dokzlo13/rgbwfade/internal/device"
)

// EventKind identifies a controller lifecycle event
type EventKind string

const (
	EventRunStarted         EventKind = "fade_started"
	EventRunStopped         EventKind = "fade_stopped"
	EventTransitionStarted  EventKind = "transition_started"
	EventTransitionFinished EventKind = "transition_finished"
)

// Event describes a controller lifecycle change.
type Event struct {
	Kind  EventKind
	RunID string
	Index int
	At    time.Time

	// run started
	Baseline         device.Status
	BaselineCaptured bool

	// run stopped
	Restored bool

	// transitions
	From, To color.Target
}
