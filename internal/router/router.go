// Package router maps input events to fade and power effects.
package router

import (
	"github.com/dokzlo13/rgbwfade/internal/input"
)

// Effect is an action requested by an input event
type Effect string

const (
	EffectStartFade   Effect = "start_fade"
	EffectStopFade    Effect = "stop_fade"
	EffectTogglePower Effect = "toggle_power"
)

// Bindings names the inputs the router reacts to.
type Bindings struct {
	Toggle     string // toggles the fade
	Power      string // stops the fade, then toggles device power
	PressEvent string // the only event type recognized
}

// DefaultBindings returns the Shelly RGBW wiring: input:1 toggles the fade,
// input:0 toggles power.
func DefaultBindings() Bindings {
	return Bindings{
		Toggle:     "input:1",
		Power:      "input:0",
		PressEvent: input.SinglePush,
	}
}

// Route returns the effects of ev given whether a fade is running.
// Unbound components and other event types yield no effects.
func Route(running bool, ev input.Event, b Bindings) []Effect {
	if ev.Type != b.PressEvent {
		return nil
	}

	switch ev.Component {
	case b.Toggle:
		if running {
			return []Effect{EffectStopFade}
		}
		return []Effect{EffectStartFade}
	case b.Power:
		if running {
			return []Effect{EffectStopFade, EffectTogglePower}
		}
		return []Effect{EffectTogglePower}
	}
	return nil
}

// Actions performs effects
type Actions struct {
	StartFade   func()
	StopFade    func()
	TogglePower func()
}

// Apply runs effects in order. Nil actions are skipped.
func Apply(effects []Effect, a Actions) {
	for _, e := range effects {
		var fn func()
		switch e {
		case EffectStartFade:
			fn = a.StartFade
		case EffectStopFade:
			fn = a.StopFade
		case EffectTogglePower:
			fn = a.TogglePower
		}
		if fn != nil {
			fn()
		}
	}
}
