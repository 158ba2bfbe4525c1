package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/rgbwfade/internal/color"
	"github.com/dokzlo13/rgbwfade/internal/config"
	"github.com/dokzlo13/rgbwfade/internal/device"
	"github.com/dokzlo13/rgbwfade/internal/eventbus"
	"github.com/dokzlo13/rgbwfade/internal/fade"
	"github.com/dokzlo13/rgbwfade/internal/input"
	"github.com/dokzlo13/rgbwfade/internal/loop"
	"github.com/dokzlo13/rgbwfade/internal/router"
)

// FadeStatus is a point-in-time view of the controller
type FadeStatus struct {
	Phase  fade.Phase `json:"phase"`
	Index  int        `json:"index"`
	Color  string     `json:"color"`
	RunID  string     `json:"run_id,omitempty"`
	Colors int        `json:"colors"`
}

// PowerToggled is published on the bus when a power toggle is sent
type PowerToggled struct {
	Input input.Event
	RunID string // fade run stopped by the toggle, if any
}

// FadeService runs the fade controller on the event loop and feeds it input events.
type FadeService struct {
	cfg        *config.Config
	bus        *eventbus.Bus
	dispatcher *device.Dispatcher
	bindings   router.Bindings

	Loop       *loop.Loop
	Controller *fade.Controller

	ctx        context.Context // app context, bounds input dispatch
	loopCancel context.CancelFunc
}

// NewFadeService creates the loop and the controller. Nothing runs until Start.
func NewFadeService(cfg *config.Config, seq *color.Sequence, dispatcher *device.Dispatcher, bus *eventbus.Bus) *FadeService {
	s := &FadeService{
		cfg:        cfg,
		bus:        bus,
		dispatcher: dispatcher,
		bindings: router.Bindings{
			Toggle:     cfg.Inputs.Toggle,
			Power:      cfg.Inputs.Power,
			PressEvent: cfg.Inputs.PressEvent,
		},
		Loop: loop.New(),
	}

	s.Controller = fade.NewController(seq, dispatcher, s.Loop, fade.Options{
		Duration: cfg.Fade.Duration.Duration(),
		Steps:    cfg.Fade.Steps,
		OnEvent:  s.publish,
	})

	log.Info().
		Int("colors", seq.Len()).
		Dur("duration", cfg.Fade.Duration.Duration()).
		Int("steps", cfg.Fade.Steps).
		Dur("step_interval", fade.StepInterval(cfg.Fade.Duration.Duration(), cfg.Fade.Steps)).
		Msg("Fade controller initialized")
	return s
}

// Start runs the event loop and subscribes to input events.
func (s *FadeService) Start(ctx context.Context) {
	s.ctx = ctx

	// The loop outlives ctx so Stop can restore the light on shutdown.
	var loopCtx context.Context
	loopCtx, s.loopCancel = context.WithCancel(context.Background())
	go s.Loop.Run(loopCtx)

	s.bus.Subscribe(eventbus.EventTypeInput, s.handleInput)
}

func (s *FadeService) handleInput(ev eventbus.Event) {
	in, ok := ev.Payload.(input.Event)
	if !ok {
		log.Warn().Str("source", ev.Source).Msg("Input event without payload")
		return
	}

	s.Loop.Do(s.ctx, func(context.Context) {
		s.dispatch(in)
	})
}

// dispatch routes one input event. Runs on the loop.
func (s *FadeService) dispatch(in input.Event) {
	effects := router.Route(s.Controller.Running(), in, s.bindings)
	if len(effects) == 0 {
		log.Debug().Str("input", in.String()).Str("source", in.Source).Msg("Input ignored")
		return
	}

	log.Info().
		Str("input", in.String()).
		Str("source", in.Source).
		Interface("effects", effects).
		Msg("Input received")

	runID := s.Controller.RunID()
	router.Apply(effects, router.Actions{
		StartFade: s.Controller.Start,
		StopFade:  s.Controller.Stop,
		TogglePower: func() {
			s.dispatcher.TogglePower()
			s.bus.Publish(eventbus.Event{
				Type:    eventbus.EventTypePower,
				Source:  in.Source,
				Payload: PowerToggled{Input: in, RunID: runID},
			})
		},
	})
}

func (s *FadeService) publish(ev fade.Event) {
	if ev.Kind == fade.EventTransitionFinished {
		return
	}
	s.bus.Publish(eventbus.Event{
		Type:    eventbus.EventTypeFade,
		Source:  "fade",
		At:      ev.At,
		Payload: ev,
	})
}

// Status reads the controller state on the loop
func (s *FadeService) Status(ctx context.Context) (FadeStatus, error) {
	var st FadeStatus
	err := s.Loop.DoSync(ctx, func(context.Context) error {
		seq := s.Controller.Sequence()
		state := s.Controller.State()
		st = FadeStatus{
			Phase:  s.Controller.Phase(),
			Index:  state.Index,
			Color:  seq.At(state.Index).String(),
			RunID:  s.Controller.RunID(),
			Colors: seq.Len(),
		}
		return nil
	})
	return st, err
}

// Stop ends any running fade, restoring the light, and stops the loop.
func (s *FadeService) Stop(timeout time.Duration) {
	if s.loopCancel == nil {
		s.Loop.Close()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := s.Loop.DoSync(ctx, func(context.Context) error {
		s.Controller.Stop()
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to stop fade before shutdown")
	}

	s.Loop.Close()
	select {
	case <-s.Loop.Done():
	case <-ctx.Done():
		log.Warn().Msg("Event loop shutdown timed out")
	}
	s.loopCancel()
}
