// Package app wires the rgbwfade daemon: the device driver and its command
// dispatcher, the fade loop driven by button presses, the event ledger and
// the HTTP surfaces.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/rgbwfade/internal/config"
)

// App owns the daemon's services from construction until the light has been
// restored on shutdown.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc
}

// New builds every service for cfg without connecting to the device.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
	}, nil
}

// Start connects to the device and begins listening for button presses.
// Cancelling ctx, or losing the device for good, ends Wait.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	// The device connection gave up: shut the daemon down
	onFatalError := func(err error) {
		log.Error().Err(err).Msg("Device lost, initiating shutdown")
		a.cancel()
	}

	if err := a.services.Start(a.ctx, onFatalError); err != nil {
		return err
	}

	log.Info().
		Str("driver", a.cfg.Device.Driver).
		Dur("duration", a.cfg.Fade.Duration.Duration()).
		Int("steps", a.cfg.Fade.Steps).
		Str("toggle_input", a.cfg.Inputs.Toggle).
		Str("power_input", a.cfg.Inputs.Power).
		Msg("rgbwfade started")
	return nil
}

// Stop ends a running fade, restores the light and shuts down all services.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")

	if a.cancel != nil {
		a.cancel()
	}

	if a.services != nil {
		return a.services.Stop()
	}

	return nil
}

// Wait blocks until a shutdown is requested.
func (a *App) Wait() {
	if a.ctx != nil {
		<-a.ctx.Done()
	}
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
