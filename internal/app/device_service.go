package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/rgbwfade/internal/config"
	"github.com/dokzlo13/rgbwfade/internal/device"
	"github.com/dokzlo13/rgbwfade/internal/eventbus"
	"github.com/dokzlo13/rgbwfade/internal/hue"
	"github.com/dokzlo13/rgbwfade/internal/shelly"
)

// DeviceService owns the light driver, its background connections and the
// command dispatcher the fade controller writes to.
type DeviceService struct {
	cfg *config.Config
	bus *eventbus.Bus

	Driver     device.Device
	Dispatcher *device.Dispatcher

	shelly    *shelly.Client
	hueStream *hue.EventStream

	// Connections outlive the app context so the restore command can be
	// flushed during shutdown.
	cancel context.CancelFunc
}

// NewDeviceService creates the configured driver and its dispatcher.
func NewDeviceService(cfg *config.Config, bus *eventbus.Bus) (*DeviceService, error) {
	s := &DeviceService{cfg: cfg, bus: bus}

	switch cfg.Device.Driver {
	case config.DriverShelly:
		sc := cfg.Device.Shelly
		s.shelly = shelly.NewClient(shelly.Config{
			URL:           sc.URL,
			ClientID:      sc.ClientID,
			Channel:       sc.Channel,
			CallTimeout:   sc.Timeout.Duration(),
			MinBackoff:    sc.MinRetryBackoff.Duration(),
			MaxBackoff:    sc.MaxRetryBackoff.Duration(),
			Multiplier:    sc.RetryMultiplier,
			MaxReconnects: sc.MaxReconnects,
		})
		s.Driver = s.shelly

	case config.DriverHue:
		hc := cfg.Device.Hue
		s.Driver = hue.NewDriver(hc.Bridge, hc.Token, hc.Light)
		if hc.Buttons {
			s.hueStream = hue.NewEventStream(hc.Bridge, hc.Token, hue.EventStreamConfig{
				MinBackoff:    hc.MinRetryBackoff.Duration(),
				MaxBackoff:    hc.MaxRetryBackoff.Duration(),
				Multiplier:    hc.RetryMultiplier,
				MaxReconnects: hc.MaxReconnects,
			})
		}

	default:
		return nil, fmt.Errorf("unknown device driver %q", cfg.Device.Driver)
	}

	s.Dispatcher = device.NewDispatcher(s.Driver, device.DispatcherConfig{
		QueueSize:    cfg.Dispatcher.QueueSize,
		RateLimitRPS: cfg.Dispatcher.RateLimitRPS,
		CallTimeout:  cfg.Dispatcher.CallTimeout.Duration(),
	})

	log.Info().Str("driver", cfg.Device.Driver).Msg("Device driver initialized")
	return s, nil
}

// StartBackground starts the driver connections.
// The optional onFatalError callback is called when a connection gives up.
func (s *DeviceService) StartBackground(ctx context.Context, onFatalError func(error)) {
	ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if s.shelly != nil {
		go s.run("shelly", func() error { return s.shelly.Run(ctx, s.bus) }, onFatalError)
	}
	if s.hueStream != nil {
		go s.run("hue_event_stream", func() error { return s.hueStream.Run(ctx, s.bus) }, onFatalError)
	}
}

func (s *DeviceService) run(name string, fn func() error, onFatalError func(error)) {
	err := fn()
	if err == nil {
		return
	}
	log.Error().Err(err).Str("connection", name).Msg("Device connection terminated")
	if onFatalError != nil && (errors.Is(err, shelly.ErrMaxReconnectsExceeded) || errors.Is(err, hue.ErrMaxReconnectsExceeded)) {
		onFatalError(err)
	}
}

// Ready reports whether commands can reach the device
func (s *DeviceService) Ready() bool {
	if s.shelly != nil {
		return s.shelly.Connected()
	}
	return true
}

// Close flushes queued commands, then closes the connections.
func (s *DeviceService) Close(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.Dispatcher.Close(ctx)
	if s.cancel != nil {
		s.cancel()
	}
}
