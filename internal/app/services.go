package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/rgbwfade/internal/color"
	"github.com/dokzlo13/rgbwfade/internal/config"
	"github.com/dokzlo13/rgbwfade/internal/db"
	"github.com/dokzlo13/rgbwfade/internal/eventbus"
	luart "github.com/dokzlo13/rgbwfade/internal/lua"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB  *db.DB
	Bus *eventbus.Bus

	// High-level services
	Device  *DeviceService
	Fade    *FadeService
	Ledger  *LedgerService
	Health  *HealthService
	Webhook *WebhookService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	seq, err := loadSequence(cfg)
	if err != nil {
		return nil, err
	}

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	if cfg.Ledger.IsEnabled() {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.DB = database
		s.Ledger = NewLedgerService(cfg, database)
	}

	s.Device, err = NewDeviceService(cfg, s.Bus)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Fade = NewFadeService(cfg, seq, s.Device.Dispatcher, s.Bus)
	s.Health = NewHealthService(cfg, s.Fade, s.Device)
	s.Webhook = NewWebhookService(cfg, s.Bus)

	return s, nil
}

// loadSequence builds the color sequence from the palette script or the inline colors
func loadSequence(cfg *config.Config) (*color.Sequence, error) {
	specs := cfg.Fade.Colors
	if cfg.Fade.Script != "" {
		if len(cfg.Fade.Colors) > 0 {
			log.Warn().Str("script", cfg.Fade.Script).Msg("Both fade.colors and fade.script are set, using the script")
		}
		var err error
		specs, err = luart.LoadPalette(context.Background(), cfg.Fade.Script)
		if err != nil {
			return nil, err
		}
	}

	seq, err := color.FromSpecs(specs)
	if err != nil {
		return nil, fmt.Errorf("invalid color sequence: %w", err)
	}
	for i := 0; i < seq.Len(); i++ {
		log.Debug().Int("index", i).Str("color", seq.At(i).String()).Msg("Color loaded")
	}
	return seq, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a fatal error occurs (e.g., max reconnects exceeded).
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	// Subscribers go first so no event published at connect time is missed
	if s.Ledger != nil {
		s.Ledger.Subscribe(s.Bus)
		s.Ledger.Start(ctx)
	}
	s.Fade.Start(ctx)

	s.Device.StartBackground(ctx, onFatalError)
	s.Health.Start(ctx)
	s.Webhook.Start(ctx)

	return nil
}

// Stop gracefully stops all services. The fade is stopped first so the
// restore command reaches the device before its connection is closed.
func (s *Services) Stop() error {
	timeout := s.cfg.ShutdownTimeout.Duration()

	if s.Fade != nil {
		s.Fade.Stop(timeout)
	}
	if s.Device != nil {
		s.Device.Close(timeout)
	}
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
