package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/rgbwfade/internal/config"
	"github.com/dokzlo13/rgbwfade/internal/db"
	"github.com/dokzlo13/rgbwfade/internal/eventbus"
	"github.com/dokzlo13/rgbwfade/internal/fade"
	"github.com/dokzlo13/rgbwfade/internal/input"
	"github.com/dokzlo13/rgbwfade/internal/ledger"
)

// LedgerService records bus events in the event ledger and enforces retention.
type LedgerService struct {
	cfg    *config.Config
	Ledger *ledger.Ledger
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(cfg *config.Config, database *db.DB) *LedgerService {
	return &LedgerService{
		cfg:    cfg,
		Ledger: ledger.New(database.DB),
	}
}

// Subscribe registers the ledger writers on the bus
func (s *LedgerService) Subscribe(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeInput, s.recordInput)
	bus.Subscribe(eventbus.EventTypeFade, s.recordFade)
	bus.Subscribe(eventbus.EventTypePower, s.recordPower)
	bus.Subscribe(eventbus.EventTypeConnectivity, s.recordConnectivity)
}

// Start begins periodic cleanup.
func (s *LedgerService) Start(ctx context.Context) {
	go s.runCleanup(ctx)
}

func (s *LedgerService) recordInput(ev eventbus.Event) {
	in, ok := ev.Payload.(input.Event)
	if !ok {
		return
	}
	s.append(ev.At, ledger.EventInputReceived, "", in.Source, map[string]any{
		"component": in.Component,
		"event":     in.Type,
	})
}

func (s *LedgerService) recordFade(ev eventbus.Event) {
	fe, ok := ev.Payload.(fade.Event)
	if !ok {
		return
	}

	switch fe.Kind {
	case fade.EventRunStarted:
		payload := map[string]any{
			"index":             fe.Index,
			"baseline_captured": fe.BaselineCaptured,
		}
		if fe.BaselineCaptured {
			payload["baseline"] = map[string]any{
				"on":         fe.Baseline.On,
				"rgb":        fe.Baseline.RGB,
				"white":      fe.Baseline.White,
				"brightness": fe.Baseline.Brightness,
			}
		}
		s.append(fe.At, ledger.EventFadeStarted, fe.RunID, ev.Source, payload)
	case fade.EventRunStopped:
		s.append(fe.At, ledger.EventFadeStopped, fe.RunID, ev.Source, map[string]any{
			"index":    fe.Index,
			"restored": fe.Restored,
		})
	}
}

func (s *LedgerService) recordPower(ev eventbus.Event) {
	p, ok := ev.Payload.(PowerToggled)
	if !ok {
		return
	}
	s.append(ev.At, ledger.EventPowerToggled, p.RunID, ev.Source, map[string]any{
		"component": p.Input.Component,
	})
}

func (s *LedgerService) recordConnectivity(ev eventbus.Event) {
	status, _ := ev.Payload.(string)
	s.append(ev.At, ledger.EventDeviceConnectivity, "", ev.Source, map[string]any{
		"status": status,
	})
}

func (s *LedgerService) append(at time.Time, eventType ledger.EventType, runID, source string, payload map[string]any) {
	if at.IsZero() {
		at = time.Now()
	}
	if err := s.Ledger.AppendAt(at, eventType, runID, source, payload); err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to record ledger event")
	}
}

// runCleanup periodically cleans up old ledger entries.
func (s *LedgerService) runCleanup(ctx context.Context) {
	retention := s.cfg.Ledger.Retention()
	interval := s.cfg.Ledger.CleanupInterval.Duration()
	if interval <= 0 {
		log.Warn().Dur("interval", interval).Msg("Ledger cleanup disabled, interval must be positive")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.Ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}
