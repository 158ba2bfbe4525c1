package hue

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/rgbwfade/internal/eventbus"
	"github.com/dokzlo13/rgbwfade/internal/input"
)

// ErrMaxReconnectsExceeded is returned when the maximum number of reconnect attempts is exceeded.
var ErrMaxReconnectsExceeded = errors.New("max reconnects exceeded")

// EventStreamConfig contains configuration for event stream reconnection.
type EventStreamConfig struct {
	MinBackoff    time.Duration // Minimum backoff between reconnects
	MaxBackoff    time.Duration // Maximum backoff between reconnects
	Multiplier    float64       // Backoff multiplier
	MaxReconnects int           // Max reconnect attempts, 0 = infinite
}

// DefaultEventStreamConfig returns sensible defaults for event stream configuration.
func DefaultEventStreamConfig() EventStreamConfig {
	return EventStreamConfig{
		MinBackoff:    1 * time.Second,
		MaxBackoff:    2 * time.Minute,
		Multiplier:    2.0,
		MaxReconnects: 0,
	}
}

// EventStream listens to the bridge event stream (SSE) and publishes switch
// button reports as input events. The button resource ID is the component name.
type EventStream struct {
	url        string
	token      string
	httpClient *http.Client
	config     EventStreamConfig
}

// NewEventStream creates an event stream listener for the bridge at address
func NewEventStream(address, token string, config EventStreamConfig) *EventStream {
	transport := &http.Transport{
		// The bridge uses a self-signed certificate
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}

	return &EventStream{
		url:   fmt.Sprintf("https://%s/eventstream/clip/v2", address),
		token: token,
		httpClient: &http.Client{
			Transport: transport,
		},
		config: config,
	}
}

// Run starts listening to the event stream with automatic reconnection.
// Returns ErrMaxReconnectsExceeded if max reconnects is exceeded.
func (e *EventStream) Run(ctx context.Context, bus *eventbus.Bus) error {
	retryCount := 0
	currentBackoff := e.config.MinBackoff

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := e.connect(ctx, bus)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			// Clean end of stream, the bridge closed it
			retryCount = 0
			currentBackoff = e.config.MinBackoff
			continue
		}

		retryCount++
		if e.config.MaxReconnects > 0 && retryCount > e.config.MaxReconnects {
			log.Error().
				Int("max_reconnects", e.config.MaxReconnects).
				Msg("Hue event stream: max reconnects exceeded, terminating")
			return ErrMaxReconnectsExceeded
		}

		log.Warn().
			Err(err).
			Dur("backoff", currentBackoff).
			Int("retry", retryCount).
			Int("max_reconnects", e.config.MaxReconnects).
			Msg("Hue event stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(currentBackoff):
		}

		nextBackoff := time.Duration(float64(currentBackoff) * e.config.Multiplier)
		if nextBackoff > e.config.MaxBackoff {
			nextBackoff = e.config.MaxBackoff
		}
		currentBackoff = nextBackoff
	}
}

func (e *EventStream) connect(ctx context.Context, bus *eventbus.Bus) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url, nil)
	if err != nil {
		return err
	}

	req.Header.Set("hue-application-key", e.token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	log.Info().Msg("Connected to Hue event stream")
	bus.Publish(eventbus.Event{Type: eventbus.EventTypeConnectivity, Source: "hue", Payload: "connected"})

	scanner := bufio.NewScanner(resp.Body)
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			// Empty line marks end of event
			if data.Len() > 0 {
				e.processEvent(data.String(), bus)
				data.Reset()
			}
		case strings.HasPrefix(line, "data: "):
			data.WriteString(strings.TrimPrefix(line, "data: "))
		}
	}

	return scanner.Err()
}

type sseEvent struct {
	Type string        `json:"type"`
	Data []sseResource `json:"data"`
}

type sseResource struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Button *struct {
		ButtonReport *struct {
			Event   string    `json:"event"`
			Updated time.Time `json:"updated"`
		} `json:"button_report"`
		LastEvent string `json:"last_event"`
	} `json:"button"`
}

func (e *EventStream) processEvent(data string, bus *eventbus.Bus) {
	var events []sseEvent
	if err := json.Unmarshal([]byte(data), &events); err != nil {
		log.Warn().Err(err).Str("data", data).Msg("Failed to parse Hue event")
		return
	}

	for _, ev := range events {
		for _, res := range ev.Data {
			if res.Type != "button" || res.Button == nil {
				continue
			}
			e.handleButton(res, bus)
		}
	}
}

func (e *EventStream) handleButton(res sseResource, bus *eventbus.Bus) {
	action := res.Button.LastEvent
	at := time.Now()
	if report := res.Button.ButtonReport; report != nil {
		action = report.Event
		if !report.Updated.IsZero() {
			at = report.Updated
		}
	}
	if action == "" {
		return
	}

	log.Debug().
		Str("id", res.ID).
		Str("action", action).
		Msg("Hue button event")

	bus.Publish(eventbus.Event{
		Type:   eventbus.EventTypeInput,
		Source: "hue",
		At:     at,
		Payload: input.Event{
			Component: res.ID,
			Type:      action,
			Source:    input.SourceDevice,
			At:        at,
		},
	})
}
