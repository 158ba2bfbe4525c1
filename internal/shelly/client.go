// Package shelly drives a Shelly Gen2 RGBW device over its WebSocket RPC channel.
package shelly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/rgbwfade/internal/eventbus"
	"github.com/dokzlo13/rgbwfade/internal/input"
)

var (
	// ErrNotConnected is returned by calls made while the RPC channel is down.
	ErrNotConnected = errors.New("shelly: not connected")

	// ErrMaxReconnectsExceeded is returned when the maximum number of reconnect attempts is exceeded.
	ErrMaxReconnectsExceeded = errors.New("shelly: max reconnects exceeded")
)

// Config contains connection settings for a Shelly device.
type Config struct {
	URL           string        // ws://<host>/rpc
	ClientID      string        // src of outgoing frames, notifications are routed to it
	Channel       int           // RGBW component id
	CallTimeout   time.Duration // per call when ctx has no deadline
	MinBackoff    time.Duration
	MaxBackoff    time.Duration
	Multiplier    float64
	MaxReconnects int // 0 = infinite
}

// DefaultConfig returns sensible defaults for host.
func DefaultConfig(host string) Config {
	return Config{
		URL:         fmt.Sprintf("ws://%s/rpc", host),
		ClientID:    "rgbwfade",
		CallTimeout: 5 * time.Second,
		MinBackoff:  1 * time.Second,
		MaxBackoff:  2 * time.Minute,
		Multiplier:  2.0,
	}
}

type response struct {
	result json.RawMessage
	err    error
}

// Client is a Shelly RPC client. Calls are safe for concurrent use.
type Client struct {
	cfg    Config
	dialer websocket.Dialer

	mu      sync.Mutex // guards conn, pending, nextID and writes
	conn    *websocket.Conn
	pending map[int64]chan response
	nextID  int64
}

// NewClient creates a client. Run must be called to connect.
func NewClient(cfg Config) *Client {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = cfg.MinBackoff
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "rgbwfade"
	}

	return &Client{
		cfg:     cfg,
		dialer:  websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		pending: make(map[int64]chan response),
	}
}

// Connected reports whether the RPC channel is up
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Run keeps the RPC channel connected until ctx is cancelled, publishing input
// notifications and connectivity changes to bus.
// Returns ErrMaxReconnectsExceeded if max reconnects is exceeded.
func (c *Client) Run(ctx context.Context, bus *eventbus.Bus) error {
	retryCount := 0
	currentBackoff := c.cfg.MinBackoff

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		connected, err := c.connect(ctx, bus)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			retryCount = 0
			currentBackoff = c.cfg.MinBackoff
		}

		retryCount++
		if c.cfg.MaxReconnects > 0 && retryCount > c.cfg.MaxReconnects {
			log.Error().
				Int("max_reconnects", c.cfg.MaxReconnects).
				Msg("Shelly RPC: max reconnects exceeded, terminating")
			return ErrMaxReconnectsExceeded
		}

		log.Warn().
			Err(err).
			Str("url", c.cfg.URL).
			Dur("backoff", currentBackoff).
			Int("retry", retryCount).
			Msg("Shelly RPC disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(currentBackoff):
		}

		nextBackoff := time.Duration(float64(currentBackoff) * c.cfg.Multiplier)
		if nextBackoff > c.cfg.MaxBackoff {
			nextBackoff = c.cfg.MaxBackoff
		}
		currentBackoff = nextBackoff
	}
}

// connect dials, then reads frames until the connection fails.
// Reports whether the dial succeeded.
func (c *Client) connect(ctx context.Context, bus *eventbus.Bus) (bool, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.conn = conn
	// The device only sends notifications to clients that identified themselves
	// with a request carrying src.
	c.nextID++
	hello := frame{ID: c.nextID, Src: c.cfg.ClientID, Method: MethodGetDeviceInfo}
	err = conn.WriteJSON(hello)
	c.mu.Unlock()

	defer c.disconnect(conn, bus)
	if err != nil {
		return true, fmt.Errorf("send hello: %w", err)
	}

	log.Info().Str("url", c.cfg.URL).Msg("Connected to Shelly RPC")
	publishConnectivity(bus, "connected")

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		c.handleFrame(data, bus)
	}
}

func (c *Client) disconnect(conn *websocket.Conn, bus *eventbus.Bus) {
	conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	pending := c.pending
	c.pending = make(map[int64]chan response)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- response{err: ErrNotConnected}
	}
	publishConnectivity(bus, "disconnected")
}

func (c *Client) handleFrame(data []byte, bus *eventbus.Bus) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Warn().Err(err).Str("data", string(data)).Msg("Failed to parse Shelly frame")
		return
	}

	switch f.Method {
	case "":
		c.resolve(f)
	case MethodNotifyEvent:
		c.handleNotifyEvent(f.Params, bus)
	default:
		log.Trace().Str("method", f.Method).Msg("Unhandled Shelly notification")
	}
}

func (c *Client) resolve(f frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.ID]
	delete(c.pending, f.ID)
	c.mu.Unlock()

	if !ok {
		log.Trace().Int64("id", f.ID).Msg("Shelly response without pending call")
		return
	}

	if f.Error != nil {
		ch <- response{err: f.Error}
		return
	}
	ch <- response{result: f.Result}
}

func (c *Client) handleNotifyEvent(params json.RawMessage, bus *eventbus.Bus) {
	var p notifyEventParams
	if err := json.Unmarshal(params, &p); err != nil {
		log.Warn().Err(err).Msg("Failed to parse NotifyEvent")
		return
	}

	for _, ev := range p.Events {
		at := time.Now()
		if ev.TS > 0 {
			at = time.UnixMilli(int64(ev.TS * 1000))
		}

		log.Debug().
			Str("component", ev.Component).
			Str("event", ev.Event).
			Msg("Input event")

		bus.Publish(eventbus.Event{
			Type:   eventbus.EventTypeInput,
			Source: input.SourceDevice,
			At:     at,
			Payload: input.Event{
				Component: ev.Component,
				Type:      ev.Event,
				Source:    input.SourceDevice,
				At:        at,
			},
		})
	}
}

func publishConnectivity(bus *eventbus.Bus, status string) {
	bus.Publish(eventbus.Event{
		Type:    eventbus.EventTypeConnectivity,
		Source:  input.SourceDevice,
		Payload: status,
	})
}

// Call invokes method with params and decodes the result into result, if non-nil.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal %s params: %w", method, err)
		}
		raw = b
	}

	ch := make(chan response, 1)

	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	}
	err := c.conn.WriteJSON(frame{ID: id, Src: c.cfg.ClientID, Method: method, Params: raw})
	if err != nil {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.err != nil {
			return fmt.Errorf("%s: %w", method, resp.err)
		}
		if result != nil && len(resp.result) > 0 {
			if err := json.Unmarshal(resp.result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
}
