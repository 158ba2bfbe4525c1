// Package webhook exposes an HTTP endpoint that injects input events, so
// Shelly actions or other automation systems can press virtual buttons.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/rgbwfade/internal/eventbus"
	"github.com/dokzlo13/rgbwfade/internal/input"
)

// Server is an HTTP server that receives input webhooks and publishes them to the bus.
type Server struct {
	addr       string
	bus        *eventbus.Bus
	httpServer *http.Server
}

// NewServer creates a new webhook server listening on addr.
func NewServer(addr string, bus *eventbus.Bus) *Server {
	return &Server{
		addr: addr,
		bus:  bus,
	}
}

// Handler returns the webhook routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /input/{component}", s.handleInput)
	mux.HandleFunc("POST /input/{component}", s.handleInput)
	return mux
}

// Run starts the webhook server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting webhook server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Webhook server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

type inputResponse struct {
	Status string      `json:"status"`
	Input  input.Event `json:"input"`
}

// handleInput publishes /input/{component}?event=<type> as an input event.
// The event type defaults to single_push.
func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	ev := input.Event{
		Component: r.PathValue("component"),
		Type:      r.URL.Query().Get("event"),
		Source:    input.SourceWebhook,
		At:        time.Now(),
	}
	if ev.Type == "" {
		ev.Type = input.SinglePush
	}

	log.Debug().
		Str("method", r.Method).
		Str("component", ev.Component).
		Str("event", ev.Type).
		Str("remote", r.RemoteAddr).
		Msg("Received input webhook")

	queued := s.bus.Publish(eventbus.Event{
		Type:    eventbus.EventTypeInput,
		Source:  input.SourceWebhook,
		At:      ev.At,
		Payload: ev,
	})

	w.Header().Set("Content-Type", "application/json")
	resp := inputResponse{Status: "accepted", Input: ev}
	if queued == 0 {
		resp.Status = "dropped"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusAccepted)
	}
	json.NewEncoder(w).Encode(resp)
}
