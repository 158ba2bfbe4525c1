package hue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dokzlo13/rgbwfade/internal/eventbus"
	"github.com/dokzlo13/rgbwfade/internal/input"
)

const buttonEvent = `[{"type":"update","data":[` +
	`{"id":"3f4ac4e9-d67a-4dbd-8a16-5ea7e373f281","type":"button",` +
	`"button":{"button_report":{"event":"short_release","updated":"2024-05-01T10:00:00.000Z"},"last_event":"short_release"}},` +
	`{"id":"light-1","type":"light","on":{"on":true}}]}]`

func TestEventStream_PublishesButtons(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/eventstream/clip/v2" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("hue-application-key"); got != "secret" {
			t.Errorf("hue-application-key = %q, want secret", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": hi\n\n")
		fmt.Fprintf(w, "id: 1:0\ndata: %s\n\n", buttonEvent)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	bus := eventbus.New()
	defer bus.Close(context.Background())
	got := make(chan input.Event, 1)
	bus.Subscribe(eventbus.EventTypeInput, func(e eventbus.Event) {
		got <- e.Payload.(input.Event)
	})

	stream := NewEventStream(strings.TrimPrefix(srv.URL, "https://"), "secret", DefaultEventStreamConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx, bus) }()

	select {
	case ev := <-got:
		if ev.Component != "3f4ac4e9-d67a-4dbd-8a16-5ea7e373f281" || ev.Type != "short_release" {
			t.Errorf("input = %v, want button short_release", ev)
		}
		want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		if !ev.At.Equal(want) {
			t.Errorf("At = %v, want %v", ev.At, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no input event published")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestEventStream_MaxReconnects(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	bus := eventbus.New()
	defer bus.Close(context.Background())

	stream := NewEventStream(strings.TrimPrefix(srv.URL, "https://"), "bad", EventStreamConfig{
		MinBackoff:    time.Millisecond,
		MaxBackoff:    2 * time.Millisecond,
		Multiplier:    2,
		MaxReconnects: 2,
	})

	err := stream.Run(context.Background(), bus)
	if !errors.Is(err, ErrMaxReconnectsExceeded) {
		t.Errorf("Run() error = %v, want %v", err, ErrMaxReconnectsExceeded)
	}
}
