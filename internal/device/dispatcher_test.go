package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type recordingDevice struct {
	mu      sync.Mutex
	calls   []string
	colors  []Command
	status  Status
	failSet bool
	block   chan struct{}
}

func (d *recordingDevice) SetColor(ctx context.Context, cmd Command) error {
	if d.block != nil {
		<-d.block
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "set")
	d.colors = append(d.colors, cmd)
	if d.failSet {
		return errors.New("device unreachable")
	}
	return nil
}

func (d *recordingDevice) GetStatus(ctx context.Context) (Status, error) {
	return d.status, nil
}

func (d *recordingDevice) TogglePower(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "toggle")
	return nil
}

func (d *recordingDevice) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func TestDispatcher_SendsInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	dev := &recordingDevice{}
	d := NewDispatcher(dev, DispatcherConfig{RateLimitRPS: 1000})

	d.SetColor(Command{On: true, RGB: [3]int{1, 2, 3}, Brightness: 100})
	d.TogglePower()
	d.SetColor(Command{On: true, RGB: [3]int{4, 5, 6}, Brightness: 50})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d.Close(ctx)

	want := []string{"set", "toggle", "set"}
	got := dev.snapshot()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if dev.colors[1].RGB != [3]int{4, 5, 6} {
		t.Errorf("second color = %v, want [4 5 6]", dev.colors[1].RGB)
	}
}

func TestDispatcher_AbsorbsDeviceErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	dev := &recordingDevice{failSet: true}
	d := NewDispatcher(dev, DispatcherConfig{RateLimitRPS: 1000})

	d.SetColor(Command{On: true})
	d.SetColor(Command{On: true})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d.Close(ctx)

	if got := len(dev.snapshot()); got != 2 {
		t.Errorf("calls = %d, want 2 (failures must not stop the sender)", got)
	}
}

func TestDispatcher_GetStatusIsSynchronous(t *testing.T) {
	defer goleak.VerifyNone(t)

	want := Status{On: true, RGB: [3]int{10, 20, 30}, White: 5, Brightness: 70}
	dev := &recordingDevice{status: want}
	d := NewDispatcher(dev, DispatcherConfig{})
	defer d.Close(context.Background())

	got, err := d.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if got != want {
		t.Errorf("GetStatus() = %+v, want %+v", got, want)
	}
}

func TestDispatcher_CoalescesFrames(t *testing.T) {
	defer goleak.VerifyNone(t)

	dev := &recordingDevice{block: make(chan struct{})}
	d := NewDispatcher(dev, DispatcherConfig{QueueSize: 1, RateLimitRPS: 1000})

	// The first frame is picked up by the sender and blocks; the rest collapse
	// into the latest one.
	d.SetFrame(Command{RGB: [3]int{1}})
	time.Sleep(20 * time.Millisecond)
	for i := 2; i <= 50; i++ {
		d.SetFrame(Command{RGB: [3]int{i}})
	}

	close(dev.block)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d.Close(ctx)

	if got := len(dev.colors); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
	if got := dev.colors[1].RGB[0]; got != 50 {
		t.Errorf("last frame = %d, want 50", got)
	}
}

func TestDispatcher_SetColorDiscardsPendingFrame(t *testing.T) {
	defer goleak.VerifyNone(t)

	dev := &recordingDevice{block: make(chan struct{})}
	d := NewDispatcher(dev, DispatcherConfig{RateLimitRPS: 1000})

	d.SetFrame(Command{RGB: [3]int{1}})
	time.Sleep(20 * time.Millisecond)
	d.SetFrame(Command{RGB: [3]int{2}})
	d.SetColor(Command{On: true, RGB: [3]int{9, 9, 9}})

	close(dev.block)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d.Close(ctx)

	if got := len(dev.colors); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
	if got := dev.colors[1].RGB; got != [3]int{9, 9, 9} {
		t.Errorf("last command = %v, want [9 9 9]", got)
	}
}

func TestDispatcher_CommandsAreNeverDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	dev := &recordingDevice{block: make(chan struct{})}
	d := NewDispatcher(dev, DispatcherConfig{QueueSize: 1, RateLimitRPS: 1000})

	d.SetColor(Command{RGB: [3]int{1}})
	time.Sleep(20 * time.Millisecond)

	// The queue holds one command, so the producer has to wait for the sender.
	enqueued := make(chan struct{})
	go func() {
		defer close(enqueued)
		d.SetColor(Command{RGB: [3]int{2}})
		d.SetColor(Command{RGB: [3]int{3}})
		d.TogglePower()
	}()

	select {
	case <-enqueued:
		t.Fatal("producer returned while the queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	close(dev.block)
	<-enqueued

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d.Close(ctx)

	want := []string{"set", "set", "set", "toggle"}
	got := dev.snapshot()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDispatcher_DropsAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	dev := &recordingDevice{}
	d := NewDispatcher(dev, DispatcherConfig{RateLimitRPS: 1000})
	d.Close(context.Background())

	d.SetColor(Command{RGB: [3]int{1}})
	d.SetFrame(Command{RGB: [3]int{2}})
	d.TogglePower()

	if got := len(dev.snapshot()); got != 0 {
		t.Errorf("calls = %d, want 0", got)
	}
}

func TestStatusCommand(t *testing.T) {
	s := Status{On: false, RGB: [3]int{1, 2, 3}, White: 4, Brightness: 5}
	want := Command{On: true, RGB: [3]int{1, 2, 3}, White: 4, Brightness: 5}
	if got := s.Command(); got != want {
		t.Errorf("Command() = %+v, want %+v", got, want)
	}
}
