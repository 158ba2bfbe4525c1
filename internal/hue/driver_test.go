package hue

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/amimof/huego"

	"github.com/dokzlo13/rgbwfade/internal/device"
)

// fakeBridge records state writes and blocks until ctx is done when hang is set.
type fakeBridge struct {
	state  huego.State
	writes []huego.State
	hang   bool
}

func (b *fakeBridge) GetLightContext(ctx context.Context, id int) (*huego.Light, error) {
	if b.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	st := b.state
	return &huego.Light{ID: id, State: &st}, nil
}

func (b *fakeBridge) SetLightStateContext(ctx context.Context, id int, state huego.State) (*huego.Response, error) {
	if b.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	b.writes = append(b.writes, state)
	b.state.On = state.On
	return &huego.Response{}, nil
}

func TestStateFromCommand(t *testing.T) {
	tests := []struct {
		name  string
		cmd   device.Command
		wantX float32
		wantY float32
		bri   uint8
	}{
		{
			name:  "full red",
			cmd:   device.Command{On: true, RGB: [3]int{255, 0, 0}, Brightness: 100},
			wantX: 0.64, wantY: 0.33, bri: 254,
		},
		{
			name:  "full green",
			cmd:   device.Command{On: true, RGB: [3]int{0, 255, 0}, Brightness: 100},
			wantX: 0.30, wantY: 0.60, bri: 254,
		},
		{
			name:  "half gain blue",
			cmd:   device.Command{On: true, RGB: [3]int{0, 0, 255}, Brightness: 50},
			wantX: 0.15, wantY: 0.06, bri: 127,
		},
		{
			name:  "white",
			cmd:   device.Command{On: true, RGB: [3]int{255, 255, 255}, Brightness: 100},
			wantX: 0.3127, wantY: 0.3290, bri: 254,
		},
		{
			name:  "black keeps minimum brightness",
			cmd:   device.Command{On: true, Brightness: 100},
			wantX: 0.3127, wantY: 0.3290, bri: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StateFromCommand(tt.cmd)
			if len(got.Xy) != 2 {
				t.Fatalf("Xy = %v, want two values", got.Xy)
			}
			if math.Abs(float64(got.Xy[0]-tt.wantX)) > 0.001 || math.Abs(float64(got.Xy[1]-tt.wantY)) > 0.001 {
				t.Errorf("Xy = %v, want [%v %v]", got.Xy, tt.wantX, tt.wantY)
			}
			if got.Bri != tt.bri {
				t.Errorf("Bri = %d, want %d", got.Bri, tt.bri)
			}
			if got.On != tt.cmd.On {
				t.Errorf("On = %t, want %t", got.On, tt.cmd.On)
			}
		})
	}
}

func TestStateFromCommand_RequestCarriesColor(t *testing.T) {
	tests := []struct {
		name string
		rgb  [3]int
	}{
		{"red", [3]int{200, 0, 0}},
		{"grey", [3]int{200, 200, 200}},
		{"white", [3]int{255, 255, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(StateFromCommand(device.Command{On: true, RGB: tt.rgb, Brightness: 100}))
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}

			var body map[string]any
			if err := json.Unmarshal(data, &body); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			xy, ok := body["xy"].([]any)
			if !ok || len(xy) != 2 {
				t.Errorf("request %s has no xy color", data)
			}
			if _, ok := body["bri"]; !ok {
				t.Errorf("request %s has no bri", data)
			}
		})
	}
}

func TestStatusFromState(t *testing.T) {
	tests := []struct {
		name  string
		state huego.State
		want  device.Status
	}{
		{
			name:  "hue/sat mode",
			state: huego.State{On: true, Hue: 43690, Sat: 254, Bri: 127, ColorMode: "hs"},
			want:  device.Status{On: true, RGB: [3]int{0, 0, 255}, Brightness: 50},
		},
		{
			name:  "xy mode red",
			state: huego.State{On: true, Xy: []float32{0.64, 0.33}, Bri: 254, ColorMode: "xy"},
			want:  device.Status{On: true, RGB: [3]int{255, 0, 0}, Brightness: 100},
		},
		{
			name:  "xy mode white",
			state: huego.State{On: false, Xy: []float32{0.3127, 0.3290}, Bri: 127, ColorMode: "xy"},
			want:  device.Status{On: false, RGB: [3]int{255, 255, 255}, Brightness: 50},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StatusFromState(tt.state)
			if got != tt.want {
				t.Errorf("StatusFromState() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStatusRoundTrip(t *testing.T) {
	tests := []device.Command{
		{On: true, RGB: [3]int{255, 0, 0}, Brightness: 80},
		{On: true, RGB: [3]int{255, 255, 255}, Brightness: 100},
		{On: true, RGB: [3]int{0, 255, 0}, Brightness: 40},
	}

	for _, cmd := range tests {
		st := StateFromCommand(cmd)
		st.ColorMode = "xy"

		got := StatusFromState(st)
		if got.RGB != cmd.RGB {
			t.Errorf("RGB = %v, want %v", got.RGB, cmd.RGB)
		}
		if got.Brightness != cmd.Brightness {
			t.Errorf("Brightness = %d, want %d", got.Brightness, cmd.Brightness)
		}
	}
}

func TestDriver_SetColorWritesState(t *testing.T) {
	bridge := &fakeBridge{}
	d := NewDriverWithBridge(bridge, 3)

	if err := d.SetColor(context.Background(), device.Command{On: true, RGB: [3]int{255, 0, 0}, Brightness: 100}); err != nil {
		t.Fatalf("SetColor() error = %v", err)
	}

	if len(bridge.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(bridge.writes))
	}
	if w := bridge.writes[0]; !w.On || len(w.Xy) != 2 || w.Bri != 254 {
		t.Errorf("write = %+v, want on with xy and bri 254", w)
	}
}

func TestDriver_TogglePower(t *testing.T) {
	bridge := &fakeBridge{state: huego.State{On: true}}
	d := NewDriverWithBridge(bridge, 3)

	for _, want := range []bool{false, true} {
		if err := d.TogglePower(context.Background()); err != nil {
			t.Fatalf("TogglePower() error = %v", err)
		}
		if bridge.state.On != want {
			t.Errorf("On = %t, want %t", bridge.state.On, want)
		}
	}
}

func TestDriver_HonorsDeadline(t *testing.T) {
	d := NewDriverWithBridge(&fakeBridge{hang: true}, 3)

	calls := map[string]func(context.Context) error{
		"SetColor": func(ctx context.Context) error {
			return d.SetColor(ctx, device.Command{On: true, Brightness: 100})
		},
		"GetStatus": func(ctx context.Context) error {
			_, err := d.GetStatus(ctx)
			return err
		},
		"TogglePower": d.TogglePower,
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()

			done := make(chan error, 1)
			go func() { done <- call(ctx) }()

			select {
			case err := <-done:
				if !errors.Is(err, context.DeadlineExceeded) {
					t.Errorf("%s() error = %v, want deadline exceeded", name, err)
				}
			case <-time.After(time.Second):
				t.Fatalf("%s() did not return after its deadline", name)
			}
		})
	}
}
