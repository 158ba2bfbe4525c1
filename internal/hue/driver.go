// Package hue drives a single Philips Hue light through a bridge and listens
// to the bridge event stream for switch presses.
package hue

import (
	"context"
	"fmt"
	"math"

	"github.com/amimof/huego"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/rgbwfade/internal/device"
)

// Hue API ranges
const (
	maxBri = 254
	maxSat = 254
	maxHue = 65535
)

// Bridge is the subset of *huego.Bridge the driver needs.
type Bridge interface {
	GetLightContext(ctx context.Context, id int) (*huego.Light, error)
	SetLightStateContext(ctx context.Context, id int, state huego.State) (*huego.Response, error)
}

// Driver implements device.Device for one Hue light. The Hue API has no white
// channel, so White is ignored on writes and reported as 0.
type Driver struct {
	bridge  Bridge
	lightID int
}

// NewDriver creates a driver for lightID on the bridge at host.
func NewDriver(host, user string, lightID int) *Driver {
	return NewDriverWithBridge(huego.New(host, user), lightID)
}

// NewDriverWithBridge creates a driver using an existing bridge
func NewDriverWithBridge(bridge Bridge, lightID int) *Driver {
	return &Driver{bridge: bridge, lightID: lightID}
}

func (d *Driver) light(ctx context.Context) (*huego.Light, error) {
	light, err := d.bridge.GetLightContext(ctx, d.lightID)
	if err != nil {
		return nil, fmt.Errorf("get light %d: %w", d.lightID, err)
	}
	return light, nil
}

func (d *Driver) setState(ctx context.Context, state huego.State) error {
	if _, err := d.bridge.SetLightStateContext(ctx, d.lightID, state); err != nil {
		return fmt.Errorf("set light %d state: %w", d.lightID, err)
	}
	return nil
}

// SetColor applies cmd as xy chromaticity and brightness
func (d *Driver) SetColor(ctx context.Context, cmd device.Command) error {
	state := StateFromCommand(cmd)
	if err := d.setState(ctx, state); err != nil {
		return err
	}

	log.Trace().
		Int("light", d.lightID).
		Float32("x", state.Xy[0]).
		Float32("y", state.Xy[1]).
		Uint8("bri", state.Bri).
		Msg("Hue light state set")
	return nil
}

// GetStatus reads the light and converts its color back to RGB
func (d *Driver) GetStatus(ctx context.Context) (device.Status, error) {
	light, err := d.light(ctx)
	if err != nil {
		return device.Status{}, err
	}
	if light.State == nil {
		return device.Status{}, fmt.Errorf("light %d has no state", d.lightID)
	}
	return StatusFromState(*light.State), nil
}

// TogglePower turns the light off if it is on and on otherwise
func (d *Driver) TogglePower(ctx context.Context) error {
	light, err := d.light(ctx)
	if err != nil {
		return err
	}

	on := light.State == nil || !light.State.On
	if err := d.setState(ctx, huego.State{On: on}); err != nil {
		return fmt.Errorf("toggle light %d: %w", d.lightID, err)
	}
	return nil
}

// StateFromCommand converts an RGB command to a Hue state. The color is sent
// as CIE xy, which the bridge always receives (hue 0 and sat 0 would be
// omitted from the request). The RGB value scales the brightness percentage.
func StateFromCommand(cmd device.Command) huego.State {
	c := colorful.Color{
		R: float64(clamp(cmd.RGB[0], 0, 255)) / 255,
		G: float64(clamp(cmd.RGB[1], 0, 255)) / 255,
		B: float64(clamp(cmd.RGB[2], 0, 255)) / 255,
	}
	_, _, v := c.Hsv()
	x, y, _ := c.Xyy()

	bri := int(math.Round(v * float64(clamp(cmd.Brightness, 0, 100)) / 100 * maxBri))

	return huego.State{
		On:  cmd.On,
		Xy:  []float32{float32(x), float32(y)},
		Bri: uint8(clamp(bri, 1, maxBri)),
	}
}

// StatusFromState converts a Hue state to a status with full-value RGB.
// The xy pair is used when the light reports xy color mode, hue/sat otherwise.
func StatusFromState(st huego.State) device.Status {
	var r, g, b uint8
	if st.ColorMode == "xy" && len(st.Xy) == 2 {
		r, g, b = rgbFromXy(float64(st.Xy[0]), float64(st.Xy[1]))
	} else {
		c := colorful.Hsv(float64(st.Hue)/maxHue*360, float64(st.Sat)/maxSat, 1)
		r, g, b = c.Clamped().RGB255()
	}

	return device.Status{
		On:         st.On,
		RGB:        [3]int{int(r), int(g), int(b)},
		White:      0,
		Brightness: int(math.Round(float64(st.Bri) / maxBri * 100)),
	}
}

// rgbFromXy returns the full-value sRGB color with chromaticity x, y.
func rgbFromXy(x, y float64) (uint8, uint8, uint8) {
	lr, lg, lb := colorful.XyzToLinearRgb(colorful.XyyToXyz(x, y, 1))
	lr, lg, lb = math.Max(lr, 0), math.Max(lg, 0), math.Max(lb, 0)

	peak := math.Max(lr, math.Max(lg, lb))
	if peak == 0 {
		return 255, 255, 255
	}
	return colorful.LinearRgb(lr/peak, lg/peak, lb/peak).Clamped().RGB255()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var _ device.Device = (*Driver)(nil)
var _ Bridge = (*huego.Bridge)(nil)
