// Package color defines fade targets, the color sequence and linear interpolation.
package color

import (
	"errors"
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Channel defaults applied when a target leaves gain or white unset.
const (
	DefaultGain  = 100
	DefaultWhite = 0
)

// ErrEmptySequence is returned when a sequence has no targets.
var ErrEmptySequence = errors.New("color sequence is empty")

// Target is a resolved color definition. Values are immutable once built.
type Target struct {
	R, G, B int
	Gain    int // brightness percent
	White   int
}

// String returns a compact representation for logs
func (t Target) String() string {
	return fmt.Sprintf("rgb(%d,%d,%d) gain=%d white=%d", t.R, t.G, t.B, t.Gain, t.White)
}

// Spec is a color definition as written in configuration or a palette script.
// Gain and White are optional; Hex, when set, takes precedence over R/G/B.
type Spec struct {
	Name  string `yaml:"name,omitempty"`
	Hex   string `yaml:"hex,omitempty"`
	R     int    `yaml:"r"`
	G     int    `yaml:"g"`
	B     int    `yaml:"b"`
	Gain  *int   `yaml:"gain,omitempty"`
	White *int   `yaml:"white,omitempty"`
}

// Resolve validates the spec and fills defaults.
func (s Spec) Resolve() (Target, error) {
	t := Target{R: s.R, G: s.G, B: s.B, Gain: DefaultGain, White: DefaultWhite}

	if s.Hex != "" {
		c, err := colorful.Hex(s.Hex)
		if err != nil {
			return Target{}, fmt.Errorf("invalid hex color %q: %w", s.Hex, err)
		}
		r, g, b := c.RGB255()
		t.R, t.G, t.B = int(r), int(g), int(b)
	}

	// A zero gain falls back to the default, same as an unset one.
	if s.Gain != nil && *s.Gain != 0 {
		t.Gain = *s.Gain
	}
	if s.White != nil {
		t.White = *s.White
	}

	channels := []struct {
		name  string
		value int
	}{{"r", t.R}, {"g", t.G}, {"b", t.B}, {"white", t.White}}
	for _, ch := range channels {
		if ch.value < 0 || ch.value > 255 {
			return Target{}, fmt.Errorf("channel %s out of range [0,255]: %d", ch.name, ch.value)
		}
	}
	if t.Gain < 0 || t.Gain > 100 {
		return Target{}, fmt.Errorf("gain out of range [0,100]: %d", t.Gain)
	}

	return t, nil
}

// Interpolate returns the color at step out of total between from and to.
// RGB channels are linearly interpolated and rounded; gain and white come from to.
// total must be positive.
func Interpolate(from, to Target, step, total int) Target {
	return Target{
		R:     lerp(from.R, to.R, step, total),
		G:     lerp(from.G, to.G, step, total),
		B:     lerp(from.B, to.B, step, total),
		Gain:  to.Gain,
		White: to.White,
	}
}

func lerp(from, to, step, total int) int {
	return int(math.Round(float64(from) + float64(to-from)*float64(step)/float64(total)))
}
