// Package device defines the device command sink consumed by the fade controller.
package device

import (
	"context"
	"fmt"
)

// Command sets the light output.
type Command struct {
	On         bool
	RGB        [3]int
	White      int
	Brightness int // percent
}

// String returns a compact representation for logs
func (c Command) String() string {
	return fmt.Sprintf("on=%t rgb=%v white=%d brightness=%d", c.On, c.RGB, c.White, c.Brightness)
}

// Status is the light output as reported by the device.
type Status struct {
	On         bool   `json:"on"`
	RGB        [3]int `json:"rgb"`
	White      int    `json:"white"`
	Brightness int    `json:"brightness"`
}

// Command returns the command that re-applies this status with the output on.
func (s Status) Command() Command {
	return Command{
		On:         true,
		RGB:        s.RGB,
		White:      s.White,
		Brightness: s.Brightness,
	}
}

// Device is implemented by drivers talking to a physical light.
type Device interface {
	SetColor(ctx context.Context, cmd Command) error
	GetStatus(ctx context.Context) (Status, error)
	TogglePower(ctx context.Context) error
}
