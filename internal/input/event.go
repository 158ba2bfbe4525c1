// Package input describes button events coming from the device or webhooks.
package input

import (
	"fmt"
	"time"
)

// Event types reported by Shelly inputs
const (
	SinglePush = "single_push"
	DoublePush = "double_push"
	LongPush   = "long_push"
	BtnDown    = "btn_down"
	BtnUp      = "btn_up"
)

// Sources
const (
	SourceDevice  = "device"
	SourceWebhook = "webhook"
)

// Event is a single input notification.
type Event struct {
	Component string    `json:"component"` // e.g. "input:0"
	Type      string    `json:"event"`     // e.g. "single_push"
	Source    string    `json:"source"`
	At        time.Time `json:"at"`
}

// String returns a compact representation for logs
func (e Event) String() string {
	return fmt.Sprintf("%s/%s", e.Component, e.Type)
}
