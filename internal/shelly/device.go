package shelly

import (
	"context"

	"github.com/dokzlo13/rgbwfade/internal/device"
)

// SetColor calls RGBW.Set on the configured channel
func (c *Client) SetColor(ctx context.Context, cmd device.Command) error {
	return c.Call(ctx, MethodRGBWSet, rgbwSetParams{
		ID:         c.cfg.Channel,
		On:         cmd.On,
		RGB:        cmd.RGB,
		White:      cmd.White,
		Brightness: cmd.Brightness,
	}, nil)
}

// GetStatus calls RGBW.GetStatus on the configured channel
func (c *Client) GetStatus(ctx context.Context) (device.Status, error) {
	var st rgbwStatus
	if err := c.Call(ctx, MethodRGBWGetStatus, rgbwIDParams{ID: c.cfg.Channel}, &st); err != nil {
		return device.Status{}, err
	}
	return device.Status{
		On:         st.Output,
		RGB:        st.RGB,
		White:      st.White,
		Brightness: st.Brightness,
	}, nil
}

// TogglePower calls RGBW.Toggle on the configured channel
func (c *Client) TogglePower(ctx context.Context) error {
	return c.Call(ctx, MethodRGBWToggle, rgbwIDParams{ID: c.cfg.Channel}, nil)
}

var _ device.Device = (*Client)(nil)
