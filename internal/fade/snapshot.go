package fade

import (
	"github.com/dokzlo13/rgbwfade/internal/device"
)

// Snapshot holds the device state captured before a fade run.
// It is written by Capture and consumed once by Restore.
type Snapshot struct {
	dev    Device
	status device.Status
	valid  bool
}

// NewSnapshot creates an empty snapshot bound to a device
func NewSnapshot(dev Device) *Snapshot {
	return &Snapshot{dev: dev}
}

// Capture reads the device status and stores it as the baseline, overwriting any previous one.
func (s *Snapshot) Capture() error {
	status, err := s.dev.GetStatus()
	if err != nil {
		s.valid = false
		return err
	}
	s.status = status
	s.valid = true
	return nil
}

// Restore turns the device on with the captured baseline.
// Returns false if there is nothing to restore.
func (s *Snapshot) Restore() bool {
	if !s.valid {
		return false
	}
	s.dev.SetColor(s.status.Command())
	s.valid = false
	return true
}

// Status returns the captured baseline and whether it is set
func (s *Snapshot) Status() (device.Status, bool) {
	return s.status, s.valid
}
