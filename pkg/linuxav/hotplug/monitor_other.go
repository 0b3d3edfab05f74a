//go:build !linux

package hotplug

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("hotplug: uevents are only available on linux")

// Monitor is unavailable on this platform.
type Monitor struct{}

// NewMonitor always fails on this platform.
func NewMonitor(...string) (*Monitor, error) {
	return nil, errUnsupported
}

// Close does nothing.
func (m *Monitor) Close() error { return nil }

// Run closes out and fails.
func (m *Monitor) Run(_ context.Context, out chan<- Event) error {
	close(out)
	return errUnsupported
}
