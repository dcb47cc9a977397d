// Package storage holds presentation state for bulbs: the metric paths a
// device publishes after each command.
package storage

import (
	"github.com/dokzlo13/kl130d/internal/bulb"
)

// Metrics is a per-device metric store.
type Metrics interface {
	Set(device, path string, value any) error
	Get(device, path string) (any, error)
	Snapshot(device string) (map[string]any, error)
	// Version is the number of writes to (device, path), 0 if never set.
	Version(device, path string) (int64, error)
	Clear(device string) error
}

// Scope binds a Metrics store to one device so it can be used as a bulb.Sink.
type Scope struct {
	metrics Metrics
	device  string
}

var _ bulb.Sink = (*Scope)(nil)

// Device returns a sink that writes under device.
func Device(m Metrics, device string) *Scope {
	return &Scope{metrics: m, device: device}
}

// Set stores value under path.
func (s *Scope) Set(path string, value any) error {
	return s.metrics.Set(s.device, path, value)
}

// Get returns the value under path, or nil.
func (s *Scope) Get(path string) (any, error) {
	return s.metrics.Get(s.device, path)
}
