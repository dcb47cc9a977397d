package storage

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-memory metric store (not persisted). Values are kept as
// JSON so reads look the same as from Store.
type Memory struct {
	devices map[string]map[string]*memoryMetric
	mu      sync.RWMutex
}

type memoryMetric struct {
	data    json.RawMessage
	version int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		devices: make(map[string]map[string]*memoryMetric),
	}
}

// Set stores value under (device, path).
func (m *Memory) Set(device, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal metric %s: %w", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	metrics, ok := m.devices[device]
	if !ok {
		metrics = make(map[string]*memoryMetric)
		m.devices[device] = metrics
	}
	metric, ok := metrics[path]
	if !ok {
		metric = &memoryMetric{}
		metrics[path] = metric
	}
	metric.data = data
	metric.version++
	return nil
}

// Get returns the value under (device, path), or nil.
func (m *Memory) Get(device, path string) (any, error) {
	m.mu.RLock()
	metric, ok := m.devices[device][path]
	var data json.RawMessage
	if ok {
		data = metric.data
	}
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// Snapshot returns all metrics of a device keyed by path.
func (m *Memory) Snapshot(device string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]any, len(m.devices[device]))
	for path, metric := range m.devices[device] {
		var value any
		if err := json.Unmarshal(metric.data, &value); err != nil {
			return nil, err
		}
		out[path] = value
	}
	return out, nil
}

// Version returns the number of writes to (device, path), 0 if never set.
func (m *Memory) Version(device, path string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if metric, ok := m.devices[device][path]; ok {
		return metric.version, nil
	}
	return 0, nil
}

// Clear removes all metrics of a device. If device is empty, clears everything.
func (m *Memory) Clear(device string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if device == "" {
		m.devices = make(map[string]map[string]*memoryMetric)
		return nil
	}
	delete(m.devices, device)
	return nil
}
