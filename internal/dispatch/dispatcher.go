// Package dispatch routes named commands to registered bulbs. Every exchange
// is rate limited, recorded in the ledger and announced on the event bus.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/kl130d/internal/bulb"
	"github.com/dokzlo13/kl130d/internal/eventbus"
	"github.com/dokzlo13/kl130d/internal/storage"
)

// ErrUnknownDevice is returned for a bulb name that was never registered.
var ErrUnknownDevice = errors.New("unknown device")

// Recorder persists the outcome of each exchange.
type Recorder interface {
	Record(device, command, source string, payload map[string]any, err error) (string, error)
}

// Dispatcher holds the registered bulbs
type Dispatcher struct {
	mu      sync.RWMutex
	devices map[string]*bulb.Device

	metrics  storage.Metrics
	limiter  *rate.Limiter
	recorder Recorder
	bus      *eventbus.Bus
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithRateLimit caps outbound exchanges across all bulbs. rps <= 0 disables
// the limit.
func WithRateLimit(rps float64) Option {
	return func(d *Dispatcher) {
		if rps > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithRecorder records every dispatched command.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithBus publishes an EventTypeCommand event after every dispatched command.
func WithBus(b *eventbus.Bus) Option {
	return func(d *Dispatcher) { d.bus = b }
}

// New creates a dispatcher reading presentation state from metrics.
func New(metrics storage.Metrics, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		devices: make(map[string]*bulb.Device),
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Add registers a device under its name.
func (d *Dispatcher) Add(dev *bulb.Device) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.devices[dev.Name()]; exists {
		return fmt.Errorf("device %q already registered", dev.Name())
	}
	d.devices[dev.Name()] = dev
	return nil
}

// Device returns the device registered under name.
func (d *Dispatcher) Device(name string) (*bulb.Device, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	dev, ok := d.devices[name]
	return dev, ok
}

// Names returns the registered device names in sorted order.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.devices))
	for name := range d.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Init writes default presentation state for every registered device.
func (d *Dispatcher) Init() error {
	for _, name := range d.Names() {
		dev, _ := d.Device(name)
		if err := dev.Init(); err != nil {
			return fmt.Errorf("failed to init device %q: %w", name, err)
		}
	}
	return nil
}

// Snapshot returns the stored metrics of a device.
func (d *Dispatcher) Snapshot(name string) (map[string]any, error) {
	if _, ok := d.Device(name); !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownDevice, name)
	}
	if d.metrics == nil {
		return map[string]any{}, nil
	}
	return d.metrics.Snapshot(name)
}

// Versions returns how many times each stored metric of a device was written.
func (d *Dispatcher) Versions(name string) (map[string]int64, error) {
	snap, err := d.Snapshot(name)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(snap))
	for path := range snap {
		v, err := d.metrics.Version(name, path)
		if err != nil {
			return nil, err
		}
		out[path] = v
	}
	return out, nil
}

// Dispatch runs the command label on the named device. source tags the ledger
// entry (api, poll, lua, cli).
func (d *Dispatcher) Dispatch(ctx context.Context, name, label, source string, args ...int) error {
	dev, ok := d.Device(name)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownDevice, name)
	}

	// unknown labels never reach the network, so they skip the limiter
	if slices.Contains(bulb.Commands, label) {
		if err := d.wait(ctx); err != nil {
			return err
		}
	}

	err := dev.Handle(ctx, label, args...)
	d.finish(name, label, source, payloadFor(label, args), err)
	return err
}

// Query asks the named device for its status and records the reported level.
func (d *Dispatcher) Query(ctx context.Context, name, source string) (bulb.Status, error) {
	dev, ok := d.Device(name)
	if !ok {
		return bulb.Status{}, fmt.Errorf("%w %q", ErrUnknownDevice, name)
	}
	if err := d.wait(ctx); err != nil {
		return bulb.Status{}, err
	}

	st, err := dev.Update(ctx)
	var payload map[string]any
	if st.Power != nil {
		payload = map[string]any{"on": *st.Power}
	}
	d.finish(name, bulb.CommandUpdate, source, payload, err)
	return st, err
}

func (d *Dispatcher) wait(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func (d *Dispatcher) finish(name, label, source string, payload map[string]any, err error) {
	logEvent := log.Debug()
	if err != nil {
		logEvent = log.Warn().Err(err)
	}
	logEvent.Str("device", name).Str("command", label).Str("source", source).Msg("Command dispatched")

	if d.recorder != nil {
		if _, recErr := d.recorder.Record(name, label, source, payload, err); recErr != nil {
			log.Error().Err(recErr).Str("device", name).Msg("Failed to record exchange")
		}
	}

	if d.bus != nil {
		data := map[string]any{
			"device":  name,
			"command": label,
			"source":  source,
		}
		if err != nil {
			data["error"] = err.Error()
		}
		d.bus.Publish(eventbus.Event{Type: eventbus.EventTypeCommand, Data: data})
	}
}

func payloadFor(label string, args []int) map[string]any {
	if label != bulb.CommandExact || len(args) != 3 {
		return nil
	}
	return map[string]any{"red": args[0], "green": args[1], "blue": args[2]}
}
