package bulb

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/kl130d/internal/color"
)

// Command labels accepted by Device.Handle
const (
	CommandOn     = "on"
	CommandOff    = "off"
	CommandExact  = "exact"
	CommandUpdate = "update"
)

// Commands lists every label Device.Handle accepts.
var Commands = []string{CommandOn, CommandOff, CommandExact, CommandUpdate}

// Metric paths written to the sink
const (
	PathTitle  = "metrics:title"
	PathLevel  = "metrics:level"
	PathColorR = "metrics:color:r"
	PathColorG = "metrics:color:g"
	PathColorB = "metrics:color:b"
)

// Level values stored under PathLevel
const (
	LevelOn  = "on"
	LevelOff = "off"
)

// ErrInvalidArguments is returned when a command gets the wrong arguments.
var ErrInvalidArguments = errors.New("invalid arguments")

// Sink receives presentation state for a device.
type Sink interface {
	Set(path string, value any) error
	// Get returns nil if path was never set.
	Get(path string) (any, error)
}

// Device is the caller-facing side of a bulb: it dispatches command labels to
// the client and mirrors the resulting state into a sink.
type Device struct {
	name   string
	client *Client
	sink   Sink
}

// NewDevice creates a device named name.
func NewDevice(name string, client *Client, sink Sink) *Device {
	return &Device{
		name:   name,
		client: client,
		sink:   sink,
	}
}

// Name returns the device name.
func (d *Device) Name() string {
	return d.name
}

// Client returns the underlying bulb client.
func (d *Device) Client() *Client {
	return d.client
}

// Init writes the title and fills in level and color if they were never set.
func (d *Device) Init() error {
	if err := d.sink.Set(PathTitle, d.name); err != nil {
		return err
	}
	defaults := []struct {
		path  string
		value any
	}{
		{PathLevel, LevelOff},
		{PathColorR, 0},
		{PathColorG, 0},
		{PathColorB, 0},
	}
	for _, def := range defaults {
		v, err := d.sink.Get(def.path)
		if err != nil {
			return err
		}
		if v != nil {
			continue
		}
		if err := d.sink.Set(def.path, def.value); err != nil {
			return err
		}
	}
	return nil
}

// Handle runs the command named label. exact takes red, green and blue.
// Unknown labels fail with ErrUnrecognizedCommand before any network I/O.
func (d *Device) Handle(ctx context.Context, label string, args ...int) error {
	switch label {
	case CommandOn:
		return d.PowerOn(ctx)
	case CommandOff:
		return d.PowerOff(ctx)
	case CommandExact:
		if len(args) != 3 {
			return fmt.Errorf("%w: exact needs red, green and blue, got %d values", ErrInvalidArguments, len(args))
		}
		return d.SetExactColor(ctx, color.RGB{R: args[0], G: args[1], B: args[2]})
	case CommandUpdate:
		_, err := d.Update(ctx)
		return err
	default:
		log.Warn().Str("device", d.name).Str("command", label).Msg("Received unknown command")
		return fmt.Errorf("%w %q", ErrUnrecognizedCommand, label)
	}
}

// PowerOn switches the bulb on and records level on.
func (d *Device) PowerOn(ctx context.Context) error {
	if err := d.client.PowerOn(ctx); err != nil {
		return err
	}
	return d.set(PathLevel, LevelOn)
}

// PowerOff switches the bulb off and records level off.
func (d *Device) PowerOff(ctx context.Context) error {
	if err := d.client.PowerOff(ctx); err != nil {
		return err
	}
	return d.set(PathLevel, LevelOff)
}

// SetExactColor sets the color and records level on plus the requested RGB,
// not the HSB the bulb was sent.
func (d *Device) SetExactColor(ctx context.Context, rgb color.RGB) error {
	if err := d.client.SetExactColor(ctx, rgb); err != nil {
		return err
	}
	if err := d.set(PathLevel, LevelOn); err != nil {
		return err
	}
	if err := d.set(PathColorR, rgb.R); err != nil {
		return err
	}
	if err := d.set(PathColorG, rgb.G); err != nil {
		return err
	}
	return d.set(PathColorB, rgb.B)
}

// Update queries the bulb and records the reported level, if any.
func (d *Device) Update(ctx context.Context) (Status, error) {
	st, err := d.client.QueryStatus(ctx)
	if err != nil {
		return st, err
	}
	if st.Power == nil {
		log.Debug().Str("device", d.name).Msg("Status reply has no on_off field")
		return st, nil
	}

	level := LevelOff
	if *st.Power {
		level = LevelOn
	}
	return st, d.set(PathLevel, level)
}

func (d *Device) set(path string, value any) error {
	if err := d.sink.Set(path, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	return nil
}
