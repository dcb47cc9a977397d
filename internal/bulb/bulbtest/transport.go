// Package bulbtest provides an in-memory bulb transport for tests.
package bulbtest

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/kl130d/internal/bulb"
	"github.com/dokzlo13/kl130d/internal/protocol"
)

// Transport records decoded commands and answers every status query with
// an encrypted reply built from Power.
type Transport struct {
	mu       sync.Mutex
	commands []protocol.Response
	power    *bool
	err      error
}

var _ bulb.Transport = (*Transport)(nil)

// SetPower sets the on_off value reported by status replies. nil leaves the
// field out.
func (t *Transport) SetPower(on *bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.power = on
}

// Fail makes every following call return err.
func (t *Transport) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

// Commands returns the decoded commands received so far.
func (t *Transport) Commands() []protocol.Response {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]protocol.Response(nil), t.commands...)
}

func (t *Transport) Send(_ context.Context, _ *net.UDPAddr, payload []byte) error {
	return t.record(payload)
}

func (t *Transport) Exchange(_ context.Context, _ *net.UDPAddr, payload []byte, _ time.Duration) ([]byte, error) {
	if err := t.record(payload); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	lightState := map[string]any{}
	if t.power != nil {
		on := 0
		if *t.power {
			on = 1
		}
		lightState["on_off"] = on
	}
	return protocol.Encode(map[string]any{
		protocol.SystemService: map[string]any{
			protocol.GetSysinfo: map[string]any{"light_state": lightState},
		},
	})
}

func (t *Transport) record(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	cmd, err := protocol.Decode(payload)
	if err != nil {
		return err
	}
	t.commands = append(t.commands, cmd)
	return nil
}

// NewDevice creates a device named name backed by a fresh Transport.
func NewDevice(tb testing.TB, name string, sink bulb.Sink) (*bulb.Device, *Transport) {
	tb.Helper()
	tr := &Transport{}
	client, err := bulb.NewClient(bulb.Endpoint{IP: "192.0.2.10"}, bulb.WithTransport(tr))
	if err != nil {
		tb.Fatalf("new client: %v", err)
	}
	return bulb.NewDevice(name, client, sink), tr
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}
