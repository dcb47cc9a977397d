// Package bulb drives a single KL130 bulb over UDP.
//
// Every call is one exchange: a fresh socket, one datagram out and, for
// status queries only, one datagram back. Nothing is retried.
package bulb

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/kl130d/internal/color"
	"github.com/dokzlo13/kl130d/internal/protocol"
)

const (
	// DefaultPort is the bulb's fixed control port.
	DefaultPort = 9999
	// DefaultTimeout bounds the wait for a status reply.
	DefaultTimeout = 3 * time.Second
)

// State is a step of a single exchange.
type State int

const (
	StateIdle State = iota
	StateSending
	StateAwaitingReply
	StateDone
	StateDecoded
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StateDone:
		return "done"
	case StateDecoded:
		return "decoded"
	case StateTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result is the outcome of one exchange. Reply is set only when State is
// StateDecoded; fire-and-forget exchanges end in StateDone.
type Result struct {
	State State
	Reply protocol.Response
}

// Status is the answer to a status query.
type Status struct {
	// Power is nil when the reply carries no on_off field.
	Power *bool
	Reply protocol.Response
}

// Endpoint identifies a bulb on the network.
type Endpoint struct {
	IP   string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP, fmt.Sprint(e.port()))
}

func (e Endpoint) port() int {
	if e.Port == 0 {
		return DefaultPort
	}
	return e.Port
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the status reply wait.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTransport replaces the UDP transport, mainly for tests.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// Client sends commands to one bulb. It holds no mutable state and is safe
// for concurrent use.
type Client struct {
	endpoint  Endpoint
	addr      *net.UDPAddr
	transport Transport
	timeout   time.Duration
}

// NewClient creates a client for the bulb at endpoint.
func NewClient(endpoint Endpoint, opts ...Option) (*Client, error) {
	ip := net.ParseIP(endpoint.IP)
	if ip == nil {
		return nil, fmt.Errorf("invalid bulb address %q", endpoint.IP)
	}
	// the bulb only speaks IPv4 and both transport paths dial udp4
	if ip = ip.To4(); ip == nil {
		return nil, fmt.Errorf("bulb address %q is not IPv4", endpoint.IP)
	}

	c := &Client{
		endpoint:  endpoint,
		addr:      &net.UDPAddr{IP: ip, Port: endpoint.port()},
		transport: NewUDPTransport(),
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the bulb address.
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// Timeout returns the status reply wait.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// PowerOn switches the bulb on.
func (c *Client) PowerOn(ctx context.Context) error {
	_, err := c.exchange(ctx, "on", protocol.PowerCommand(true), false)
	return err
}

// PowerOff switches the bulb off.
func (c *Client) PowerOff(ctx context.Context) error {
	_, err := c.exchange(ctx, "off", protocol.PowerCommand(false), false)
	return err
}

// SetExactColor switches the bulb on with rgb.
func (c *Client) SetExactColor(ctx context.Context, rgb color.RGB) error {
	hsb := color.RGBToHSB(rgb)
	log.Debug().
		Str("bulb", c.endpoint.String()).
		Stringer("rgb", rgb).
		Stringer("hsb", hsb).
		Msg("Converted color")

	_, err := c.exchange(ctx, "exact", protocol.ColorCommand(hsb), false)
	return err
}

// QueryStatus asks the bulb for its system info and waits for one reply.
func (c *Client) QueryStatus(ctx context.Context) (Status, error) {
	res, err := c.exchange(ctx, "update", protocol.SysinfoQuery(), true)
	if err != nil {
		return Status{}, err
	}

	st := Status{Reply: res.Reply}
	if on, ok := res.Reply.Power(); ok {
		st.Power = &on
	}
	return st, nil
}

// exchange runs one send and, if awaitReply is set, one receive.
func (c *Client) exchange(ctx context.Context, label string, cmd protocol.Command, awaitReply bool) (Result, error) {
	res := Result{State: StateIdle}
	logger := log.With().
		Str("bulb", c.endpoint.String()).
		Str("command", label).
		Logger()

	payload, err := protocol.Encode(cmd)
	if err != nil {
		return res, err
	}

	res.State = StateSending
	logger.Debug().Stringer("state", res.State).Int("bytes", len(payload)).Msg("Exchange")

	if !awaitReply {
		if err := c.transport.Send(ctx, c.addr, payload); err != nil {
			return res, err
		}
		res.State = StateDone
		logger.Debug().Stringer("state", res.State).Msg("Exchange")
		return res, nil
	}

	res.State = StateAwaitingReply
	logger.Debug().Stringer("state", res.State).Dur("timeout", c.timeout).Msg("Exchange")

	data, err := c.transport.Exchange(ctx, c.addr, payload, c.timeout)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			res.State = StateTimedOut
			logger.Debug().Stringer("state", res.State).Msg("Exchange")
		}
		return res, err
	}

	reply, err := protocol.Decode(data)
	if err != nil {
		return res, err
	}

	res.State = StateDecoded
	res.Reply = reply
	logger.Debug().Stringer("state", res.State).Interface("reply", reply).Msg("Exchange")
	return res, nil
}
