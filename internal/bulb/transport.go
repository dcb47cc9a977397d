package bulb

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// maxDatagram is large enough for a full get_sysinfo reply.
const maxDatagram = 4096

// Transport moves one encoded payload to a bulb and, for queries, brings one
// datagram back. Implementations must not keep sockets between calls.
type Transport interface {
	// Send transmits payload to addr without waiting for a reply.
	Send(ctx context.Context, addr *net.UDPAddr, payload []byte) error
	// Exchange transmits payload and returns the first datagram received
	// before the deadline.
	Exchange(ctx context.Context, addr *net.UDPAddr, payload []byte, timeout time.Duration) ([]byte, error)
}

// UDPTransport opens a fresh UDP socket for every call.
type UDPTransport struct{}

// NewUDPTransport creates a UDP transport.
func NewUDPTransport() *UDPTransport {
	return &UDPTransport{}
}

// Send dials addr, writes payload and closes the socket.
func (t *UDPTransport) Send(ctx context.Context, addr *net.UDPAddr, payload []byte) error {
	if err := contextError(ctx, addr); err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp4", addr.String())
	if err != nil {
		if cerr := contextError(ctx, addr); cerr != nil {
			return cerr
		}
		return fmt.Errorf("%w: %v", ErrTransmission, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("%w: %v", ErrTransmission, err)
		}
	}
	if _, err := conn.Write(payload); err != nil {
		if cerr := contextError(ctx, addr); cerr != nil {
			return cerr
		}
		return fmt.Errorf("%w: %v", ErrTransmission, err)
	}
	return nil
}

// Exchange binds an ephemeral port, sends payload to addr and reads one
// datagram from any sender. The socket is closed on every return path.
func (t *UDPTransport) Exchange(ctx context.Context, addr *net.UDPAddr, payload []byte, timeout time.Duration) ([]byte, error) {
	if err := contextError(ctx, addr); err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransmission, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransmission, err)
	}

	// Unblock the read if ctx is cancelled before the deadline
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.WriteToUDP(payload, addr); err != nil {
		if cerr := contextError(ctx, addr); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("%w: %v", ErrTransmission, err)
	}

	buf := make([]byte, maxDatagram)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		if cerr := contextError(ctx, addr); cerr != nil {
			return nil, cerr
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, fmt.Errorf("%w waiting for reply from %s", ErrTimeout, addr)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransmission, err)
	}
	return buf[:n], nil
}

// contextError reports why ctx ended, or nil while it is live. A passed
// deadline is a timeout; cancellation comes back as context.Canceled.
func contextError(ctx context.Context, addr *net.UDPAddr) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w talking to %s: %w", ErrTimeout, addr, err)
	default:
		return err
	}
}
