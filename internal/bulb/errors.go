package bulb

import (
	"errors"

	"github.com/dokzlo13/kl130d/internal/protocol"
)

var (
	// ErrTimeout is returned when a query gets no reply within the listen window.
	ErrTimeout = errors.New("timed out waiting for reply")
	// ErrTransmission is returned when the socket cannot be opened or written.
	ErrTransmission = errors.New("transmission failure")
	// ErrUnrecognizedCommand is returned by Device.Handle for unknown labels.
	ErrUnrecognizedCommand = errors.New("unrecognized command")
	// ErrMalformedPayload is returned when a reply does not decode.
	ErrMalformedPayload = protocol.ErrMalformedPayload
)
