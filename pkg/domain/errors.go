package domain

import "errors"

// ErrAnnotationsNotFound is returned when no annotations are stored under a key.
var ErrAnnotationsNotFound = errors.New("annotations not found")

// ErrInvalidPort is returned for ports outside 1..65535.
var ErrInvalidPort = errors.New("invalid port")

// ErrInvalidDescriptor is returned when a session descriptor cannot be parsed.
var ErrInvalidDescriptor = errors.New("invalid session descriptor")

// ErrMalformedFrame is returned when a wire frame is not a recognizable message.
var ErrMalformedFrame = errors.New("malformed frame")

// ErrNotConnected is returned when a frame cannot be written because no transport is open.
var ErrNotConnected = errors.New("not connected")

// ErrUnknownPlot is returned when an action names a plot that is not in the list.
var ErrUnknownPlot = errors.New("unknown plot")

// ErrUnknownAction is returned for surface actions with an unrecognized command.
var ErrUnknownAction = errors.New("unknown action")

// ErrInvalidDataURL is returned when an export payload is not base64 data.
var ErrInvalidDataURL = errors.New("invalid data url")

// ValidPort reports whether port is usable as a TCP port.
func ValidPort(port int) bool {
	return port > 0 && port <= 65535
}
