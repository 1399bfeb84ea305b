// Package bus contains the CAN bus drivers frames are read from and written to.
package bus

import (
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/squadracorsepolito/canweb/can"
)

var (
	// ErrClosed is returned by a driver used after Close.
	ErrClosed = errors.New("bus: driver closed")
	// ErrUnsupported is returned when a driver is not available on the platform.
	ErrUnsupported = errors.New("bus: driver not supported on this platform")
	// ErrReadOnly is returned by Write on drivers that cannot transmit.
	ErrReadOnly = errors.New("bus: driver is read-only")
)

// Driver is a source (and optionally a sink) of CAN frames.
type Driver interface {
	// Read blocks until a frame is available.
	Read() (can.Raw, error)
	// Write transmits a frame.
	Write(raw can.Raw) error
	Close() error
	Name() string
}

// ReadOnly is implemented by drivers that cannot transmit frames.
type ReadOnly interface {
	ReadOnly() bool
}

// IsReadOnly reports whether d cannot transmit frames.
func IsReadOnly(d Driver) bool {
	ro, ok := d.(ReadOnly)
	return ok && ro.ReadOnly()
}

// IsFatal reports whether err means that the transport is gone
// and no further frame can be read.
func IsFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ENODEV),
		errors.Is(err, syscall.ENETDOWN),
		errors.Is(err, syscall.ENXIO),
		errors.Is(err, syscall.EBADF):
		return true
	}

	return false
}
