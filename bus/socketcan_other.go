//go:build !linux

package bus

import "github.com/squadracorsepolito/canweb/can"

// SocketCAN is only available on Linux.
type SocketCAN struct{}

// OpenSocketCAN always fails with [ErrUnsupported] outside Linux.
func OpenSocketCAN(_ *SocketCANConfig) (*SocketCAN, error) {
	return nil, ErrUnsupported
}

func (s *SocketCAN) Name() string {
	return "socketcan"
}

func (s *SocketCAN) Read() (can.Raw, error) {
	return can.Raw{}, ErrUnsupported
}

func (s *SocketCAN) Write(_ can.Raw) error {
	return ErrUnsupported
}

func (s *SocketCAN) Close() error {
	return nil
}
