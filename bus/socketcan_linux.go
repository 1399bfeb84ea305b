//go:build linux

package bus

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/squadracorsepolito/canweb/can"
	"golang.org/x/sys/unix"
)

// SocketCAN is a driver over a Linux raw CAN socket.
type SocketCAN struct {
	iface string
	file  *os.File
}

// OpenSocketCAN binds a raw CAN socket to the configured interface.
func OpenSocketCAN(cfg *SocketCANConfig) (*SocketCAN, error) {
	ifi, err := net.InterfaceByName(cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("socketcan: interface %s: %w", cfg.Interface, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socketcan: socket: %w", err)
	}

	if cfg.ErrorFrames {
		if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_ERR_FILTER, unix.CAN_ERR_MASK); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("socketcan: error filter: %w", err)
		}
	}

	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socketcan: bind %s: %w", cfg.Interface, err)
	}

	// A non-blocking descriptor is handled by the runtime poller,
	// so closing the file unblocks a pending read
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socketcan: set non-blocking: %w", err)
	}

	return &SocketCAN{
		iface: cfg.Interface,
		file:  os.NewFile(uintptr(fd), cfg.Interface),
	}, nil
}

func (s *SocketCAN) Name() string {
	return "socketcan:" + s.iface
}

func (s *SocketCAN) Read() (can.Raw, error) {
	buf := make([]byte, can.FrameSize)

	n, err := s.file.Read(buf)
	if err != nil {
		return can.Raw{}, s.wrapErr(err)
	}

	raw := can.Raw{}
	if err := raw.UnmarshalBinary(buf[:n]); err != nil {
		return can.Raw{}, err
	}

	return raw, nil
}

func (s *SocketCAN) Write(raw can.Raw) error {
	buf, err := raw.MarshalBinary()
	if err != nil {
		return err
	}

	if _, err := s.file.Write(buf); err != nil {
		return s.wrapErr(err)
	}

	return nil
}

func (s *SocketCAN) Close() error {
	if err := s.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

func (s *SocketCAN) wrapErr(err error) error {
	if errors.Is(err, os.ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("socketcan %s: %w", s.iface, err)
}
