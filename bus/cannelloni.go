package bus

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/squadracorsepolito/canweb/can"
	"github.com/squadracorsepolito/canweb/cannelloni"
	"github.com/squadracorsepolito/canweb/internal"
)

// Cannelloni is a driver receiving CAN frames tunnelled over UDP
// with the cannelloni protocol.
type Cannelloni struct {
	tel *internal.Telemetry

	conn *net.UDPConn
	peer *net.UDPAddr

	buf     []byte
	pending []can.Raw

	writeMux sync.Mutex
	seqNum   uint8

	// Telemetry metrics
	receivedBytes     atomic.Int64
	receivedDatagrams atomic.Int64
	sentFrames        atomic.Int64
}

// OpenCannelloni listens on the configured UDP address.
func OpenCannelloni(cfg *CannelloniConfig) (*Cannelloni, error) {
	addrPort, err := netip.ParseAddrPort(cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("cannelloni: listen address: %w", err)
	}

	var peer *net.UDPAddr
	if cfg.PeerAddr != "" {
		peer, err = net.ResolveUDPAddr("udp", cfg.PeerAddr)
		if err != nil {
			return nil, fmt.Errorf("cannelloni: peer address: %w", err)
		}
	}

	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(addrPort))
	if err != nil {
		return nil, fmt.Errorf("cannelloni: listen: %w", err)
	}

	c := &Cannelloni{
		tel: internal.NewTelemetry("bus", "cannelloni"),

		conn: conn,
		peer: peer,

		buf: make([]byte, cannelloni.MaxDatagramSize),
	}

	c.initMetrics()

	return c, nil
}

func (c *Cannelloni) initMetrics() {
	c.tel.NewCounter("received_bytes", func() int64 { return c.receivedBytes.Load() })
	c.tel.NewCounter("received_datagrams", func() int64 { return c.receivedDatagrams.Load() })
	c.tel.NewCounter("sent_frames", func() int64 { return c.sentFrames.Load() })
}

func (c *Cannelloni) Name() string {
	return "cannelloni:" + c.conn.LocalAddr().String()
}

// LocalAddr returns the address the driver is listening on.
func (c *Cannelloni) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// ReadOnly reports whether no peer is configured.
func (c *Cannelloni) ReadOnly() bool {
	return c.peer == nil
}

// Read returns the next frame, receiving a new datagram
// when the frames of the previous one are exhausted.
// It must not be called concurrently.
func (c *Cannelloni) Read() (can.Raw, error) {
	for len(c.pending) == 0 {
		n, err := c.conn.Read(c.buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return can.Raw{}, ErrClosed
			}
			return can.Raw{}, fmt.Errorf("cannelloni: read: %w", err)
		}

		c.receivedBytes.Add(int64(n))
		c.receivedDatagrams.Add(1)

		f, err := cannelloni.DecodeFrame(c.buf[:n])
		if err != nil {
			return can.Raw{}, fmt.Errorf("%w: %w", can.ErrInvalidFrame, err)
		}

		for _, msg := range f.Messages {
			c.pending = append(c.pending, msg.Raw())
		}
	}

	raw := c.pending[0]
	c.pending[0] = can.Raw{}
	c.pending = c.pending[1:]

	return raw, nil
}

// Write sends raw to the peer as a single message frame.
func (c *Cannelloni) Write(raw can.Raw) error {
	if c.peer == nil {
		return ErrReadOnly
	}

	c.writeMux.Lock()
	f := cannelloni.NewFrame(c.seqNum)
	c.seqNum++
	c.writeMux.Unlock()

	f.AddMessage(cannelloni.NewFrameMessage(raw))

	if _, err := c.conn.WriteToUDP(f.Encode(), c.peer); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("cannelloni: write: %w", err)
	}

	c.sentFrames.Add(1)

	return nil
}

func (c *Cannelloni) Close() error {
	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
