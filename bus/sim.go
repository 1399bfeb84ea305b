package bus

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/squadracorsepolito/canweb/can"
	"github.com/squadracorsepolito/canweb/internal"
)

// Simulator is a driver producing the same frame at a fixed interval.
// Written frames are accepted and discarded.
type Simulator struct {
	tel *internal.Telemetry

	frame  can.Raw
	ticker *time.Ticker

	closeOnce sync.Once
	closeCh   chan struct{}

	// Telemetry metrics
	triggeredFrames atomic.Int64
	writtenFrames   atomic.Int64
}

func NewSimulator(cfg *SimulatorConfig) *Simulator {
	interval := cfg.Interval
	if interval <= 0 {
		interval = NewDefaultSimulatorConfig().Interval
	}

	s := &Simulator{
		tel: internal.NewTelemetry("bus", "simulator"),

		frame:  cfg.Frame,
		ticker: time.NewTicker(interval),

		closeCh: make(chan struct{}),
	}

	s.initMetrics()

	return s
}

func (s *Simulator) initMetrics() {
	s.tel.NewCounter("triggered_frames", func() int64 { return s.triggeredFrames.Load() })
	s.tel.NewCounter("written_frames", func() int64 { return s.writtenFrames.Load() })
}

func (s *Simulator) Name() string {
	return "simulator"
}

// Read waits for the next tick and returns a copy of the configured frame.
func (s *Simulator) Read() (can.Raw, error) {
	// Give priority to the close signal
	select {
	case <-s.closeCh:
		return can.Raw{}, ErrClosed
	default:
	}

	select {
	case <-s.closeCh:
		return can.Raw{}, ErrClosed

	case <-s.ticker.C:
		s.triggeredFrames.Add(1)

		raw := s.frame
		raw.Data = slices.Clone(s.frame.Data)

		return raw, nil
	}
}

func (s *Simulator) Write(raw can.Raw) error {
	select {
	case <-s.closeCh:
		return ErrClosed
	default:
	}

	s.writtenFrames.Add(1)
	s.tel.LogDebug("frame written", "can_id", raw.ID, "dlc", raw.DLC)

	return nil
}

// Written returns the number of frames accepted by Write.
func (s *Simulator) Written() int64 {
	return s.writtenFrames.Load()
}

func (s *Simulator) Close() error {
	s.closeOnce.Do(func() {
		s.ticker.Stop()
		close(s.closeCh)
	})
	return nil
}
