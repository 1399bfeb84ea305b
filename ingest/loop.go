// Package ingest moves frames from a bus driver into the history store
// and the broadcaster.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/squadracorsepolito/canweb/broadcast"
	"github.com/squadracorsepolito/canweb/bus"
	"github.com/squadracorsepolito/canweb/can"
	"github.com/squadracorsepolito/canweb/history"
	"github.com/squadracorsepolito/canweb/internal"
	"github.com/squadracorsepolito/canweb/shutdown"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	// ErrTransientIO wraps read errors the loop recovers from.
	ErrTransientIO = errors.New("transient bus read error")
	// ErrFatalIO wraps the error that stopped the loop.
	ErrFatalIO = errors.New("fatal bus read error")
	// ErrAlreadyStarted is returned by Run when called more than once.
	ErrAlreadyStarted = errors.New("ingestion loop already started")
)

// Counters holds the ingestion counters of a [Loop].
type Counters struct {
	ReceivedFrames int64 `json:"received_frames"`
	InvalidFrames  int64 `json:"invalid_frames"`
	ReadErrors     int64 `json:"read_errors"`
}

// Loop reads frames from a driver until the shutdown is requested
// or the driver is gone. Every valid frame is appended to the store
// and published, in this order, as the same message instance.
//
// The shutdown signal is polled between reads: a pending read is never
// interrupted, so the loop stops at most one read after the request.
type Loop struct {
	tel        *internal.Telemetry
	throughput *throughput

	cfg *Config

	driver bus.Driver
	store  *history.Store
	bc     *broadcast.Broadcaster
	sd     *shutdown.Coordinator

	state  atomic.Int32
	doneCh chan struct{}

	errMux sync.Mutex
	err    error

	// Telemetry metrics
	receivedFrames atomic.Int64
	invalidFrames  atomic.Int64
	readErrors     atomic.Int64
}

// New returns a loop reading from driver. A nil cfg means [NewDefaultConfig].
func New(driver bus.Driver, store *history.Store, bc *broadcast.Broadcaster, sd *shutdown.Coordinator, cfg *Config) *Loop {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	tel := internal.NewTelemetry("ingest", driver.Name())

	l := &Loop{
		tel:        tel,
		throughput: newThroughput(tel.Logger(), cfg.StatsInterval),

		cfg: cfg,

		driver: driver,
		store:  store,
		bc:     bc,
		sd:     sd,

		doneCh: make(chan struct{}),
	}

	l.initMetrics()

	return l
}

func (l *Loop) initMetrics() {
	l.tel.NewCounter("received_frames", func() int64 { return l.receivedFrames.Load() })
	l.tel.NewCounter("invalid_frames", func() int64 { return l.invalidFrames.Load() })
	l.tel.NewCounter("read_errors", func() int64 { return l.readErrors.Load() })
}

// Run executes the loop until it stops. It returns the fatal error,
// if any, which is also available through [Loop.Err].
// Cancelling ctx has the same effect as requesting the shutdown.
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}

	defer close(l.doneCh)

	statsCtx, cancelStats := context.WithCancel(ctx)
	defer cancelStats()
	go l.throughput.run(statsCtx)

	l.tel.LogInfo("starting ingestion loop")

	err := l.run(ctx)

	l.setState(StateStopped)

	if err != nil {
		l.setErr(err)
		l.tel.LogError("ingestion loop stopped", err)
		return err
	}

	l.tel.LogInfo("ingestion loop stopped")

	return nil
}

func (l *Loop) run(ctx context.Context) error {
	consecutiveErrors := 0

	for {
		if l.stopRequested(ctx) {
			l.setState(StateDraining)
			return nil
		}

		raw, err := l.driver.Read()
		if err != nil {
			// The driver may have been closed to unblock the read
			if l.stopRequested(ctx) {
				l.setState(StateDraining)
				return nil
			}

			if errors.Is(err, can.ErrInvalidFrame) {
				l.invalidFrames.Add(1)
				l.throughput.invalidFrame()
				l.tel.LogWarn("dropping invalid frame", "reason", err)
				continue
			}

			l.readErrors.Add(1)
			l.throughput.readError()

			if bus.IsFatal(err) {
				return fmt.Errorf("%w: %w", ErrFatalIO, err)
			}

			consecutiveErrors++
			if l.cfg.MaxConsecutiveErrors > 0 && consecutiveErrors >= l.cfg.MaxConsecutiveErrors {
				return fmt.Errorf("%w: %d consecutive errors: %w: %w", ErrFatalIO, consecutiveErrors, ErrTransientIO, err)
			}

			l.tel.LogError("failed to read frame", fmt.Errorf("%w: %w", ErrTransientIO, err))
			l.backoff(ctx)

			continue
		}

		consecutiveErrors = 0
		l.handleFrame(ctx, raw)
	}
}

func (l *Loop) handleFrame(ctx context.Context, raw can.Raw) {
	_, span := l.tel.NewTrace(ctx, "handle frame")
	defer span.End()

	span.SetAttributes(attribute.Int64("can_id", int64(raw.ID)), attribute.Int("dlc", int(raw.DLC)))

	msg, err := can.Normalize(raw, time.Now())
	if err != nil {
		l.invalidFrames.Add(1)
		l.throughput.invalidFrame()

		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid frame")

		l.tel.LogWarn("dropping invalid frame", "reason", err, "can_id", raw.ID)

		return
	}

	l.receivedFrames.Add(1)
	l.throughput.frame(msg.Len())

	l.tel.LogDebug("received frame", "frame", msg)

	l.store.Append(msg)
	l.bc.Publish(msg)
}

func (l *Loop) backoff(ctx context.Context) {
	if l.cfg.ReadErrorBackoff <= 0 {
		return
	}

	timer := time.NewTimer(l.cfg.ReadErrorBackoff)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-l.sd.Done():
	case <-ctx.Done():
	}
}

func (l *Loop) stopRequested(ctx context.Context) bool {
	return l.sd.Requested() || ctx.Err() != nil
}

func (l *Loop) setState(state State) {
	l.state.Store(int32(state))
}

func (l *Loop) setErr(err error) {
	l.errMux.Lock()
	defer l.errMux.Unlock()

	l.err = err
}

// Err returns the error that stopped the loop, wrapping [ErrFatalIO].
// It is nil while running or after a requested shutdown.
func (l *Loop) Err() error {
	l.errMux.Lock()
	defer l.errMux.Unlock()

	return l.err
}

// Done returns a channel closed once the loop is stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.doneCh
}

// State returns the current state of the loop.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Counters returns a snapshot of the ingestion counters.
func (l *Loop) Counters() Counters {
	return Counters{
		ReceivedFrames: l.receivedFrames.Load(),
		InvalidFrames:  l.invalidFrames.Load(),
		ReadErrors:     l.readErrors.Load(),
	}
}
