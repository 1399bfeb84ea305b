package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/squadracorsepolito/canweb/internal"
)

// throughputWindow holds what the loop did during one reporting interval.
type throughputWindow struct {
	frames        uint64
	payloadBytes  uint64
	invalidFrames uint64
	readErrors    uint64
}

func (w throughputWindow) idle() bool {
	return w.frames == 0 && w.invalidFrames == 0 && w.readErrors == 0
}

// throughput logs the per-interval activity of the loop.
// Unlike the loop counters, its counters are reset at every report.
type throughput struct {
	l *internal.Logger

	interval time.Duration

	frames        atomic.Uint64
	payloadBytes  atomic.Uint64
	invalidFrames atomic.Uint64
	readErrors    atomic.Uint64
}

func newThroughput(l *internal.Logger, interval time.Duration) *throughput {
	return &throughput{
		l: l,

		interval: interval,
	}
}

func (t *throughput) frame(payloadLen int) {
	t.frames.Add(1)
	t.payloadBytes.Add(uint64(payloadLen))
}

func (t *throughput) invalidFrame() {
	t.invalidFrames.Add(1)
}

func (t *throughput) readError() {
	t.readErrors.Add(1)
}

// flush returns the current window and starts a new one.
func (t *throughput) flush() throughputWindow {
	return throughputWindow{
		frames:        t.frames.Swap(0),
		payloadBytes:  t.payloadBytes.Swap(0),
		invalidFrames: t.invalidFrames.Swap(0),
		readErrors:    t.readErrors.Swap(0),
	}
}

// run reports every interval until ctx is done.
// A non positive interval disables the reports.
func (t *throughput) run(ctx context.Context) {
	if t.interval <= 0 {
		return
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.report(t.flush())
		}
	}
}

func (t *throughput) report(w throughputWindow) {
	if w.idle() {
		return
	}

	secs := t.interval.Seconds()

	t.l.Info("throughput",
		"frames_per_sec", float64(w.frames)/secs,
		"payload_bytes_per_sec", float64(w.payloadBytes)/secs,
		"invalid_frames", w.invalidFrames,
		"read_errors", w.readErrors,
	)
}
