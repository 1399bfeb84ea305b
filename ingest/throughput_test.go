package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/squadracorsepolito/canweb/can"
	"github.com/squadracorsepolito/canweb/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Loop_Throughput(t *testing.T) {
	assert := assert.New(t)

	cfg := NewDefaultConfig()
	cfg.ReadErrorBackoff = 0
	cfg.StatsInterval = 0

	e := newEnv(cfg)
	sub, err := e.bc.Subscribe()
	require.NoError(t, err)

	errCh := e.start()

	e.drv.feedFrame(0x10, 1, 2, 3)
	e.drv.feedFrame(0x800, 1)
	e.drv.feedErr(fmt.Errorf("%w: truncated datagram", can.ErrInvalidFrame))
	e.drv.feedErr(errors.New("bus busy"))
	e.drv.feedFrame(0x20, 4)

	for range 2 {
		select {
		case <-sub.C():
		case <-time.After(time.Second):
			t.Fatal("frame not published")
		}
	}

	e.sd.Request()
	e.drv.Close()
	assert.NoError(waitErr(t, errCh))

	window := e.loop.throughput.flush()
	assert.Equal(uint64(2), window.frames)
	assert.Equal(uint64(4), window.payloadBytes)
	assert.Equal(uint64(2), window.invalidFrames)
	assert.Equal(uint64(1), window.readErrors)

	// Flushing starts a new window, the loop counters are kept
	assert.True(e.loop.throughput.flush().idle())
	assert.Equal(int64(2), e.loop.Counters().ReceivedFrames)
}

func Test_throughput_Report(t *testing.T) {
	assert := assert.New(t)

	buf := &bytes.Buffer{}
	internal.SetLogOutput(buf)
	defer internal.SetLogOutput(nil)

	tp := newThroughput(internal.NewLogger("ingest", "test"), 500*time.Millisecond)

	tp.report(tp.flush())
	assert.Empty(buf.String())

	tp.frame(8)
	tp.frame(8)
	tp.readError()
	tp.report(tp.flush())

	out := buf.String()
	assert.Contains(out, "throughput")
	assert.Contains(out, "frames_per_sec=4")
	assert.Contains(out, "payload_bytes_per_sec=32")
	assert.Contains(out, "read_errors=1")
}

func Test_throughput_RunDisabled(t *testing.T) {
	tp := newThroughput(internal.NewLogger("ingest", "test"), 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		tp.run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run with a zero interval did not return")
	}
}
