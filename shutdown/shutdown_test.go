package shutdown

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_Coordinator_Request(t *testing.T) {
	assert := assert.New(t)

	c := New()
	assert.False(c.Requested())

	select {
	case <-c.Done():
		t.Fatal("done before request")
	default:
	}

	wg := &sync.WaitGroup{}
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Request()
		}()
	}
	wg.Wait()

	assert.True(c.Requested())

	select {
	case <-c.Done():
	default:
		t.Fatal("done channel not closed after request")
	}
}

func Test_Coordinator_WatchContext(t *testing.T) {
	c := New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := c.WatchContext(ctx)
	defer stop()

	cancel()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("context cancellation did not request the shutdown")
	}

	assert.True(t, c.Requested())
}

func Test_Coordinator_WatchContextStopped(t *testing.T) {
	c := New()

	ctx, cancel := context.WithCancel(context.Background())

	stop := c.WatchContext(ctx)
	stop()
	cancel()

	time.Sleep(10 * time.Millisecond)
	assert.False(t, c.Requested())
}
