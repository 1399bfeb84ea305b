package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/squadracorsepolito/canweb/can"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMsg(t *testing.T, id uint32) *can.Message {
	t.Helper()

	msg, err := can.Normalize(can.Raw{ID: id}, time.Now())
	require.NoError(t, err)

	return msg
}

func drain(sub *Subscription) []uint32 {
	res := []uint32{}
	for {
		select {
		case msg, ok := <-sub.C():
			if !ok {
				return res
			}
			res = append(res, msg.ID)
		default:
			return res
		}
	}
}

func Test_Broadcaster_FanOut(t *testing.T) {
	assert := assert.New(t)

	b := New(DefaultQueueSize)
	defer b.Close()

	subA, err := b.Subscribe()
	require.NoError(t, err)
	subB, err := b.Subscribe()
	require.NoError(t, err)

	assert.NotEqual(subA.ID(), subB.ID())
	assert.Equal(2, b.Count())

	for id := range uint32(5) {
		b.Publish(newMsg(t, id))
	}

	assert.Equal([]uint32{0, 1, 2, 3, 4}, drain(subA))
	assert.Equal([]uint32{0, 1, 2, 3, 4}, drain(subB))
	assert.Equal(int64(5), b.Published())
}

func Test_Broadcaster_SameInstance(t *testing.T) {
	b := New(4)
	defer b.Close()

	sub, err := b.Subscribe()
	require.NoError(t, err)

	msg := newMsg(t, 0x10)
	b.Publish(msg)

	assert.Same(t, msg, <-sub.C())
}

func Test_Broadcaster_DropOldest(t *testing.T) {
	assert := assert.New(t)

	queueSize := 4
	b := New(queueSize)
	defer b.Close()

	slow, err := b.Subscribe()
	require.NoError(t, err)
	fast, err := b.Subscribe()
	require.NoError(t, err)

	publishCount := 10
	fastReceived := []uint32{}
	for id := range uint32(publishCount) {
		b.Publish(newMsg(t, id))
		fastReceived = append(fastReceived, drain(fast)...)
	}

	// The slow subscriber keeps only the newest messages, in publish order
	assert.Equal([]uint32{6, 7, 8, 9}, drain(slow))

	stats := slow.Stats()
	assert.Equal(uint64(publishCount), stats.Sent)
	assert.Equal(uint64(publishCount-queueSize), stats.Dropped)

	// The fast subscriber is not affected by the slow one
	assert.Len(fastReceived, publishCount)
	assert.Equal(uint64(0), fast.Stats().Dropped)
}

func Test_Broadcaster_LateSubscriber(t *testing.T) {
	assert := assert.New(t)

	b := New(DefaultQueueSize)
	defer b.Close()

	b.Publish(newMsg(t, 1))

	sub, err := b.Subscribe()
	require.NoError(t, err)

	b.Publish(newMsg(t, 2))

	assert.Equal([]uint32{2}, drain(sub))
}

func Test_Broadcaster_PublishNeverBlocks(t *testing.T) {
	b := New(1)
	defer b.Close()

	for range 8 {
		_, err := b.Subscribe()
		require.NoError(t, err)
	}

	msg := newMsg(t, 0x100)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 10_000 {
			b.Publish(msg)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on subscribers that never read")
	}
}

func Test_Broadcaster_Unsubscribe(t *testing.T) {
	assert := assert.New(t)

	b := New(DefaultQueueSize)
	defer b.Close()

	sub, err := b.Subscribe()
	require.NoError(t, err)

	b.Publish(newMsg(t, 1))
	b.Publish(newMsg(t, 2))

	sub.Close()
	assert.Equal(0, b.Count())

	// Queued messages are discarded and the channel is closed
	_, ok := <-sub.C()
	assert.False(ok)

	// Idempotent
	sub.Close()
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)

	b.Publish(newMsg(t, 3))
}

func Test_Broadcaster_Close(t *testing.T) {
	assert := assert.New(t)

	b := New(DefaultQueueSize)

	sub, err := b.Subscribe()
	require.NoError(t, err)

	b.Close()
	b.Close()

	_, ok := <-sub.C()
	assert.False(ok)

	_, err = b.Subscribe()
	assert.ErrorIs(err, ErrClosed)

	b.Publish(newMsg(t, 1))
	assert.Equal(int64(0), b.Published())
}

func Test_Broadcaster_ConcurrentOrder(t *testing.T) {
	assert := assert.New(t)

	itemCount := 50_000
	b := New(itemCount)
	defer b.Close()

	subCount := 4
	subs := make([]*Subscription, 0, subCount)
	for range subCount {
		sub, err := b.Subscribe()
		require.NoError(t, err)
		subs = append(subs, sub)
	}

	msgs := make([]*can.Message, itemCount)
	for i := range msgs {
		msgs[i] = newMsg(t, uint32(i)%0x7ff)
	}

	wg := &sync.WaitGroup{}
	wg.Add(subCount)
	for _, sub := range subs {
		go func() {
			defer wg.Done()

			for i := range itemCount {
				msg := <-sub.C()
				assert.Same(msgs[i], msg)
			}
		}()
	}

	for _, msg := range msgs {
		b.Publish(msg)
	}

	wg.Wait()
}
