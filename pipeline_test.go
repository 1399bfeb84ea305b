package canweb

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type dummyStage struct {
	name    string
	initErr error

	initialised atomic.Bool
	running     atomic.Bool
	stopCh      chan struct{}
}

func newDummyStage(name string) *dummyStage {
	return &dummyStage{
		name:   name,
		stopCh: make(chan struct{}),
	}
}

func (s *dummyStage) Name() string {
	return s.name
}

func (s *dummyStage) Init(_ context.Context) error {
	s.initialised.Store(s.initErr == nil)
	return s.initErr
}

func (s *dummyStage) Run(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)

	select {
	case <-ctx.Done():
	case <-s.stopCh:
	}
}

func (s *dummyStage) Stop() {
	close(s.stopCh)
}

func Test_Pipeline(t *testing.T) {
	assert := assert.New(t)

	stageA := newDummyStage("a")
	stageB := newDummyStage("b")

	p := NewPipeline()
	assert.NoError(p.AddStage(stageA))
	assert.NoError(p.AddStage(stageB))
	assert.Equal([]string{"a", "b"}, p.StageNames())

	assert.NoError(p.Init(context.Background()))
	assert.True(stageA.initialised.Load())
	assert.True(stageB.initialised.Load())

	p.Run(context.Background())
	assert.ErrorIs(p.AddStage(newDummyStage("c")), ErrPipelineRunning)
	assert.Equal([]string{"a", "b"}, p.StageNames())

	assert.Eventually(func() bool {
		return stageA.running.Load() && stageB.running.Load()
	}, time.Second, time.Millisecond)

	p.Stop()

	assert.False(stageA.running.Load())
	assert.False(stageB.running.Load())
}

func Test_Pipeline_InitError(t *testing.T) {
	assert := assert.New(t)

	initErr := errors.New("init failed")

	stageA := newDummyStage("a")
	stageA.initErr = initErr
	stageB := newDummyStage("b")

	p := NewPipeline()
	assert.NoError(p.AddStage(stageA))
	assert.NoError(p.AddStage(stageB))

	assert.ErrorIs(p.Init(context.Background()), initErr)
	assert.False(stageB.initialised.Load())
}
