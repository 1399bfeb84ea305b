package ingest

import (
	"context"
	"sync/atomic"
)

// Stage runs a [Loop] inside a pipeline. Stopping the stage requests
// the shutdown and closes the driver, so that a blocked read returns.
type Stage struct {
	loop *Loop

	started atomic.Bool
}

func NewStage(loop *Loop) *Stage {
	return &Stage{
		loop: loop,
	}
}

func (s *Stage) Name() string {
	return "ingest"
}

func (s *Stage) Init(_ context.Context) error {
	if s.loop.State() != StateIdle {
		return ErrAlreadyStarted
	}

	s.loop.tel.LogInfo("initialised", "driver", s.loop.driver.Name())

	return nil
}

// Run runs the loop. The fatal error, if any, is available through [Loop.Err].
func (s *Stage) Run(ctx context.Context) {
	s.started.Store(true)
	_ = s.loop.Run(ctx)
}

func (s *Stage) Stop() {
	s.loop.sd.Request()

	if err := s.loop.driver.Close(); err != nil {
		s.loop.tel.LogError("failed to close driver", err)
	}

	if s.started.Load() {
		<-s.loop.Done()
	}
}
