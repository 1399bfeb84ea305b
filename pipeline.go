// Package canweb wires the CAN web gateway components together.
package canweb

import (
	"context"
	"errors"
	"sync"

	"github.com/squadracorsepolito/canweb/internal"
)

// Stage is a long running component of the [Pipeline].
type Stage interface {
	Name() string
	Init(ctx context.Context) error
	Run(ctx context.Context)
	Stop()
}

var ErrPipelineRunning = errors.New("pipeline is running")

// Pipeline runs a set of stages, each in its own goroutine.
type Pipeline struct {
	l *internal.Logger

	stages []Stage

	mux       sync.Mutex
	wg        *sync.WaitGroup
	isRunning bool
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		l: internal.NewLogger("pipeline", "main"),

		stages: []Stage{},

		wg:        &sync.WaitGroup{},
		isRunning: false,
	}
}

// AddStage appends a stage. Stages cannot be added to a running pipeline.
func (p *Pipeline) AddStage(stage Stage) error {
	p.mux.Lock()
	defer p.mux.Unlock()

	if p.isRunning {
		return ErrPipelineRunning
	}

	p.stages = append(p.stages, stage)

	return nil
}

// StageNames returns the names of the stages in insertion order.
func (p *Pipeline) StageNames() []string {
	p.mux.Lock()
	defer p.mux.Unlock()

	names := make([]string, 0, len(p.stages))
	for _, stage := range p.stages {
		names = append(names, stage.Name())
	}

	return names
}

// Init initialises the stages in insertion order, stopping at the first failure.
func (p *Pipeline) Init(ctx context.Context) error {
	for _, stage := range p.stages {
		if err := stage.Init(ctx); err != nil {
			p.l.Error("failed to init stage", err, "stage", stage.Name())
			return err
		}

		p.l.Debug("stage initialised", "stage", stage.Name())
	}

	return nil
}

func (p *Pipeline) Run(ctx context.Context) {
	p.mux.Lock()
	defer p.mux.Unlock()

	if p.isRunning {
		return
	}
	p.isRunning = true

	p.wg.Add(len(p.stages))

	for _, stage := range p.stages {
		go func() {
			defer p.wg.Done()
			stage.Run(ctx)
		}()
	}

	p.l.Info("pipeline running", "stages", len(p.stages))
}

// Stop stops the stages in insertion order and waits for them to return.
func (p *Pipeline) Stop() {
	for _, stage := range p.stages {
		stage.Stop()
	}

	p.wg.Wait()

	p.mux.Lock()
	p.isRunning = false
	p.mux.Unlock()

	p.l.Info("pipeline stopped")
}
