package main

import (
	"testing"

	"github.com/squadracorsepolito/canweb/broadcast"
	"github.com/squadracorsepolito/canweb/bus"
	"github.com/squadracorsepolito/canweb/config"
	"github.com/squadracorsepolito/canweb/history"
	"github.com/squadracorsepolito/canweb/ingest"
	"github.com/squadracorsepolito/canweb/shutdown"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoop(t *testing.T) (*ingest.Loop, *broadcast.Broadcaster) {
	t.Helper()

	driver := bus.NewSimulator(bus.NewDefaultSimulatorConfig())
	t.Cleanup(func() { driver.Close() })

	bc := broadcast.New(broadcast.DefaultQueueSize)
	t.Cleanup(bc.Close)

	return ingest.New(driver, history.New(history.DefaultCapacity), bc, shutdown.New(), nil), bc
}

func Test_buildPipeline(t *testing.T) {
	assert := assert.New(t)

	cfg, err := config.Parse(map[string]string{"CANWEB_DRIVER": "sim"})
	require.NoError(t, err)

	loop, bc := newTestLoop(t)

	pipeline, err := buildPipeline(cfg, loop, bc)
	require.NoError(t, err)
	assert.Equal([]string{"ingest"}, pipeline.StageNames())
}

func Test_buildPipeline_Mirror(t *testing.T) {
	assert := assert.New(t)

	cfg, err := config.Parse(map[string]string{
		"CANWEB_DRIVER":        "sim",
		"CANWEB_KAFKA_BROKERS": "localhost:9092",
	})
	require.NoError(t, err)

	loop, bc := newTestLoop(t)

	pipeline, err := buildPipeline(cfg, loop, bc)
	require.NoError(t, err)
	assert.Equal([]string{"ingest", "mirror"}, pipeline.StageNames())
}

func Test_openDriver(t *testing.T) {
	assert := assert.New(t)

	cfg, err := config.Parse(map[string]string{"CANWEB_DRIVER": "sim"})
	require.NoError(t, err)

	driver, err := openDriver(cfg)
	require.NoError(t, err)
	defer driver.Close()

	assert.IsType(&bus.Simulator{}, driver)

	cfg.Driver = "lin"
	_, err = openDriver(cfg)
	assert.Error(err)
}
