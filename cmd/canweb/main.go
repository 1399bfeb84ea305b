package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/squadracorsepolito/canweb"
	"github.com/squadracorsepolito/canweb/api"
	"github.com/squadracorsepolito/canweb/broadcast"
	"github.com/squadracorsepolito/canweb/bus"
	"github.com/squadracorsepolito/canweb/config"
	"github.com/squadracorsepolito/canweb/history"
	"github.com/squadracorsepolito/canweb/ingest"
	"github.com/squadracorsepolito/canweb/internal"
	"github.com/squadracorsepolito/canweb/mirror"
	"github.com/squadracorsepolito/canweb/session"
	"github.com/squadracorsepolito/canweb/shutdown"
	"github.com/squadracorsepolito/canweb/signals"
	"github.com/squadracorsepolito/canweb/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancelCtx := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelCtx()

	l := internal.NewLogger("cmd", "canweb")

	cfg, err := config.Load()
	if err != nil {
		l.Error("failed to load configuration", err)
		return 1
	}

	internal.SetLogLevel(cfg.LogLevel)

	if cfg.OTelEnabled {
		telCfg := telemetry.NewDefaultConfig()
		telCfg.ServiceName = cfg.OTelService

		providers, err := telemetry.Init(ctx, telCfg)
		if err != nil {
			l.Error("failed to init telemetry", err)
			return 1
		}

		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()

			if err := providers.Close(closeCtx); err != nil {
				l.Error("failed to close telemetry", err)
			}
		}()
	}

	driver, err := openDriver(cfg)
	if err != nil {
		l.Error("failed to open bus driver", err, "driver", cfg.Driver)
		return 1
	}

	var decoder *signals.Decoder
	if cfg.DBCFile != "" {
		decoder, err = signals.LoadDBC(cfg.DBCFile)
		if err != nil {
			driver.Close()
			l.Error("failed to load dbc file", err, "path", cfg.DBCFile)
			return 1
		}

		l.Info("dbc file loaded", "path", cfg.DBCFile, "messages", decoder.Len())
	}

	store := history.New(cfg.HistorySize)
	bc := broadcast.New(cfg.BroadcastQueue)

	sd := shutdown.New()
	stopWatch := sd.WatchContext(ctx)
	defer stopWatch()

	loop := ingest.New(driver, store, bc, sd, nil)

	pipeline, err := buildPipeline(cfg, loop, bc)
	if err != nil {
		driver.Close()
		l.Error("failed to build pipeline", err)
		return 1
	}

	l.Info("pipeline built", "stages", pipeline.StageNames())

	if err := pipeline.Init(ctx); err != nil {
		driver.Close()
		l.Error("failed to init pipeline", err)
		return 1
	}

	sessions := session.NewHandler(nil)

	httpAPI, err := api.New(api.Options{
		Store:       store,
		Broadcaster: bc,
		Driver:      driver,
		Sessions:    sessions,
		Decoder:     decoder,
		Counters:    loop.Counters,
		StaticDir:   cfg.StaticDir,
	})
	if err != nil {
		driver.Close()
		l.Error("failed to create api", err)
		return 1
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpAPI.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	pipeline.Run(ctx)

	srvErrCh := make(chan error, 1)
	go func() {
		l.Info("http server listening", "addr", cfg.Addr, "driver", driver.Name())
		srvErrCh <- srv.ListenAndServe()
	}()

	exitCode := 0

	select {
	case <-ctx.Done():
		l.Info("shutdown requested")

	case <-loop.Done():
		if err := loop.Err(); err != nil {
			l.Error("bus is gone", err)
			exitCode = 1
		}

	case err := <-srvErrCh:
		if !errors.Is(err, http.ErrServerClosed) {
			l.Error("http server failed", err)
			exitCode = 1
		}
	}

	sd.Request()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("failed to shutdown http server", err)
	}

	// Closes the driver and waits for the ingestion loop
	pipeline.Stop()

	// Ends the remaining websocket sessions
	bc.Close()

	if err := loop.Err(); err != nil {
		exitCode = 1
	}

	l.Info("bye", "exit_code", exitCode)

	return exitCode
}

func buildPipeline(cfg *config.Config, loop *ingest.Loop, bc *broadcast.Broadcaster) (*canweb.Pipeline, error) {
	pipeline := canweb.NewPipeline()

	if err := pipeline.AddStage(ingest.NewStage(loop)); err != nil {
		return nil, fmt.Errorf("add ingest stage: %w", err)
	}

	if cfg.KafkaEnabled() {
		mirrorCfg := mirror.NewDefaultConfig()
		mirrorCfg.Brokers = cfg.KafkaBrokers
		mirrorCfg.Topic = cfg.KafkaTopic

		if err := pipeline.AddStage(mirror.NewStage(bc, mirrorCfg)); err != nil {
			return nil, fmt.Errorf("add mirror stage: %w", err)
		}
	}

	return pipeline, nil
}

func openDriver(cfg *config.Config) (bus.Driver, error) {
	switch cfg.Driver {
	case config.DriverSocketCAN:
		socketCfg := bus.NewDefaultSocketCANConfig()
		socketCfg.Interface = cfg.CANInterface

		drv, err := bus.OpenSocketCAN(socketCfg)
		if err != nil {
			return nil, err
		}
		return drv, nil

	case config.DriverCannelloni:
		cannelloniCfg := bus.NewDefaultCannelloniConfig()
		cannelloniCfg.ListenAddr = cfg.CannelloniListen
		cannelloniCfg.PeerAddr = cfg.CannelloniPeer

		drv, err := bus.OpenCannelloni(cannelloniCfg)
		if err != nil {
			return nil, err
		}
		return drv, nil

	case config.DriverSimulator:
		simCfg := bus.NewDefaultSimulatorConfig()
		simCfg.Interval = cfg.SimInterval

		return bus.NewSimulator(simCfg), nil

	case config.DriverKafka:
		kafkaCfg := bus.NewDefaultKafkaConfig()
		kafkaCfg.Brokers = cfg.KafkaBrokers
		kafkaCfg.Topic = cfg.KafkaTopic
		kafkaCfg.GroupID = cfg.KafkaGroupID

		drv, err := bus.OpenKafka(kafkaCfg)
		if err != nil {
			return nil, err
		}
		return drv, nil
	}

	return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
}
