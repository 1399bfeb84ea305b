// Package config loads the process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Prefix is prepended to every environment variable name.
const Prefix = "CANWEB_"

// Supported bus drivers.
const (
	DriverSocketCAN  = "socketcan"
	DriverCannelloni = "cannelloni"
	DriverSimulator  = "sim"
	DriverKafka      = "kafka"
)

var (
	ErrParsingConfig = errors.New("failed to parse configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config is the process configuration.
type Config struct {
	Addr string `env:"ADDR" envDefault:"0.0.0.0:8080"`

	Driver           string        `env:"DRIVER" envDefault:"socketcan"`
	CANInterface     string        `env:"CAN_INTERFACE" envDefault:"can0"`
	CannelloniListen string        `env:"CANNELLONI_LISTEN" envDefault:"0.0.0.0:20000"`
	CannelloniPeer   string        `env:"CANNELLONI_PEER"`
	SimInterval      time.Duration `env:"SIM_INTERVAL" envDefault:"1s"`

	HistorySize    int `env:"HISTORY_SIZE" envDefault:"100"`
	BroadcastQueue int `env:"BROADCAST_QUEUE" envDefault:"100"`

	StaticDir string `env:"STATIC_DIR" envDefault:"./static"`
	DBCFile   string `env:"DBC_FILE"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"canweb.frames"`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"canweb"`

	OTelEnabled bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTelService string `env:"OTEL_SERVICE" envDefault:"canweb"`

	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// Load reads the optional .env file of the working directory,
// then parses and validates the environment.
func Load() (*Config, error) {
	// The .env file is optional
	_ = godotenv.Load()

	return Parse(envMap(os.Environ()))
}

// Parse parses and validates the given environment.
func Parse(environment map[string]string) (*Config, error) {
	cfg := &Config{}

	err := env.ParseWithOptions(cfg, env.Options{
		Prefix:      Prefix,
		Environment: environment,
	})
	if err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the consistency of the configuration.
func (c *Config) Validate() error {
	errs := []error{}

	switch c.Driver {
	case DriverSocketCAN:
		if c.CANInterface == "" {
			errs = append(errs, errors.New("CAN interface is required by the socketcan driver"))
		}
	case DriverCannelloni:
		if c.CannelloniListen == "" {
			errs = append(errs, errors.New("listen address is required by the cannelloni driver"))
		}
	case DriverSimulator:
		if c.SimInterval <= 0 {
			errs = append(errs, fmt.Errorf("simulator interval must be positive, got %s", c.SimInterval))
		}
	case DriverKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("kafka brokers are required by the kafka driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown driver %q", c.Driver))
	}

	if c.HistorySize < 1 {
		errs = append(errs, fmt.Errorf("history size must be at least 1, got %d", c.HistorySize))
	}

	if c.BroadcastQueue < 1 {
		errs = append(errs, fmt.Errorf("broadcast queue size must be at least 1, got %d", c.BroadcastQueue))
	}

	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("kafka topic is required when brokers are set"))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}

	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}

	return nil
}

// KafkaEnabled reports whether frames are mirrored to Kafka.
// Frames replayed from Kafka are never mirrored back to it.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.Driver != DriverKafka
}

func envMap(environ []string) map[string]string {
	res := make(map[string]string, len(environ))
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if ok {
			res[key] = value
		}
	}
	return res
}
