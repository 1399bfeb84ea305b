package ingest

import "time"

type Config struct {
	// ReadErrorBackoff is the pause after a transient read error.
	ReadErrorBackoff time.Duration

	// MaxConsecutiveErrors is the number of consecutive transient read errors
	// after which the transport is considered gone.
	// Zero disables the escalation.
	MaxConsecutiveErrors int

	// StatsInterval is the period of the throughput log.
	// Zero disables it.
	StatsInterval time.Duration
}

func NewDefaultConfig() *Config {
	return &Config{
		ReadErrorBackoff:     10 * time.Millisecond,
		MaxConsecutiveErrors: 1000,
		StatsInterval:        time.Second,
	}
}
