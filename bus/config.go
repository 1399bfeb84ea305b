package bus

import (
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/squadracorsepolito/canweb/can"
)

// SocketCANConfig configures the SocketCAN driver.
type SocketCANConfig struct {
	Interface string

	// ErrorFrames enables the reception of error frames.
	ErrorFrames bool
}

func NewDefaultSocketCANConfig() *SocketCANConfig {
	return &SocketCANConfig{
		Interface:   "can0",
		ErrorFrames: true,
	}
}

// CannelloniConfig configures the cannelloni driver.
type CannelloniConfig struct {
	ListenAddr string

	// PeerAddr is where written frames are sent.
	// When empty the driver is read-only.
	PeerAddr string
}

func NewDefaultCannelloniConfig() *CannelloniConfig {
	return &CannelloniConfig{
		ListenAddr: "0.0.0.0:20000",
	}
}

// SimulatorConfig configures the simulator driver.
type SimulatorConfig struct {
	Interval time.Duration
	Frame    can.Raw
}

func NewDefaultSimulatorConfig() *SimulatorConfig {
	return &SimulatorConfig{
		Interval: time.Second,
		Frame: can.Raw{
			ID:   0x277,
			DLC:  4,
			Data: []byte{1, 2, 3, 4},
		},
	}
}

// KafkaConfig configures the kafka replay driver.
type KafkaConfig struct {
	Brokers []string
	Topic   string

	// GroupID holds the consumer group id.
	GroupID string

	// StartOffset determines from whence the consumer group should begin
	// consuming when it finds a partition without a committed offset.
	StartOffset int64

	// Maximum amount of time to wait for new data to come when fetching batches
	// of messages from kafka.
	MaxWait time.Duration

	// Limit of how many attempts to connect will be made before returning the error.
	MaxAttempts int
}

func NewDefaultKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers:     []string{"localhost:9092"},
		Topic:       "canweb.frames",
		GroupID:     "canweb",
		StartOffset: kafka.LastOffset,
		MaxWait:     500 * time.Millisecond,
		MaxAttempts: 3,
	}
}
