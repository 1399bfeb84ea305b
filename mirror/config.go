package mirror

import (
	"time"

	"github.com/segmentio/kafka-go"
)

type Config struct {
	Brokers []string
	Topic   string

	// The balancer used to distribute messages across partitions.
	// The default is to hash the key, so frames with the same id
	// land on the same partition.
	Balancer kafka.Balancer

	// Limit on how many attempts will be made to deliver a message.
	MaxAttempts int

	// Limit on how many messages will be buffered before being sent to a
	// partition.
	BatchSize int

	// Time limit on how often incomplete message batches will be flushed.
	BatchTimeout time.Duration

	// Timeout for write operation performed by the Writer.
	WriteTimeout time.Duration

	// Number of acknowledges from partition replicas required before receiving
	// a response to a produce request.
	RequiredAcks kafka.RequiredAcks

	// Async makes writes never block. Delivery errors are only logged.
	Async bool

	Compression kafka.Compression

	// AllowAutoTopicCreation notifies writer to create topic if missing.
	AllowAutoTopicCreation bool
}

func NewDefaultConfig() *Config {
	return &Config{
		Brokers:                []string{"localhost:9092"},
		Topic:                  "canweb.frames",
		Balancer:               &kafka.Hash{},
		MaxAttempts:            10,
		BatchSize:              100,
		BatchTimeout:           100 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireNone,
		Async:                  true,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
	}
}
