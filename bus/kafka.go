package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/segmentio/kafka-go"
	"github.com/squadracorsepolito/canweb/can"
	"github.com/squadracorsepolito/canweb/internal"
	"go.opentelemetry.io/otel/attribute"
)

type kafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Kafka is a read-only driver replaying the frames mirrored
// to a kafka topic by another gateway.
type Kafka struct {
	tel *internal.Telemetry

	topic  string
	reader kafkaReader

	ctx    context.Context
	cancel context.CancelFunc

	// Telemetry metrics
	receivedBytes atomic.Int64
}

func OpenKafka(cfg *KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka: brokers and topic are required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: cfg.StartOffset,
		MaxWait:     cfg.MaxWait,
		MaxAttempts: cfg.MaxAttempts,
	})

	return newKafka(cfg.Topic, reader), nil
}

func newKafka(topic string, reader kafkaReader) *Kafka {
	ctx, cancel := context.WithCancel(context.Background())

	k := &Kafka{
		tel: internal.NewTelemetry("bus", "kafka"),

		topic:  topic,
		reader: reader,

		ctx:    ctx,
		cancel: cancel,
	}

	k.initMetrics()

	return k
}

func (k *Kafka) initMetrics() {
	k.tel.NewCounter("received_bytes", func() int64 { return k.receivedBytes.Load() })
}

func (k *Kafka) Name() string {
	return "kafka:" + k.topic
}

func (k *Kafka) ReadOnly() bool {
	return true
}

func (k *Kafka) Read() (can.Raw, error) {
	msg, err := k.reader.ReadMessage(k.ctx)
	if err != nil {
		if k.ctx.Err() != nil {
			return can.Raw{}, ErrClosed
		}
		return can.Raw{}, fmt.Errorf("kafka: read: %w", err)
	}

	k.receivedBytes.Add(int64(len(msg.Value)))

	ctx := k.ctx
	if len(msg.Headers) > 0 {
		ctx = k.tel.ExtractTrace(ctx, internal.NewKafkaHeaderCarrier(msg.Headers...))
	}

	_, span := k.tel.NewTrace(ctx, "handle kafka message")
	defer span.End()

	span.SetAttributes(attribute.Int("value_size", len(msg.Value)), attribute.Int64("offset", msg.Offset))

	raw, err := rawFromKafka(msg)
	if err != nil {
		span.RecordError(err)
		return can.Raw{}, err
	}

	return raw, nil
}

func (k *Kafka) Write(_ can.Raw) error {
	return ErrReadOnly
}

func (k *Kafka) Close() error {
	k.cancel()
	return k.reader.Close()
}

// rawFromKafka decodes a message written by the mirror.
func rawFromKafka(msg kafka.Message) (can.Raw, error) {
	rec := can.Message{}
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		return can.Raw{}, fmt.Errorf("%w: kafka offset %d: %w", can.ErrInvalidFrame, msg.Offset, err)
	}

	raw := can.Raw{
		ID:       rec.ID,
		DLC:      uint8(rec.Len()),
		Extended: rec.IsExtended,
		RTR:      rec.IsRTR,
		Error:    rec.IsError,
	}

	if !rec.IsRTR {
		raw.Data = rec.Data
	}

	return raw, nil
}
