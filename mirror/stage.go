// Package mirror copies the live CAN traffic to a Kafka topic.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/segmentio/kafka-go"
	"github.com/squadracorsepolito/canweb/broadcast"
	"github.com/squadracorsepolito/canweb/can"
	"github.com/squadracorsepolito/canweb/internal"
	"go.opentelemetry.io/otel/attribute"
)

// Writer is the subset of [kafka.Writer] used by the stage.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Stage is a broadcast subscriber writing every message to Kafka.
// Like any other subscriber it is lossy: when Kafka is slower than the bus
// the oldest pending messages are dropped.
type Stage struct {
	tel *internal.Telemetry

	cfg *Config

	bc     *broadcast.Broadcaster
	sub    *broadcast.Subscription
	writer Writer

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  atomic.Bool

	// Telemetry metrics
	deliveredMessages atomic.Int64
	failedMessages    atomic.Int64
}

func NewStage(bc *broadcast.Broadcaster, cfg *Config) *Stage {
	return &Stage{
		tel: internal.NewTelemetry("mirror", "kafka"),

		cfg: cfg,

		bc: bc,

		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// SetWriter replaces the kafka writer created by Init.
func (s *Stage) SetWriter(writer Writer) {
	s.writer = writer
}

func (s *Stage) Name() string {
	return "mirror"
}

func (s *Stage) Init(_ context.Context) error {
	s.initMetrics()

	if s.writer == nil {
		s.writer = s.newWriter()
	}

	sub, err := s.bc.Subscribe()
	if err != nil {
		return err
	}
	s.sub = sub

	s.tel.LogInfo("initialised", "brokers", s.cfg.Brokers, "topic", s.cfg.Topic)

	return nil
}

func (s *Stage) initMetrics() {
	s.tel.NewCounter("delivered_messages", func() int64 { return s.deliveredMessages.Load() })
	s.tel.NewCounter("failed_messages", func() int64 { return s.failedMessages.Load() })
}

func (s *Stage) newWriter() *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(s.cfg.Brokers...),
		Topic:                  s.cfg.Topic,
		Balancer:               s.cfg.Balancer,
		MaxAttempts:            s.cfg.MaxAttempts,
		BatchSize:              s.cfg.BatchSize,
		BatchTimeout:           s.cfg.BatchTimeout,
		WriteTimeout:           s.cfg.WriteTimeout,
		RequiredAcks:           s.cfg.RequiredAcks,
		Async:                  s.cfg.Async,
		Compression:            s.cfg.Compression,
		AllowAutoTopicCreation: s.cfg.AllowAutoTopicCreation,

		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				s.failedMessages.Add(int64(len(msgs)))
				s.tel.LogError("failed to deliver messages", err, "count", len(msgs))
			}
		},
	}
}

func (s *Stage) Run(ctx context.Context) {
	s.started.Store(true)
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return

		case msg, ok := <-s.sub.C():
			if !ok {
				return
			}

			if err := s.deliver(ctx, msg); err != nil {
				s.failedMessages.Add(1)
				s.tel.LogError("failed to deliver message", err, "can_id", msg.ID)
			}
		}
	}
}

func (s *Stage) deliver(ctx context.Context, msg *can.Message) error {
	ctx, span := s.tel.NewTrace(ctx, "deliver kafka message")
	defer span.End()

	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	headers := internal.NewKafkaHeaderCarrier(
		kafka.Header{Key: "can_id", Value: []byte(strconv.FormatUint(uint64(msg.ID), 10))},
	)
	s.tel.InjectTrace(ctx, headers)

	kafkaMsg := kafka.Message{
		Key:     []byte(MessageKey(msg)),
		Value:   value,
		Time:    msg.Timestamp,
		Headers: headers.Headers(),
	}

	span.SetAttributes(attribute.String("key", string(kafkaMsg.Key)))

	if err := s.writer.WriteMessages(ctx, kafkaMsg); err != nil {
		span.RecordError(err)
		return err
	}

	s.deliveredMessages.Add(1)

	return nil
}

func (s *Stage) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})

	if s.started.Load() {
		<-s.doneCh
	}

	if s.sub != nil {
		s.sub.Close()
	}

	if s.writer != nil {
		if err := s.writer.Close(); err != nil {
			s.tel.LogError("failed to close writer", err)
		}
	}

	s.tel.LogInfo("stopped", "delivered", s.deliveredMessages.Load(), "failed", s.failedMessages.Load())
}

// MessageKey is the kafka key of msg: its hex id, zero padded
// to 3 digits for standard frames and to 8 for extended ones.
func MessageKey(msg *can.Message) string {
	if msg.IsExtended {
		return fmt.Sprintf("0x%08X", msg.ID)
	}
	return fmt.Sprintf("0x%03X", msg.ID)
}
