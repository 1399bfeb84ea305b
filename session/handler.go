// Package session serves live CAN traffic to WebSocket consumers.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/squadracorsepolito/canweb/broadcast"
	"github.com/squadracorsepolito/canweb/can"
	"github.com/squadracorsepolito/canweb/internal"
)

// ErrConsumerTransport wraps the read or write failure that ended a session.
var ErrConsumerTransport = errors.New("consumer transport error")

type Config struct {
	// WriteTimeout bounds every write to the consumer.
	WriteTimeout time.Duration
}

func NewDefaultConfig() *Config {
	return &Config{
		WriteTimeout: 5 * time.Second,
	}
}

// Handler runs consumer sessions.
type Handler struct {
	tel *internal.Telemetry

	cfg *Config

	// Telemetry metrics
	activeSessions atomic.Int64
	totalSessions  atomic.Int64
	sentMessages   atomic.Int64
	echoedMessages atomic.Int64
}

// NewHandler returns a session handler. A nil cfg means [NewDefaultConfig].
func NewHandler(cfg *Config) *Handler {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	h := &Handler{
		tel: internal.NewTelemetry("session", "websocket"),

		cfg: cfg,
	}

	h.initMetrics()

	return h
}

func (h *Handler) initMetrics() {
	h.tel.NewUpDownCounter("active_sessions", func() int64 { return h.activeSessions.Load() })
	h.tel.NewCounter("total_sessions", func() int64 { return h.totalSessions.Load() })
	h.tel.NewCounter("sent_messages", func() int64 { return h.sentMessages.Load() })
	h.tel.NewCounter("echoed_messages", func() int64 { return h.echoedMessages.Load() })
}

// ActiveSessions returns the number of sessions being served.
func (h *Handler) ActiveSessions() int64 {
	return h.activeSessions.Load()
}

type session struct {
	h *Handler

	id    string
	conn  Conn
	sub   *broadcast.Subscription
	codec Codec
}

// Serve runs a session until the consumer closes it, the transport fails,
// the subscription is closed or ctx is done.
//
// Inbound events and broadcast messages are handled in the order they
// become ready; when both are ready one is picked at random, so neither
// source can starve the other. Text and binary messages are echoed, pings
// are answered with a pong carrying the same payload and a close is
// acknowledged. Broadcast messages are encoded with codec (JSON when nil).
//
// The subscription is always closed when Serve returns. Transport failures
// are returned wrapped in [ErrConsumerTransport].
func (h *Handler) Serve(ctx context.Context, conn Conn, sub *broadcast.Subscription, codec Codec) error {
	if codec == nil {
		codec = JSONCodec{}
	}

	s := &session{
		h: h,

		id:    sub.ID(),
		conn:  conn,
		sub:   sub,
		codec: codec,
	}

	h.activeSessions.Add(1)
	h.totalSessions.Add(1)
	defer h.activeSessions.Add(-1)

	h.tel.LogInfo("session started", "session_id", s.id, "codec", codec.Name())

	err := s.run(ctx)

	stats := sub.Stats()
	if err != nil {
		h.tel.LogWarn("session ended", "session_id", s.id, "reason", err,
			"sent", stats.Sent, "dropped", stats.Dropped)
	} else {
		h.tel.LogInfo("session ended", "session_id", s.id,
			"sent", stats.Sent, "dropped", stats.Dropped)
	}

	return err
}

func (s *session) run(ctx context.Context) error {
	defer s.sub.Close()

	ctx, cancel := context.WithCancel(ctx)

	inboundCh := make(chan Inbound)
	readErrCh := make(chan error, 1)

	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.readLoop(ctx, inboundCh, readErrCh)
	}()

	closeCode, closeReason := CloseNormal, ""
	defer func() {
		cancel()
		s.conn.Close(closeCode, closeReason)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			closeCode, closeReason = CloseGoingAway, "server shutting down"
			return nil

		case err := <-readErrCh:
			closeCode, closeReason = CloseInternalError, "read failure"
			return fmt.Errorf("%w: read: %w", ErrConsumerTransport, err)

		case in := <-inboundCh:
			done, err := s.handleInbound(ctx, in)
			if err != nil {
				closeCode, closeReason = CloseInternalError, "write failure"
				return err
			}
			if done {
				return nil
			}

		case msg, ok := <-s.sub.C():
			if !ok {
				closeCode, closeReason = CloseGoingAway, "server shutting down"
				return nil
			}

			if err := s.deliver(ctx, msg); err != nil {
				closeCode, closeReason = CloseInternalError, "write failure"
				return err
			}
		}
	}
}

func (s *session) readLoop(ctx context.Context, inboundCh chan<- Inbound, errCh chan<- error) {
	for {
		in, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				errCh <- err
			}
			return
		}

		select {
		case inboundCh <- in:
		case <-ctx.Done():
			return
		}

		if in.Kind == KindClose {
			return
		}
	}
}

// handleInbound reacts to a consumer event.
// It reports whether the session is over.
func (s *session) handleInbound(ctx context.Context, in Inbound) (bool, error) {
	var out Outbound

	switch in.Kind {
	case KindText, KindBinary:
		s.h.echoedMessages.Add(1)
		out = Outbound{Kind: in.Kind, Data: in.Data}

	case KindPing:
		out = Outbound{Kind: KindPong, Data: in.Data}

	case KindClose:
		code := in.CloseCode
		if code == 0 {
			code = CloseNormal
		}

		s.h.tel.LogDebug("consumer closed the session", "session_id", s.id, "code", code, "reason", in.CloseReason)

		// A failed acknowledgement still ends the session normally
		if err := s.write(ctx, Outbound{Kind: KindClose, CloseCode: code, CloseReason: in.CloseReason}); err != nil {
			s.h.tel.LogDebug("failed to acknowledge close", "session_id", s.id, "reason", err)
		}

		return true, nil

	default:
		return false, nil
	}

	return false, s.write(ctx, out)
}

func (s *session) deliver(ctx context.Context, msg *can.Message) error {
	_, span := s.h.tel.NewTrace(ctx, "deliver message")
	defer span.End()

	data, err := s.codec.Encode(msg)
	if err != nil {
		// Not a transport failure, the message is skipped
		s.h.tel.LogError("failed to encode message", err, "session_id", s.id)
		return nil
	}

	if err := s.write(ctx, Outbound{Kind: s.codec.Kind(), Data: data}); err != nil {
		span.RecordError(err)
		return err
	}

	s.h.sentMessages.Add(1)

	return nil
}

func (s *session) write(ctx context.Context, out Outbound) error {
	if s.h.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.h.cfg.WriteTimeout)
		defer cancel()
	}

	if err := s.conn.Write(ctx, out); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrConsumerTransport, out.Kind, err)
	}

	return nil
}
