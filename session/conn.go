package session

import "context"

// Kind is the kind of a WebSocket event.
type Kind uint8

const (
	KindText Kind = iota
	KindBinary
	KindPing
	KindPong
	KindClose
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindClose:
		return "close"
	default:
		return "unknown"
	}
}

// Close status codes used by the handler.
const (
	CloseNormal        uint16 = 1000
	CloseGoingAway     uint16 = 1001
	CloseInternalError uint16 = 1011
)

// Inbound is an event received from the consumer:
// a text, binary, ping or close frame.
type Inbound struct {
	Kind Kind
	Data []byte

	CloseCode   uint16
	CloseReason string
}

// Outbound is an event sent to the consumer:
// a text, binary, pong or close frame.
type Outbound struct {
	Kind Kind
	Data []byte

	CloseCode   uint16
	CloseReason string
}

// Conn is a bidirectional message connection with a consumer.
// Read is called by a single goroutine, Write by another one.
type Conn interface {
	Read(ctx context.Context) (Inbound, error)
	Write(ctx context.Context, msg Outbound) error
	Close(code uint16, reason string) error
}
