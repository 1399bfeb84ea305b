package session

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
	"github.com/squadracorsepolito/canweb/can"
)

// Codec encodes the messages delivered to a consumer.
type Codec interface {
	// Name is the WebSocket subprotocol selecting the codec.
	Name() string
	// Kind is the frame kind encoded messages are written as.
	Kind() Kind
	Encode(msg *can.Message) ([]byte, error)
}

// JSONCodec encodes messages as JSON text frames.
type JSONCodec struct{}

func (JSONCodec) Name() string {
	return "json"
}

func (JSONCodec) Kind() Kind {
	return KindText
}

func (JSONCodec) Encode(msg *can.Message) ([]byte, error) {
	return json.Marshal(msg)
}

// CBORCodec encodes messages as CBOR binary frames.
// Timestamps are RFC 3339 strings, as in JSON.
type CBORCodec struct {
	em cbor.EncMode
}

func NewCBORCodec() (*CBORCodec, error) {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return nil, err
	}

	return &CBORCodec{em: em}, nil
}

func (c *CBORCodec) Name() string {
	return "cbor"
}

func (c *CBORCodec) Kind() Kind {
	return KindBinary
}

func (c *CBORCodec) Encode(msg *can.Message) ([]byte, error) {
	return c.em.Marshal(msg)
}
