// Package signals decodes the payload of CAN messages into signals
// described by a DBC file.
package signals

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/squadracorsepolito/acmelib"
	"github.com/squadracorsepolito/canweb/can"
)

// Signal value types.
const (
	TypeFlag  = "flag"
	TypeInt   = "int"
	TypeUint  = "uint"
	TypeFloat = "float"
	TypeEnum  = "enum"
)

type Signal struct {
	Name     string `json:"name"`
	RawValue int64  `json:"raw_value"`
	Type     string `json:"type"`
	Value    any    `json:"value"`
}

// Message is a CAN message with its decoded signals.
type Message struct {
	ID        uint32    `json:"id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Signals   []Signal  `json:"signals"`
}

type layout struct {
	name   string
	decode func([]byte) []*acmelib.SignalDecoding
}

// Decoder maps CAN ids to message layouts.
type Decoder struct {
	m map[uint32]layout
}

func NewDecoder(messages []*acmelib.Message) *Decoder {
	m := make(map[uint32]layout, len(messages))

	for _, msg := range messages {
		m[uint32(msg.GetCANID())] = layout{
			name:   msg.Name(),
			decode: msg.SignalLayout().Decode,
		}
	}

	return &Decoder{
		m: m,
	}
}

// LoadDBC imports the messages sent by every node of the DBC file at path.
func LoadDBC(path string) (*Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	busName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	bus, err := acmelib.ImportDBCFile(busName, f)
	if err != nil {
		return nil, fmt.Errorf("import dbc %s: %w", path, err)
	}

	messages := []*acmelib.Message{}
	for _, nodeInt := range bus.NodeInterfaces() {
		messages = append(messages, nodeInt.SentMessages()...)
	}

	return NewDecoder(messages), nil
}

// Len returns the number of known messages.
func (d *Decoder) Len() int {
	return len(d.m)
}

// Decode decodes msg. It reports false when the id is unknown
// or the frame carries no data (error and remote frames).
func (d *Decoder) Decode(msg *can.Message) (*Message, bool) {
	if msg.IsError || msg.IsRTR {
		return nil, false
	}

	l, ok := d.m[msg.ID]
	if !ok {
		return nil, false
	}

	decodings := l.decode(msg.Data)

	res := &Message{
		ID:        msg.ID,
		Name:      l.name,
		Timestamp: msg.Timestamp,
		Signals:   make([]Signal, 0, len(decodings)),
	}

	for _, dec := range decodings {
		sig := Signal{
			Name:     dec.Signal.Name(),
			RawValue: int64(dec.RawValue),
		}

		switch dec.ValueType {
		case acmelib.SignalValueTypeFlag:
			sig.Type = TypeFlag
			sig.Value = dec.ValueAsFlag()

		case acmelib.SignalValueTypeInt:
			sig.Type = TypeInt
			sig.Value = dec.ValueAsInt()

		case acmelib.SignalValueTypeUint:
			sig.Type = TypeUint
			sig.Value = dec.ValueAsUint()

		case acmelib.SignalValueTypeFloat:
			sig.Type = TypeFloat
			sig.Value = dec.ValueAsFloat()

		case acmelib.SignalValueTypeEnum:
			sig.Type = TypeEnum
			sig.Value = dec.ValueAsEnum()
		}

		res.Signals = append(res.Signals, sig)
	}

	return res, true
}

// DecodeAll decodes the known messages of msgs, preserving their order.
func (d *Decoder) DecodeAll(msgs []*can.Message) []*Message {
	res := []*Message{}
	for _, msg := range msgs {
		if decoded, ok := d.Decode(msg); ok {
			res = append(res, decoded)
		}
	}
	return res
}
