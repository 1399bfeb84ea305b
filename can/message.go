package can

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Payload is the data field of a CAN frame.
// It is encoded in JSON and CBOR as an array of numbers instead of a byte string.
type Payload []byte

func (p Payload) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("[]"), nil
	}

	var sb strings.Builder
	sb.Grow(len(p)*4 + 2)

	sb.WriteByte('[')
	for idx, b := range p {
		if idx > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", b)
	}
	sb.WriteByte(']')

	return []byte(sb.String()), nil
}

func (p *Payload) UnmarshalJSON(buf []byte) error {
	var values []uint16
	if err := json.Unmarshal(buf, &values); err != nil {
		return err
	}

	return p.setValues(values)
}

func (p Payload) MarshalCBOR() ([]byte, error) {
	values := make([]uint16, len(p))
	for idx, b := range p {
		values[idx] = uint16(b)
	}

	return cbor.Marshal(values)
}

func (p *Payload) UnmarshalCBOR(buf []byte) error {
	var values []uint16
	if err := cbor.Unmarshal(buf, &values); err != nil {
		return err
	}

	return p.setValues(values)
}

func (p *Payload) setValues(values []uint16) error {
	res := make(Payload, len(values))
	for idx, val := range values {
		if val > 0xff {
			return fmt.Errorf("payload byte %d out of range: %d", idx, val)
		}
		res[idx] = byte(val)
	}

	*p = res
	return nil
}

// Message is the canonical record of a CAN frame read from the bus.
// It is created once by [Normalize] and must be treated as read-only afterwards,
// since the same instance is shared between the history and every subscriber.
// For remote frames Data is zeroed and its length is the requested length.
type Message struct {
	ID         uint32    `json:"id"`
	Data       Payload   `json:"data"`
	IsExtended bool      `json:"is_extended"`
	IsError    bool      `json:"is_error"`
	IsRTR      bool      `json:"is_rtr"`
	Timestamp  time.Time `json:"timestamp"`
}

// Len returns the data length code of the frame.
// For remote frames it is the requested length.
func (m *Message) Len() int {
	return len(m.Data)
}

func (m *Message) String() string {
	kind := "data"
	switch {
	case m.IsError:
		kind = "error"
	case m.IsRTR:
		kind = "remote"
	}

	idFmt := "%03X"
	if m.IsExtended {
		idFmt = "%08X"
	}

	return fmt.Sprintf("%s -> CANID: "+idFmt+", Kind: %s, DataLen: %d, Data: % X",
		m.Timestamp.Format(time.StampMilli), m.ID, kind, len(m.Data), []byte(m.Data))
}
