// Package cannelloni implements the cannelloni CAN-over-UDP wire format.
//
// A frame is a 5 bytes header (version, op code, sequence number and the
// big endian message count) followed by the messages. Each message carries
// the big endian CAN ID with its flag bits, the data length and the data.
// RTR messages carry no data.
package cannelloni

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/squadracorsepolito/canweb/can"
)

const (
	// Version is the protocol version written by [NewFrame].
	Version uint8 = 2

	// OPCodeData is the op code of frames carrying CAN messages.
	OPCodeData uint8 = 0

	// MaxDatagramSize is the largest UDP payload a frame may span.
	MaxDatagramSize = 1474

	headerSize = 5

	canFDFlag = 0x80
)

var (
	ErrShortBuffer  = errors.New("cannelloni: not enough data")
	ErrNotDataFrame = errors.New("cannelloni: not a data frame")
)

// FrameMessage is a single CAN message inside a [Frame].
type FrameMessage struct {
	// CANID is the CAN ID including the EFF/RTR/ERR flag bits.
	CANID      uint32
	DataLen    uint8
	CANFDFlags uint8
	Data       []byte
}

// NewFrameMessage returns the message encoding raw.
func NewFrameMessage(raw can.Raw) *FrameMessage {
	msg := &FrameMessage{
		CANID:   raw.CANID(),
		DataLen: raw.DLC,
	}

	if !raw.RTR {
		msg.DataLen = uint8(len(raw.Data))
		msg.Data = raw.Data
	}

	return msg
}

// Raw converts the message into the bus independent representation.
func (fm *FrameMessage) Raw() can.Raw {
	return can.RawFromCANID(fm.CANID, fm.DataLen, fm.Data)
}

func (fm *FrameMessage) isRTR() bool {
	return fm.CANID&can.FlagRTR != 0
}

func (fm *FrameMessage) size() int {
	size := 5
	if fm.CANFDFlags != 0 {
		size++
	}

	if !fm.isRTR() {
		size += len(fm.Data)
	}

	return size
}

func (fm *FrameMessage) encode(buf []byte) int {
	binary.BigEndian.PutUint32(buf[0:4], fm.CANID)

	n := 5
	if fm.CANFDFlags != 0 {
		buf[4] = fm.DataLen | canFDFlag
		buf[5] = fm.CANFDFlags
		n++
	} else {
		buf[4] = fm.DataLen
	}

	if !fm.isRTR() {
		n += copy(buf[n:], fm.Data)
	}

	return n
}

// Frame is a cannelloni frame.
type Frame struct {
	Version        uint8
	OPCode         uint8
	SequenceNumber uint8
	Messages       []*FrameMessage
}

// NewFrame returns an empty data frame.
func NewFrame(sequenceNumber uint8) *Frame {
	return &Frame{
		Version:        Version,
		OPCode:         OPCodeData,
		SequenceNumber: sequenceNumber,
	}
}

// AddMessage appends msg to the frame.
func (f *Frame) AddMessage(msg *FrameMessage) {
	f.Messages = append(f.Messages, msg)
}

// Encode returns the wire representation of the frame.
func (f *Frame) Encode() []byte {
	size := headerSize
	for _, msg := range f.Messages {
		size += msg.size()
	}

	buf := make([]byte, size)

	buf[0] = f.Version
	buf[1] = f.OPCode
	buf[2] = f.SequenceNumber
	binary.BigEndian.PutUint16(buf[3:5], uint16(len(f.Messages)))

	pos := headerSize
	for _, msg := range f.Messages {
		pos += msg.encode(buf[pos:])
	}

	return buf
}

// DecodeFrame parses buf. The data of the returned messages is copied,
// so buf can be reused.
func DecodeFrame(buf []byte) (*Frame, error) {
	if len(buf) < headerSize {
		return nil, ErrShortBuffer
	}

	f := &Frame{
		Version:        buf[0],
		OPCode:         buf[1],
		SequenceNumber: buf[2],
	}

	if f.OPCode != OPCodeData {
		return nil, fmt.Errorf("%w: op code %d", ErrNotDataFrame, f.OPCode)
	}

	messageCount := int(binary.BigEndian.Uint16(buf[3:5]))
	f.Messages = make([]*FrameMessage, 0, messageCount)

	pos := headerSize
	for idx := range messageCount {
		msg, n, err := decodeFrameMessage(buf[pos:])
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", idx, err)
		}

		f.Messages = append(f.Messages, msg)
		pos += n
	}

	return f, nil
}

func decodeFrameMessage(buf []byte) (*FrameMessage, int, error) {
	if len(buf) < 5 {
		return nil, 0, ErrShortBuffer
	}

	msg := &FrameMessage{
		CANID: binary.BigEndian.Uint32(buf[0:4]),
	}

	n := 5
	dataLen := buf[4]
	if dataLen&canFDFlag != 0 {
		if len(buf) < 6 {
			return nil, 0, ErrShortBuffer
		}

		msg.DataLen = dataLen &^ canFDFlag
		msg.CANFDFlags = buf[5]
		n++
	} else {
		msg.DataLen = dataLen
	}

	if msg.isRTR() {
		return msg, n, nil
	}

	end := n + int(msg.DataLen)
	if len(buf) < end {
		return nil, 0, ErrShortBuffer
	}

	msg.Data = make([]byte, msg.DataLen)
	copy(msg.Data, buf[n:end])

	return msg, end, nil
}
