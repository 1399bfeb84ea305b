package cannelloni

import (
	"encoding/binary"
	"testing"

	"github.com/squadracorsepolito/canweb/can"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getEncodedFrame(msgNum int) []byte {
	buf := make([]byte, 5)

	buf[0] = 1
	buf[1] = 0
	buf[2] = 1
	binary.BigEndian.PutUint16(buf[3:5], uint16(msgNum))

	for canID := range msgNum {
		msgBuf := make([]byte, 13)

		binary.BigEndian.PutUint32(msgBuf[0:4], uint32(canID))
		msgBuf[4] = 8
		copy(msgBuf[5:], []byte{0x1, 0x2, 0x3, 0x4, 0x5, 0x6, 0x7, 0x8})

		buf = append(buf, msgBuf...)
	}

	return buf
}

func Test_DecodeFrame(t *testing.T) {
	assert := assert.New(t)

	buf := getEncodedFrame(113)

	f, err := DecodeFrame(buf)
	require.NoError(t, err)

	assert.Equal(uint8(1), f.SequenceNumber)
	assert.Len(f.Messages, 113)

	for idx, msg := range f.Messages {
		assert.Equal(uint32(idx), msg.CANID)
		assert.Equal(uint8(8), msg.DataLen)
		assert.Equal([]byte{0x1, 0x2, 0x3, 0x4, 0x5, 0x6, 0x7, 0x8}, msg.Data)
	}

	// Decoded data must not alias the buffer
	buf[5+5] = 0xff
	assert.Equal(byte(0x1), f.Messages[0].Data[0])
}

func Test_DecodeFrame_Truncated(t *testing.T) {
	assert := assert.New(t)

	_, err := DecodeFrame([]byte{1, 0, 0})
	assert.ErrorIs(err, ErrShortBuffer)

	buf := getEncodedFrame(2)
	_, err = DecodeFrame(buf[:len(buf)-3])
	assert.ErrorIs(err, ErrShortBuffer)

	// Message count larger than the carried messages
	buf = getEncodedFrame(1)
	binary.BigEndian.PutUint16(buf[3:5], 2)
	_, err = DecodeFrame(buf)
	assert.ErrorIs(err, ErrShortBuffer)
}

func Test_DecodeFrame_NotData(t *testing.T) {
	buf := getEncodedFrame(1)
	buf[1] = 1

	_, err := DecodeFrame(buf)
	assert.ErrorIs(t, err, ErrNotDataFrame)
}

func Test_Frame_RoundTrip(t *testing.T) {
	assert := assert.New(t)

	raws := []can.Raw{
		{ID: 0x123, DLC: 3, Data: []byte{1, 2, 3}},
		{ID: 0x1abcdef, DLC: 2, Data: []byte{0xaa, 0xbb}, Extended: true},
		{ID: 0x7ff, DLC: 4, RTR: true},
	}

	f := NewFrame(42)
	for _, raw := range raws {
		f.AddMessage(NewFrameMessage(raw))
	}

	decoded, err := DecodeFrame(f.Encode())
	require.NoError(t, err)

	assert.Equal(Version, decoded.Version)
	assert.Equal(uint8(42), decoded.SequenceNumber)
	require.Len(t, decoded.Messages, len(raws))

	for idx, raw := range raws {
		got := decoded.Messages[idx].Raw()

		assert.Equal(raw.ID, got.ID)
		assert.Equal(raw.DLC, got.DLC)
		assert.Equal(raw.Extended, got.Extended)
		assert.Equal(raw.RTR, got.RTR)

		if raw.RTR {
			assert.Empty(got.Data)
		} else {
			assert.Equal(raw.Data, got.Data)
		}
	}
}

func Test_Frame_CANFD(t *testing.T) {
	assert := assert.New(t)

	f := NewFrame(0)
	f.AddMessage(&FrameMessage{
		CANID:      0x10,
		DataLen:    2,
		CANFDFlags: 0x01,
		Data:       []byte{9, 8},
	})

	decoded, err := DecodeFrame(f.Encode())
	require.NoError(t, err)

	msg := decoded.Messages[0]
	assert.Equal(uint8(2), msg.DataLen)
	assert.Equal(uint8(0x01), msg.CANFDFlags)
	assert.Equal([]byte{9, 8}, msg.Data)
}

func Benchmark_DecodeFrame(b *testing.B) {
	b.ReportAllocs()

	frame := getEncodedFrame(113)

	for b.Loop() {
		if _, err := DecodeFrame(frame); err != nil {
			b.Fatal(err)
		}
	}
}
