package can

import (
	"encoding/binary"
	"fmt"
)

// Flag bits and masks of the Linux canid_t.
const (
	FlagEFF uint32 = 0x80000000
	FlagRTR uint32 = 0x40000000
	FlagERR uint32 = 0x20000000

	MaskSFF uint32 = 0x000007FF
	MaskEFF uint32 = 0x1FFFFFFF
	MaskERR uint32 = 0x1FFFFFFF

	flagMask = FlagEFF | FlagRTR | FlagERR
)

const (
	// MaxDataLen is the maximum payload of a classical CAN frame.
	MaxDataLen = 8

	// FrameSize is the size of the Linux struct can_frame.
	FrameSize = 16
)

// Raw is a frame as produced (or consumed) by a bus driver,
// before any validation takes place.
type Raw struct {
	ID       uint32
	DLC      uint8
	Data     []byte
	Extended bool
	RTR      bool
	Error    bool
}

// RawFromCANID builds a [Raw] frame from a canid_t carrying the EFF/RTR/ERR flags.
// The identifier is only stripped of the flag bits, range validation is left to [Normalize].
func RawFromCANID(canID uint32, dlc uint8, data []byte) Raw {
	return Raw{
		ID:       canID &^ flagMask,
		DLC:      dlc,
		Data:     data,
		Extended: canID&FlagEFF != 0,
		RTR:      canID&FlagRTR != 0,
		Error:    canID&FlagERR != 0,
	}
}

// CANID returns the identifier with the EFF/RTR/ERR flags set.
func (r Raw) CANID() uint32 {
	id := r.ID
	if r.Extended {
		id |= FlagEFF
	}
	if r.RTR {
		id |= FlagRTR
	}
	if r.Error {
		id |= FlagERR
	}
	return id
}

// MarshalBinary encodes the frame into the struct can_frame layout
// in host byte order:
//
//	0..3  can_id (with flags)
//	4     can_dlc
//	5..7  padding
//	8..15 data
func (r Raw) MarshalBinary() ([]byte, error) {
	if r.DLC > MaxDataLen || len(r.Data) > MaxDataLen {
		return nil, fmt.Errorf("%w: data length %d", ErrInvalidFrame, max(int(r.DLC), len(r.Data)))
	}

	buf := make([]byte, FrameSize)
	binary.NativeEndian.PutUint32(buf[0:4], r.CANID())
	buf[4] = r.DLC
	if !r.RTR {
		copy(buf[8:], r.Data)
	}

	return buf, nil
}

// UnmarshalBinary decodes a struct can_frame.
func (r *Raw) UnmarshalBinary(buf []byte) error {
	if len(buf) < FrameSize {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidFrame, FrameSize, len(buf))
	}

	dlc := buf[4]
	data := make([]byte, min(int(dlc), MaxDataLen))
	copy(data, buf[8:])

	*r = RawFromCANID(binary.NativeEndian.Uint32(buf[0:4]), dlc, data)

	return nil
}
