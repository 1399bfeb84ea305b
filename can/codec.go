// Package can contains the canonical CAN message record and the codec
// that validates raw bus frames into it.
package can

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidFrame is returned when a frame cannot be turned into a [Message]
	// or into an outbound [Raw] frame.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrInvalidID is returned when an identifier is out of range or cannot be parsed.
	ErrInvalidID = errors.New("invalid identifier")
)

func maxID(extended bool) uint32 {
	if extended {
		return MaskEFF
	}
	return MaskSFF
}

// Normalize validates a raw frame and builds the canonical [Message].
//
// It fails with [ErrInvalidFrame] when the identifier exceeds the range
// implied by the extended flag, or when the length exceeds 8 bytes.
// Remote frames carry zeroed data bytes, as many as the requested length.
// Error frames are kept as they are: their identifier carries the error class.
func Normalize(raw Raw, timestamp time.Time) (*Message, error) {
	msg := &Message{
		IsExtended: raw.Extended,
		IsError:    raw.Error,
		IsRTR:      raw.RTR,
		Timestamp:  timestamp,
	}

	if raw.Error {
		msg.ID = raw.ID & MaskERR
		msg.Data = slices.Clone(raw.Data[:min(len(raw.Data), MaxDataLen)])
		return msg, nil
	}

	if raw.ID > maxID(raw.Extended) {
		return nil, fmt.Errorf("%w: %w: 0x%X (extended=%t)", ErrInvalidFrame, ErrInvalidID, raw.ID, raw.Extended)
	}
	msg.ID = raw.ID

	if raw.RTR {
		if raw.DLC > MaxDataLen {
			return nil, fmt.Errorf("%w: requested length %d", ErrInvalidFrame, raw.DLC)
		}

		msg.Data = make(Payload, raw.DLC)
		return msg, nil
	}

	if len(raw.Data) > MaxDataLen || raw.DLC > MaxDataLen {
		return nil, fmt.Errorf("%w: data length %d", ErrInvalidFrame, max(len(raw.Data), int(raw.DLC)))
	}

	msg.Data = slices.Clone(raw.Data)
	if msg.Data == nil {
		msg.Data = Payload{}
	}

	return msg, nil
}

// SendRequest describes a frame to be written to the bus.
type SendRequest struct {
	ID         uint32  `json:"id"`
	Data       Payload `json:"data"`
	IsExtended bool    `json:"is_extended"`
	IsRTR      bool    `json:"is_rtr"`
}

// NewOutbound validates a [SendRequest] and builds the frame to be written.
// For remote frames the length of Data is the requested length
// and the bytes themselves are not transmitted.
func NewOutbound(req SendRequest) (Raw, error) {
	if req.ID > maxID(req.IsExtended) {
		return Raw{}, fmt.Errorf("%w: %w: 0x%X (extended=%t)", ErrInvalidFrame, ErrInvalidID, req.ID, req.IsExtended)
	}

	if len(req.Data) > MaxDataLen {
		return Raw{}, fmt.Errorf("%w: data length %d", ErrInvalidFrame, len(req.Data))
	}

	raw := Raw{
		ID:       req.ID,
		DLC:      uint8(len(req.Data)),
		Extended: req.IsExtended,
		RTR:      req.IsRTR,
	}

	if !req.IsRTR {
		raw.Data = slices.Clone([]byte(req.Data))
	}

	return raw, nil
}

// ParseID parses an identifier written in decimal or as 0x-prefixed hex.
func ParseID(s string) (uint32, error) {
	s = strings.TrimSpace(s)

	base := 10
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
		base = 16
	}

	id, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}

	if uint32(id) > MaskEFF {
		return 0, fmt.Errorf("%w: 0x%X out of range", ErrInvalidID, id)
	}

	return uint32(id), nil
}

// ParseIDs parses a list of identifiers into a set.
// Values that cannot be parsed are skipped.
func ParseIDs(values []string) map[uint32]struct{} {
	if len(values) == 0 {
		return nil
	}

	set := make(map[uint32]struct{}, len(values))
	for _, val := range values {
		id, err := ParseID(val)
		if err != nil {
			continue
		}
		set[id] = struct{}{}
	}

	return set
}
