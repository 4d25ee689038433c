// Package canbus sends and receives classical CAN frames on the vehicle
// bus. On Linux it uses SocketCAN; Loopback provides an in-process bus.
package canbus

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxDataLen is the payload limit of a classical CAN frame.
const MaxDataLen = 8

// frameSize is sizeof(struct can_frame).
const frameSize = 16

const (
	maxStdID = 0x7FF
	maxExtID = 0x1FFFFFFF

	effFlag = 0x80000000
	rtrFlag = 0x40000000
	errFlag = 0x20000000
)

var (
	ErrInvalidID  = errors.New("canbus: invalid identifier")
	ErrInvalidLen = errors.New("canbus: invalid data length")
)

// Frame is a classical CAN 2.0A/2.0B frame.
type Frame struct {
	ID       uint32 // 11-bit or 29-bit identifier
	Extended bool
	RTR      bool
	Len      uint8
	Data     [MaxDataLen]byte
}

// NewFrame builds a data frame. Identifiers above 0x7FF select the
// extended format.
func NewFrame(id uint32, data []byte) (Frame, error) {
	if len(data) > MaxDataLen {
		return Frame{}, ErrInvalidLen
	}
	f := Frame{ID: id, Extended: id > maxStdID, Len: uint8(len(data))}
	copy(f.Data[:], data)
	return f, f.Validate()
}

// Validate checks the identifier range and data length.
func (f Frame) Validate() error {
	if f.Len > MaxDataLen {
		return ErrInvalidLen
	}
	limit := uint32(maxStdID)
	if f.Extended {
		limit = maxExtID
	}
	if f.ID > limit {
		return ErrInvalidID
	}
	return nil
}

// Payload returns the valid data bytes.
func (f *Frame) Payload() []byte {
	n := f.Len
	if n > MaxDataLen {
		n = MaxDataLen
	}
	return f.Data[:n]
}

func (f Frame) String() string {
	return fmt.Sprintf("%03X#% X", f.ID, f.Data[:f.Len])
}

// MarshalBinary encodes the frame in the SocketCAN struct can_frame layout.
func (f Frame) MarshalBinary() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, frameSize)
	f.put(buf)
	return buf, nil
}

func (f Frame) put(buf []byte) {
	id := f.ID
	if f.Extended {
		id |= effFlag
	}
	if f.RTR {
		id |= rtrFlag
	}
	binary.LittleEndian.PutUint32(buf[0:4], id)
	buf[4] = f.Len
	buf[5], buf[6], buf[7] = 0, 0, 0
	copy(buf[8:16], f.Data[:])
}

// UnmarshalBinary decodes a struct can_frame.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < frameSize {
		return fmt.Errorf("canbus: need %d bytes, got %d", frameSize, len(data))
	}
	id := binary.LittleEndian.Uint32(data[0:4])
	f.Extended = id&effFlag != 0
	f.RTR = id&rtrFlag != 0
	if f.Extended {
		f.ID = id & maxExtID
	} else {
		f.ID = id & maxStdID
	}
	f.Len = data[4]
	copy(f.Data[:], data[8:16])
	return f.Validate()
}
