// Package dwin implements the serial protocol spoken by DWIN HMI displays:
// reassembly of inbound frames and encoding of outbound write commands.
package dwin

const (
	SyncHi = 0x5A
	SyncLo = 0xA5

	// CmdWrite writes variables into display memory. The display echoes
	// "5A A5 03 82 4F 4B" to acknowledge it.
	CmdWrite = 0x82
	// CmdRead is used by the display for auto-uploaded touch input; it
	// carries a word count before the payload.
	CmdRead = 0x83

	// MaxLength is the largest value of the length byte.
	MaxLength = 255
	// MaxFrame is the largest complete frame on the wire.
	MaxFrame = MaxLength + 3

	headerSize = 3
	posLength  = 2
	posCommand = 3
	posAddress = 4
	posCount   = 6

	// minLength covers the command byte and the address.
	minLength = 3
)

// Frame is a complete inbound frame. Payload aliases the assembler's
// buffer and is only valid until the handler returns.
type Frame struct {
	Command byte
	Address uint16
	// Count is the word count carried by read frames; for write frames it
	// is derived from the payload size.
	Count   int
	Payload []byte
}

// IsAck reports whether the frame is the display's acknowledgement of a
// write command.
func (f Frame) IsAck() bool {
	return f.Command == CmdWrite && f.Address == 0x4F4B && len(f.Payload) == 0
}

func parseFrame(buf []byte) Frame {
	f := Frame{
		Command: buf[posCommand],
		Address: uint16(buf[posAddress])<<8 | uint16(buf[posAddress+1]),
	}
	switch {
	case f.Command == CmdRead && len(buf) > posCount:
		f.Count = int(buf[posCount])
		f.Payload = buf[posCount+1:]
	default:
		f.Payload = buf[posCount:]
		f.Count = len(f.Payload) / 2
	}
	return f
}
