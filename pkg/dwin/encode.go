package dwin

import (
	"encoding/binary"
	"fmt"
)

// Curve buffer addressing. The eight curve channels live at odd addresses
// 0x0301..0x030F; writing a zero word to one empties that channel.
const (
	CurveChannelBase  = 0x0301
	CurveChannelCount = 8
	CurveAppendAddr   = 0x0310
)

// curveHeaderSize is "82 03 10 5A A5 nchan 00".
const curveHeaderSize = 7

// MaxCurveSamples is the largest sample count one block can carry in a
// frame of its own.
const MaxCurveSamples = (MaxLength - curveHeaderSize - 2) / 2

// IsCurveChannel reports whether addr is one of the display's curve
// channel addresses.
func IsCurveChannel(addr uint16) bool {
	return addr >= CurveChannelBase &&
		addr < CurveChannelBase+2*CurveChannelCount &&
		addr&1 == 1
}

// CurveChannelIndex maps a curve channel address to the 0..7 channel
// number used inside curve-append frames.
func CurveChannelIndex(addr uint16) uint8 {
	return uint8(((addr & 0x0F) - 1) >> 1)
}

// CurveBlock is one channel's samples inside a curve-append frame.
type CurveBlock struct {
	Channel uint8
	Samples []uint16
}

func (b CurveBlock) size() int { return 2 + 2*len(b.Samples) }

// EncodeWrite builds a variable write of consecutive 16-bit words starting
// at addr. Values are sent big-endian.
func EncodeWrite(addr uint16, values []uint16) []byte {
	return AppendWrite(make([]byte, 0, headerSize+3+2*len(values)), addr, values)
}

// AppendWrite appends the EncodeWrite frame to dst.
func AppendWrite(dst []byte, addr uint16, values []uint16) []byte {
	dst = append(dst, SyncHi, SyncLo, byte(2*len(values)+3), CmdWrite)
	dst = binary.BigEndian.AppendUint16(dst, addr)
	for _, v := range values {
		dst = binary.BigEndian.AppendUint16(dst, v)
	}
	return dst
}

// EncodeUpload builds the frame the display sends when touch input
// changes the words at addr: a read reply with a word count.
func EncodeUpload(addr uint16, values []uint16) []byte {
	out := make([]byte, 0, headerSize+4+2*len(values))
	out = append(out, SyncHi, SyncLo, byte(2*len(values)+4), CmdRead)
	out = binary.BigEndian.AppendUint16(out, addr)
	out = append(out, byte(len(values)))
	for _, v := range values {
		out = binary.BigEndian.AppendUint16(out, v)
	}
	return out
}

// Ack is the reply the display sends after accepting a write.
var Ack = []byte{SyncHi, SyncLo, 0x03, CmdWrite, 'O', 'K'}

// EncodeClearChannel builds the fixed 8-byte command that empties one
// curve channel: a zero word written to the channel address.
func EncodeClearChannel(channelAddr uint16) []byte {
	return []byte{
		SyncHi, SyncLo, 0x05, CmdWrite,
		byte(channelAddr >> 8), byte(channelAddr),
		0x00, 0x00,
	}
}

// EncodeCurveAppend builds one curve-append frame carrying blocks. Blocks
// without samples are skipped. It fails if the blocks do not fit in a
// single frame; see PackCurveAppend.
func EncodeCurveAppend(blocks []CurveBlock) ([]byte, error) {
	size := curveHeaderSize
	nchan := 0
	for _, b := range blocks {
		if len(b.Samples) == 0 {
			continue
		}
		if len(b.Samples) > 0xFF {
			return nil, fmt.Errorf("dwin: channel %d has %d samples", b.Channel, len(b.Samples))
		}
		size += b.size()
		nchan++
	}
	if size > MaxLength {
		return nil, fmt.Errorf("dwin: curve frame length %d exceeds %d", size, MaxLength)
	}

	out := make([]byte, 0, headerSize+size)
	out = append(out, SyncHi, SyncLo, byte(size), CmdWrite)
	out = binary.BigEndian.AppendUint16(out, CurveAppendAddr)
	out = append(out, SyncHi, SyncLo, byte(nchan), 0x00)
	for _, b := range blocks {
		if len(b.Samples) == 0 {
			continue
		}
		out = append(out, b.Channel, byte(len(b.Samples)))
		for _, v := range b.Samples {
			out = binary.BigEndian.AppendUint16(out, v)
		}
	}
	return out, nil
}

// PackCurveAppend splits blocks across as few curve-append frames as the
// length byte allows, keeping block order. Empty blocks are skipped and no
// frame is produced when nothing carries samples.
func PackCurveAppend(blocks []CurveBlock) ([][]byte, error) {
	var frames [][]byte
	var pending []CurveBlock
	size := curveHeaderSize

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		frame, err := EncodeCurveAppend(pending)
		if err != nil {
			return err
		}
		frames = append(frames, frame)
		pending = pending[:0:0]
		size = curveHeaderSize
		return nil
	}

	for _, b := range blocks {
		if len(b.Samples) == 0 {
			continue
		}
		if len(b.Samples) > MaxCurveSamples {
			return nil, fmt.Errorf("dwin: channel %d has %d samples, max %d",
				b.Channel, len(b.Samples), MaxCurveSamples)
		}
		if size+b.size() > MaxLength {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		pending = append(pending, b)
		size += b.size()
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return frames, nil
}

// CopyImage describes a graphic copy: the rectangle (X0,Y0)-(X1,Y1) of
// page SourcePage is pasted at (DstX,DstY) on the current page.
type CopyImage struct {
	SourcePage uint16
	X0, Y0     uint16
	X1, Y1     uint16
	DstX, DstY uint16
}

// EncodeCopyImage builds a basic-graphics "cut and paste icon" command
// written to the drawing variable at addr.
func EncodeCopyImage(addr uint16, c CopyImage) []byte {
	return AppendCopyImage(nil, addr, c)
}

// AppendCopyImage appends the EncodeCopyImage frame to dst.
func AppendCopyImage(dst []byte, addr uint16, c CopyImage) []byte {
	words := [...]uint16{
		0x0006, // cut icon
		0x0001, // one rectangle
		c.SourcePage,
		c.X0, c.Y0, c.X1, c.Y1,
		c.DstX, c.DstY,
		0xFF00, // end
	}
	return AppendWrite(dst, addr, words[:])
}
