package dwin

import (
	"encoding/hex"
	"io"
	"sync"
	"time"

	"dashbridge/pkg/errors"
	"dashbridge/pkg/log"
)

// Sender writes encoded commands to the display link. Calls from the
// refresh loop and from input handlers may overlap, so each frame is
// written under a lock to keep frames whole on the wire.
type Sender struct {
	mu     sync.Mutex
	w      io.Writer
	name   string
	logger *log.Logger

	frames uint64
	bytes  uint64
	errors uint64
}

// NewSender wraps w. name identifies the transport in errors.
func NewSender(w io.Writer, name string) *Sender {
	return &Sender{
		w:      w,
		name:   name,
		logger: log.GetLogger("dwin.send"),
	}
}

// SetLogger replaces the sender's logger.
func (s *Sender) SetLogger(l *log.Logger) { s.logger = l }

// Send writes one frame. A short write is reported as
// TransportShortWrite; nothing is retried.
func (s *Sender) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.w.Write(frame)
	s.bytes += uint64(n)
	if err != nil || n != len(frame) {
		s.errors++
		herr := errors.TransportShortWrite(s.name, n, len(frame), err)
		s.logger.WithError(err).WithField("frame", hex.EncodeToString(frame)).Warn(herr.Error())
		return herr
	}
	s.frames++
	s.logger.Debug("sent % X", frame)
	return nil
}

// FrameSender accepts one encoded frame at a time. *Sender implements it.
type FrameSender interface {
	Send(frame []byte) error
}

// SendAll writes each frame to out in order, sleeping delay between
// frames but not before the first. It stops at the first failure.
func SendAll(out FrameSender, frames [][]byte, delay time.Duration) error {
	for i, f := range frames {
		if i > 0 && delay > 0 {
			time.Sleep(delay)
		}
		if err := out.Send(f); err != nil {
			return err
		}
	}
	return nil
}

// SenderStats counts successful frames, bytes written and failures.
type SenderStats struct {
	Frames uint64
	Bytes  uint64
	Errors uint64
}

// Stats returns the current counters.
func (s *Sender) Stats() SenderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SenderStats{Frames: s.frames, Bytes: s.bytes, Errors: s.errors}
}
