package dwin

import (
	"bytes"
	"io"
	"testing"

	"dashbridge/pkg/errors"
	"dashbridge/pkg/log"
)

type shortWriter struct{ limit int }

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > w.limit {
		return w.limit, nil
	}
	return len(p), nil
}

func quietSender(w io.Writer) *Sender {
	s := NewSender(w, "test")
	l := log.New("dwin.test")
	l.SetWriter(io.Discard)
	s.SetLogger(l)
	return s
}

func TestSenderSend(t *testing.T) {
	var buf bytes.Buffer
	s := quietSender(&buf)

	frame := EncodeClearChannel(0x0301)
	if err := s.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), frame) {
		t.Errorf("wrote % X", buf.Bytes())
	}
	if st := s.Stats(); st.Frames != 1 || st.Bytes != 8 {
		t.Errorf("stats = %+v", st)
	}
}

func TestSenderShortWrite(t *testing.T) {
	s := quietSender(&shortWriter{limit: 4})

	err := s.Send(EncodeClearChannel(0x0301))
	if !errors.Is(err, errors.ErrTransportShortWrite) {
		t.Fatalf("expected TransportShortWrite, got %v", err)
	}
	if errors.IsFatal(err) {
		t.Error("short write must not be fatal")
	}
	if st := s.Stats(); st.Errors != 1 || st.Frames != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestSendAllStopsOnError(t *testing.T) {
	s := quietSender(&shortWriter{limit: 8})
	frames := [][]byte{
		EncodeClearChannel(0x0301),
		EncodeWrite(0x5000, make([]uint16, 4)),
		EncodeClearChannel(0x0303),
	}
	if err := SendAll(s, frames, 0); err == nil {
		t.Fatal("expected error")
	}
	if st := s.Stats(); st.Frames != 1 {
		t.Errorf("frames sent = %d, want 1", st.Frames)
	}
}
