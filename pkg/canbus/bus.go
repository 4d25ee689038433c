package canbus

import (
	"errors"
	"sync"
)

var (
	ErrClosed       = errors.New("canbus: closed")
	ErrTimeout      = errors.New("canbus: operation timed out")
	ErrNotSupported = errors.New("canbus: not supported on this platform")
)

// Bus is a CAN endpoint. Implementations are safe for concurrent use:
// one goroutine may block in Receive while others Send.
type Bus interface {
	// Send transmits one frame.
	Send(f Frame) error
	// Receive blocks for the next frame. It returns ErrTimeout when the
	// endpoint's read timeout expires and ErrClosed after Close.
	Receive() (Frame, error)
	Close() error
}

// Loopback is an in-process bus: every frame sent on one end is received
// on the other.
type Loopback struct {
	tx   chan<- Frame
	rx   <-chan Frame
	done chan struct{}
	once *sync.Once
}

// NewLoopback returns the two ends of a bus buffering up to depth frames
// in each direction. Closing either end closes both.
func NewLoopback(depth int) (*Loopback, *Loopback) {
	ab := make(chan Frame, depth)
	ba := make(chan Frame, depth)
	done := make(chan struct{})
	once := &sync.Once{}
	a := &Loopback{tx: ab, rx: ba, done: done, once: once}
	b := &Loopback{tx: ba, rx: ab, done: done, once: once}
	return a, b
}

// Send queues f for the other end, blocking while the queue is full.
func (l *Loopback) Send(f Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.tx <- f:
		return nil
	case <-l.done:
		return ErrClosed
	}
}

// Receive waits for the next frame from the other end.
func (l *Loopback) Receive() (Frame, error) {
	select {
	case f := <-l.rx:
		return f, nil
	case <-l.done:
		return Frame{}, ErrClosed
	}
}

// Close shuts down both ends.
func (l *Loopback) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}
