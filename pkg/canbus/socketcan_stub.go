// SocketCAN is only available on Linux; elsewhere Open always fails.

//go:build !linux

package canbus

import "time"

// Config selects a SocketCAN interface.
type Config struct {
	Interface   string
	ReadTimeout time.Duration
	Filters     []uint32
}

// SocketCAN is unavailable on this platform.
type SocketCAN struct{}

// Open returns ErrNotSupported.
func Open(cfg Config) (*SocketCAN, error) { return nil, ErrNotSupported }

func (c *SocketCAN) Interface() string       { return "" }
func (c *SocketCAN) Send(f Frame) error      { return ErrNotSupported }
func (c *SocketCAN) Receive() (Frame, error) { return Frame{}, ErrNotSupported }
func (c *SocketCAN) Close() error            { return nil }
