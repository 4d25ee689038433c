//go:build linux

package canbus

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Config selects a SocketCAN interface.
type Config struct {
	// Interface name, e.g. can0 or vcan0.
	Interface string
	// ReadTimeout bounds one Receive; 0 blocks indefinitely.
	ReadTimeout time.Duration
	// Filters restricts reception to these standard identifiers. Empty
	// accepts everything.
	Filters []uint32
}

// SocketCAN is a raw CAN socket bound to one interface.
type SocketCAN struct {
	mu      sync.Mutex
	fd      int
	config  Config
	closed  bool
	ifindex int
}

// Open binds a raw CAN socket to cfg.Interface.
func Open(cfg Config) (*SocketCAN, error) {
	if cfg.Interface == "" {
		return nil, errors.New("canbus: interface required")
	}
	iface, err := net.InterfaceByName(cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("canbus: interface %s not found: %w", cfg.Interface, err)
	}
	if iface.Flags&net.FlagUp == 0 {
		return nil, fmt.Errorf("canbus: interface %s is down", cfg.Interface)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("canbus: create socket: %w", err)
	}

	if len(cfg.Filters) > 0 {
		filters := make([]unix.CanFilter, len(cfg.Filters))
		for i, id := range cfg.Filters {
			filters[i] = unix.CanFilter{Id: id, Mask: unix.CAN_SFF_MASK | unix.CAN_EFF_FLAG | unix.CAN_RTR_FLAG}
		}
		if err := unix.SetsockoptCanRawFilter(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, filters); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("canbus: set filter: %w", err)
		}
	}

	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: iface.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("canbus: bind %s: %w", cfg.Interface, err)
	}

	return &SocketCAN{fd: fd, config: cfg, ifindex: iface.Index}, nil
}

// Interface returns the bound interface name.
func (c *SocketCAN) Interface() string { return c.config.Interface }

func (c *SocketCAN) handle() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return -1, ErrClosed
	}
	return c.fd, nil
}

// Send writes one frame.
func (c *SocketCAN) Send(f Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	fd, err := c.handle()
	if err != nil {
		return err
	}
	var buf [frameSize]byte
	f.put(buf[:])
	n, err := unix.Write(fd, buf[:])
	if err != nil {
		return fmt.Errorf("canbus: write: %w", err)
	}
	if n != frameSize {
		return fmt.Errorf("canbus: short write (%d bytes)", n)
	}
	return nil
}

// Receive reads the next frame, waiting at most ReadTimeout. Error frames
// reported by the controller are skipped.
func (c *SocketCAN) Receive() (Frame, error) {
	for {
		fd, err := c.handle()
		if err != nil {
			return Frame{}, err
		}

		if c.config.ReadTimeout > 0 {
			pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
			timeoutMs := int(c.config.ReadTimeout.Milliseconds())
			if timeoutMs <= 0 {
				timeoutMs = 1
			}
			n, err := unix.Poll(pfd, timeoutMs)
			if err != nil {
				if errors.Is(err, unix.EINTR) {
					continue
				}
				return Frame{}, fmt.Errorf("canbus: poll: %w", err)
			}
			if n == 0 {
				return Frame{}, ErrTimeout
			}
			if pfd[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
				return Frame{}, ErrClosed
			}
		}

		var buf [frameSize]byte
		n, err := unix.Read(fd, buf[:])
		if err != nil {
			if errors.Is(err, unix.EBADF) {
				return Frame{}, ErrClosed
			}
			return Frame{}, fmt.Errorf("canbus: read: %w", err)
		}
		if n != frameSize {
			return Frame{}, fmt.Errorf("canbus: short read (%d bytes)", n)
		}
		if buf[3]&(errFlag>>24) != 0 {
			continue
		}
		var f Frame
		if err := f.UnmarshalBinary(buf[:]); err != nil {
			return Frame{}, err
		}
		return f, nil
	}
}

// Close releases the socket.
func (c *SocketCAN) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return unix.Close(c.fd)
}
