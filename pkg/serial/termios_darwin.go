//go:build darwin

package serial

import "golang.org/x/sys/unix"

func getTermios(fd int) (*unix.Termios, error) {
	return unix.IoctlGetTermios(fd, unix.TIOCGETA)
}

func setTermios(fd int, t *unix.Termios) error {
	return unix.IoctlSetTermios(fd, unix.TIOCSETA, t)
}

// flushIO drops unread input and unsent output.
func flushIO(fd int) error {
	return unix.IoctlSetInt(fd, unix.TIOCFLUSH, unix.TCIOFLUSH)
}

// Termios speeds are 64-bit on macOS.
func setSpeed(t *unix.Termios, speed uint32) {
	t.Ispeed = uint64(speed)
	t.Ospeed = uint64(speed)
}
