//go:build linux

// Package tty wraps the tty ioctls used for modem lines, queues, breaks and
// interrupt counters.
package tty

import (
	"time"
	"unsafe"

	"github.com/RishiGupta12/serial-communication-manager/listener"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// TIOCM_LOOP is missing from x/sys/unix.
const tiocmLoop = 0x8000

var modemBits = []struct {
	bit  int
	line listener.LineState
}{
	{unix.TIOCM_CTS, listener.LineCTS},
	{unix.TIOCM_DSR, listener.LineDSR},
	{unix.TIOCM_CD, listener.LineDCD},
	{unix.TIOCM_RI, listener.LineRI},
	{unix.TIOCM_DTR, listener.LineDTR},
	{unix.TIOCM_RTS, listener.LineRTS},
	{tiocmLoop, listener.LineLoop},
}

func FromModemBits(bits int) listener.LineState {
	var s listener.LineState
	for _, m := range modemBits {
		if bits&m.bit != 0 {
			s |= m.line
		}
	}
	return s
}

func ToModemBits(s listener.LineState) int {
	bits := 0
	for _, m := range modemBits {
		if s&m.line != 0 {
			bits |= m.bit
		}
	}
	return bits
}

func ModemLines(fd int) (listener.LineState, error) {
	bits, err := unix.IoctlGetInt(fd, unix.TIOCMGET)
	if err != nil {
		return 0, errors.Wrap(err, "TIOCMGET")
	}
	return FromModemBits(bits), nil
}

// SetModemLines asserts (on) or clears the given output lines.
func SetModemLines(fd int, lines listener.LineState, on bool) error {
	req := uint(unix.TIOCMBIC)
	if on {
		req = unix.TIOCMBIS
	}
	if err := unix.IoctlSetPointerInt(fd, req, ToModemBits(lines)); err != nil {
		return errors.Wrap(err, "TIOCMBIS/TIOCMBIC")
	}
	return nil
}

// Pending returns the number of bytes in the input and output queues.
func Pending(fd int) (in, out int, err error) {
	in, err = InputPending(fd)
	if err != nil {
		return 0, 0, err
	}
	out, err = unix.IoctlGetInt(fd, unix.TIOCOUTQ)
	if err != nil {
		return 0, 0, errors.Wrap(err, "TIOCOUTQ")
	}
	return in, out, nil
}

// InputPending returns the number of received bytes not yet read.
func InputPending(fd int) (int, error) {
	in, err := unix.IoctlGetInt(fd, unix.TIOCINQ)
	if err != nil {
		return 0, errors.Wrap(err, "TIOCINQ")
	}
	return in, nil
}

// Flush discards received (rx) and/or not yet transmitted (tx) data.
func Flush(fd int, rx, tx bool) error {
	var which int
	switch {
	case rx && tx:
		which = unix.TCIOFLUSH
	case rx:
		which = unix.TCIFLUSH
	case tx:
		which = unix.TCOFLUSH
	default:
		return nil
	}
	if err := unix.IoctlSetInt(fd, unix.TCFLSH, which); err != nil {
		return errors.Wrap(err, "TCFLSH")
	}
	return nil
}

// SendBreak holds the line in break state for d.
func SendBreak(fd int, d time.Duration) error {
	if err := unix.IoctlSetInt(fd, unix.TIOCSBRK, 0); err != nil {
		return errors.Wrap(err, "TIOCSBRK")
	}
	time.Sleep(d)
	if err := unix.IoctlSetInt(fd, unix.TIOCCBRK, 0); err != nil {
		return errors.Wrap(err, "TIOCCBRK")
	}
	return nil
}

// Counts mirrors struct serial_icounter_struct.
type Counts struct {
	CTS, DSR, RI, DCD uint32
	RX, TX            uint32
	Errors            listener.ErrorCounts
}

type serialICounter struct {
	cts, dsr, rng, dcd int32
	rx, tx             int32
	frame, overrun     int32
	parity, brk        int32
	bufOverrun         int32
	reserved           [9]int32
}

func InterruptCounts(fd int) (Counts, error) {
	var ic serialICounter
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(unix.TIOCGICOUNT), uintptr(unsafe.Pointer(&ic)))
	if errno != 0 {
		return Counts{}, errors.Wrap(errno, "TIOCGICOUNT")
	}
	return Counts{
		CTS: uint32(ic.cts),
		DSR: uint32(ic.dsr),
		RI:  uint32(ic.rng),
		DCD: uint32(ic.dcd),
		RX:  uint32(ic.rx),
		TX:  uint32(ic.tx),
		Errors: listener.ErrorCounts{
			Frame:         uint32(ic.frame),
			Overrun:       uint32(ic.overrun),
			Parity:        uint32(ic.parity),
			Break:         uint32(ic.brk),
			BufferOverrun: uint32(ic.bufOverrun),
		},
	}, nil
}

// SetMinDataLength sets VMIN, the number of bytes a blocking read waits for.
func SetMinDataLength(fd int, n int) error {
	if n < 0 || n > 255 {
		return errors.Errorf("VMIN out of range: %d", n)
	}
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return errors.Wrap(err, "TCGETS")
	}
	t.Cc[unix.VMIN] = uint8(n)
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return errors.Wrap(err, "TCSETS")
	}
	return nil
}
