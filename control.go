//go:build linux

package serial

import (
	"time"

	"github.com/RishiGupta12/serial-communication-manager/errs"
	"github.com/RishiGupta12/serial-communication-manager/internal/tty"
	"github.com/RishiGupta12/serial-communication-manager/listener"
)

// InterruptCounts are the cumulative modem-line transitions, transferred
// bytes and line errors the driver has counted since the port was opened.
type InterruptCounts struct {
	CTS, DSR, RI, DCD uint32
	RX, TX            uint32
	Errors            listener.ErrorCounts
}

func (p *Port) ioctl(fn func(fd int) error) error {
	return p.use(func() error {
		if err := fn(p.fd); err != nil {
			return errs.NewIoctlErr().WithErr(err)
		}
		return nil
	})
}

// LineStatus reports the modem control and status lines.
func (p *Port) LineStatus() (listener.LineState, error) {
	var lines listener.LineState
	err := p.ioctl(func(fd int) error {
		var err error
		lines, err = tty.ModemLines(fd)
		return err
	})
	return lines, err
}

func (p *Port) SetRTS(on bool) error {
	return p.ioctl(func(fd int) error {
		return tty.SetModemLines(fd, listener.LineRTS, on)
	})
}

func (p *Port) SetDTR(on bool) error {
	return p.ioctl(func(fd int) error {
		return tty.SetModemLines(fd, listener.LineDTR, on)
	})
}

// SendBreak holds the transmit line in the break condition for d.
func (p *Port) SendBreak(d time.Duration) error {
	if d <= 0 {
		return errs.NewInvalidParamErr()
	}
	return p.ioctl(func(fd int) error {
		return tty.SendBreak(fd, d)
	})
}

// ByteCount returns the number of bytes in the input and output queues.
func (p *Port) ByteCount() (in, out int, err error) {
	err = p.ioctl(func(fd int) error {
		var err error
		in, out, err = tty.Pending(fd)
		return err
	})
	return in, out, err
}

// Flush discards received but unread data when rx is set and written but
// untransmitted data when tx is set. Bytes ReadLine already took from the
// device are kept.
func (p *Port) Flush(rx, tx bool) error {
	if !rx && !tx {
		return nil
	}
	return p.ioctl(func(fd int) error {
		return tty.Flush(fd, rx, tx)
	})
}

func (p *Port) InterruptCount() (InterruptCounts, error) {
	var c tty.Counts
	err := p.ioctl(func(fd int) error {
		var err error
		c, err = tty.InterruptCounts(fd)
		return err
	})
	return InterruptCounts(c), err
}

// SetMinDataLength sets how many bytes a read waits for before returning.
func (p *Port) SetMinDataLength(n int) error {
	if n < 0 || n > 255 {
		return errs.NewInvalidParamErr()
	}
	return p.ioctl(func(fd int) error {
		return tty.SetMinDataLength(fd, n)
	})
}
