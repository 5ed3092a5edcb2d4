//go:build linux

// Package waiter blocks on a tty until received data is pending or its modem
// lines or error counters change, and lets another goroutine interrupt the
// wait through an eventfd.
//
// DataAvailable is reported once per arrival. After reporting it the waiter
// stops polling for POLLIN and instead checks the TIOCINQ count every
// LinePollInterval: it reports again when the count changes while bytes
// remain queued, and goes back to poll(2) once the input queue has been
// emptied.
//
// Linux has no pollable event for modem lines, so while LineOrErrorChange is
// watched the waiter wakes every LinePollInterval and compares TIOCMGET and
// TIOCGICOUNT with the previous sample. Devices that support neither ioctl
// (ptys, most USB CDC adapters for TIOCGICOUNT) only report hangups.
//
// An idle device therefore costs one wakeup and two ioctls per
// LinePollInterval (10ms by default) while an event listener is attached, and
// one wakeup per interval while received bytes are left unread. Raise
// LinePollInterval when many idle devices are monitored.
package waiter

import (
	"sync"
	"time"

	"github.com/RishiGupta12/serial-communication-manager/consts"
	"github.com/RishiGupta12/serial-communication-manager/internal/tty"
	"github.com/RishiGupta12/serial-communication-manager/listener"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var (
	ErrHangup  = errors.New("device hung up")
	ErrInvalid = errors.New("device descriptor is not open")
)

type Option func(*Waiter)

func WithLinePollInterval(d time.Duration) Option {
	return func(w *Waiter) {
		if d > 0 {
			w.interval = d
		}
	}
}

type sample struct {
	lines     listener.LineState
	hasLines  bool
	counts    tty.Counts
	hasCounts bool
}

// Waiter implements listener.Waiter for one tty descriptor. It never closes
// the device descriptor.
type Waiter struct {
	fd       int
	signal   *Signal
	interval time.Duration

	// owned by the goroutine calling Wait
	baseline  sample
	sampling  bool
	noSupport bool

	// set after DataAvailable was reported while bytes stay queued
	holding  bool
	reported int

	closeOnce sync.Once
}

var _ listener.Waiter = (*Waiter)(nil)

func New(fd int, opts ...Option) (*Waiter, error) {
	s, err := NewSignal()
	if err != nil {
		return nil, err
	}
	w := &Waiter{
		fd:       fd,
		signal:   s,
		interval: consts.DefaultLinePollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *Waiter) Wait(watched listener.Condition) (listener.Wakeup, error) {
	var wake listener.Wakeup

	data := watched.Has(listener.DataAvailable)
	if !data {
		w.holding = false
	}

	lines := watched.Has(listener.LineOrErrorChange)
	if !lines {
		w.sampling = false
	} else if !w.sampling {
		w.baseline = w.sample()
		w.sampling = true
		w.noSupport = !w.baseline.hasLines && !w.baseline.hasCounts
	}

	pfd := []unix.PollFd{
		{Fd: int32(w.signal.Fd()), Events: unix.POLLIN},
		{Fd: int32(w.fd)},
	}

	for {
		pollData := data && !w.holding
		pfd[1].Fd, pfd[1].Events = int32(w.fd), 0
		switch {
		case pollData:
			pfd[1].Events = unix.POLLIN
		case !data && !lines:
			// nothing watched on the device, wait for the signal alone
			pfd[1].Fd = -1
		}
		pfd[0].Revents, pfd[1].Revents = 0, 0

		_, err := unix.Poll(pfd, w.timeout(data, lines))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return wake, errors.Wrap(err, "poll")
		}

		if pfd[0].Revents&unix.POLLIN != 0 {
			if _, err := w.signal.Drain(); err != nil {
				return wake, err
			}
			wake.Cancelled = true
		}

		if rev := pfd[1].Revents; rev != 0 {
			if rev&unix.POLLNVAL != 0 {
				return wake, ErrInvalid
			}
			if rev&(unix.POLLHUP|unix.POLLERR) != 0 {
				return wake, ErrHangup
			}
			if pollData && rev&unix.POLLIN != 0 {
				wake.Fired |= listener.DataAvailable
				w.hold()
			}
		}

		if data && w.holding && !pollData && w.arrived() {
			wake.Fired |= listener.DataAvailable
		}

		if lines && !w.noSupport {
			if events := w.changes(); len(events) > 0 {
				wake.Fired |= listener.LineOrErrorChange
				wake.Events = events
			}
		}

		if wake.Fired != 0 || wake.Cancelled {
			return wake, nil
		}
	}
}

func (w *Waiter) timeout(data, lines bool) int {
	if !(lines && !w.noSupport) && !(data && w.holding) {
		return -1
	}
	timeout := int(w.interval / time.Millisecond)
	if timeout < 1 {
		timeout = 1
	}
	return timeout
}

// hold records the queued byte count after DataAvailable was reported. A
// failing TIOCINQ leaves the waiter level-triggered on POLLIN.
func (w *Waiter) hold() {
	in, err := tty.InputPending(w.fd)
	if err != nil || in == 0 {
		w.holding = false
		return
	}
	w.holding, w.reported = true, in
}

// arrived reports whether the queued byte count changed since it was last
// checked. A count that went down while bytes remain means a reader took
// some and new ones may have arrived. An emptied queue hands detection back
// to poll(2).
func (w *Waiter) arrived() bool {
	in, err := tty.InputPending(w.fd)
	if err != nil || in == 0 {
		w.holding = false
		return false
	}
	changed := in != w.reported
	w.reported = in
	return changed
}

// Cancel interrupts the current or next Wait.
func (w *Waiter) Cancel() error {
	return w.signal.Notify()
}

// Close releases the eventfd.
func (w *Waiter) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.signal.Close()
	})
	return err
}

func (w *Waiter) sample() sample {
	var s sample
	if lines, err := tty.ModemLines(w.fd); err == nil {
		s.lines, s.hasLines = lines, true
	}
	if counts, err := tty.InterruptCounts(w.fd); err == nil {
		s.counts, s.hasCounts = counts, true
	}
	return s
}

// changes compares a fresh sample with the baseline and makes it the new one.
func (w *Waiter) changes() []listener.Event {
	cur := w.sample()
	prev := w.baseline
	w.baseline = cur
	return diff(prev, cur)
}

func diff(prev, cur sample) []listener.Event {
	var events []listener.Event

	var changed listener.LineState
	if prev.hasLines && cur.hasLines {
		changed = prev.lines ^ cur.lines
	}
	if prev.hasCounts && cur.hasCounts {
		// transitions shorter than the sampling interval only show up in the counters
		if cur.counts.CTS != prev.counts.CTS {
			changed |= listener.LineCTS
		}
		if cur.counts.DSR != prev.counts.DSR {
			changed |= listener.LineDSR
		}
		if cur.counts.DCD != prev.counts.DCD {
			changed |= listener.LineDCD
		}
		if cur.counts.RI != prev.counts.RI {
			changed |= listener.LineRI
		}
	}
	if changed != 0 {
		events = append(events, listener.Event{
			Kind:    listener.EventLineChange,
			Lines:   cur.lines,
			Changed: changed,
		})
	}

	if prev.hasCounts && cur.hasCounts {
		delta := listener.ErrorCounts{
			Frame:         cur.counts.Errors.Frame - prev.counts.Errors.Frame,
			Overrun:       cur.counts.Errors.Overrun - prev.counts.Errors.Overrun,
			Parity:        cur.counts.Errors.Parity - prev.counts.Errors.Parity,
			Break:         cur.counts.Errors.Break - prev.counts.Errors.Break,
			BufferOverrun: cur.counts.Errors.BufferOverrun - prev.counts.Errors.BufferOverrun,
		}
		if delta.Any() {
			events = append(events, listener.Event{
				Kind:   listener.EventError,
				Lines:  cur.lines,
				Errors: delta,
			})
		}
	}
	return events
}
