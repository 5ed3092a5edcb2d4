//go:build linux

package waiter

import (
	"encoding/binary"
	"sync"

	"github.com/RishiGupta12/serial-communication-manager/errs"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Signal is a wakeable flag backed by an eventfd. Notifications that arrive
// before anyone polls are kept, and any number of them are drained at once.
type Signal struct {
	fd        int
	closeOnce sync.Once
}

func NewSignal() (*Signal, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, errs.NewResourceExhaustedErr().WithErr(errors.Wrap(err, "eventfd"))
	}
	return &Signal{fd: fd}, nil
}

// Fd is the descriptor to poll for POLLIN.
func (s *Signal) Fd() int {
	return s.fd
}

func (s *Signal) Notify() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(s.fd, buf[:])
		switch err {
		case nil:
			return nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			// counter saturated, the flag is already raised
			return nil
		default:
			return errors.Wrap(err, "notify eventfd")
		}
	}
}

// Drain lowers the flag. It reports whether the flag was raised.
func (s *Signal) Drain() (bool, error) {
	var buf [8]byte
	for {
		_, err := unix.Read(s.fd, buf[:])
		switch err {
		case nil:
			return true, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return false, nil
		default:
			return false, errors.Wrap(err, "drain eventfd")
		}
	}
}

func (s *Signal) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = unix.Close(s.fd)
	})
	return err
}
