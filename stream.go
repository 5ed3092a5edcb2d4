//go:build linux

package serial

import (
	"io"
	"sync/atomic"

	"github.com/RishiGupta12/serial-communication-manager/errs"
)

// InputStream reads from a Port as an io.Reader. Closing the stream leaves
// the port open.
type InputStream struct {
	port   *Port
	closed atomic.Bool
}

var _ io.ReadCloser = (*InputStream)(nil)

func (p *Port) InputStream() *InputStream {
	return &InputStream{port: p}
}

// Read blocks until at least one byte is available.
func (s *InputStream) Read(b []byte) (int, error) {
	if s.closed.Load() {
		return 0, errs.NewClosedErr()
	}
	return s.port.Read(b)
}

// Available returns the number of bytes that can be read without blocking.
func (s *InputStream) Available() (int, error) {
	if s.closed.Load() {
		return 0, errs.NewClosedErr()
	}
	in, _, err := s.port.ByteCount()
	return in, err
}

func (s *InputStream) Close() error {
	s.closed.Store(true)
	return nil
}
