//go:build linux

package tty

import (
	"os"
	"testing"
	"time"

	"github.com/RishiGupta12/serial-communication-manager/listener"
	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestModemBitsRoundTrip(t *testing.T) {
	s := listener.LineCTS | listener.LineDCD | listener.LineRTS | listener.LineLoop
	require.Equal(t, s, FromModemBits(ToModemBits(s)))
	require.Equal(t, listener.LineDTR, FromModemBits(unix.TIOCM_DTR))
}

// rawPty opens a pty pair whose slave is in non-canonical mode, so input is
// counted and readable byte by byte.
func rawPty(t *testing.T) (master *os.File, fd int) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	fd = int(slave.Fd())
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	require.NoError(t, err)
	termios.Lflag &^= unix.ICANON | unix.ECHO
	require.NoError(t, unix.IoctlSetTermios(fd, unix.TCSETS, termios))
	return master, fd
}

func TestPendingAndFlush(t *testing.T) {
	master, fd := rawPty(t)
	_, err := master.Write([]byte("abcd"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		in, _, err := Pending(fd)
		return err == nil && in == 4
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, Flush(fd, true, false))
	in, _, err := Pending(fd)
	require.NoError(t, err)
	require.Zero(t, in)
}

func TestSetMinDataLength(t *testing.T) {
	_, fd := rawPty(t)
	require.NoError(t, SetMinDataLength(fd, 5))
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	require.NoError(t, err)
	require.Equal(t, uint8(5), termios.Cc[unix.VMIN])

	require.Error(t, SetMinDataLength(fd, 300))
}
