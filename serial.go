//go:build linux

package serial

import (
	"io"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/RishiGupta12/serial-communication-manager/consts"
	"github.com/RishiGupta12/serial-communication-manager/errs"
	"github.com/RishiGupta12/serial-communication-manager/internal/tty"
	"github.com/RishiGupta12/serial-communication-manager/logs"
	"github.com/bytedance/gopkg/lang/mcache"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const readChunk = 4096

type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

type StopBits int

const (
	StopBits1 StopBits = iota
	StopBits2
)

type FlowControl int

const (
	FlowNone FlowControl = iota
	FlowHardware
	FlowSoftware
)

const (
	DefaultBaudRate  = 115200
	DefaultDelimiter = "\r\n"
	DefaultXON       = 0x11
	DefaultXOFF      = 0x13
)

// Config holds configuration parameters for opening a serial port.
// Zero values select 115200 baud, 8 data bits, no parity, one stop bit, no
// flow control and a "\r\n" delimiter.
type Config struct {
	Device      string
	BaudRate    int
	DataBits    int
	Parity      Parity
	StopBits    StopBits
	FlowControl FlowControl
	// XON and XOFF are the software flow control characters.
	XON, XOFF byte
	Delimiter string
	// ReadTimeout bounds each wait for input in Read, ReadLine and
	// ReadLinesLoop. Zero waits forever.
	ReadTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.Delimiter == "" {
		c.Delimiter = DefaultDelimiter
	}
	if c.XON == 0 {
		c.XON = DefaultXON
	}
	if c.XOFF == 0 {
		c.XOFF = DefaultXOFF
	}
	return c
}

func (c Config) validate() error {
	if c.Device == "" {
		return errs.NewInvalidParamErr().WithErr(errors.New("empty device path"))
	}
	if _, ok := baudRates[c.BaudRate]; !ok {
		return errs.NewInvalidParamErr().WithErr(errors.Errorf("unsupported baud rate %d", c.BaudRate))
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return errs.NewInvalidParamErr().WithErr(errors.Errorf("unsupported data bits %d", c.DataBits))
	}
	if c.Parity < ParityNone || c.Parity > ParitySpace {
		return errs.NewInvalidParamErr().WithErr(errors.Errorf("unsupported parity %d", c.Parity))
	}
	if c.StopBits != StopBits1 && c.StopBits != StopBits2 {
		return errs.NewInvalidParamErr().WithErr(errors.Errorf("unsupported stop bits %d", c.StopBits))
	}
	if c.FlowControl < FlowNone || c.FlowControl > FlowSoftware {
		return errs.NewInvalidParamErr().WithErr(errors.Errorf("unsupported flow control %d", c.FlowControl))
	}
	return nil
}

// Port provides low-latency, killable access to a Linux serial port.
// It is safe for concurrent use by multiple goroutines.
type Port struct {
	fd        int
	file      *os.File
	done      chan struct{}
	closeOnce sync.Once
	config    Config
	pipeR     int // self-pipe read fd
	pipeW     int // self-pipe write fd

	// held shared while the descriptors are in use, exclusively to close them
	fdMu sync.RWMutex

	// bytes after the last delimiter returned by ReadLine
	lineMu  sync.Mutex
	pending []byte
}

// Open opens a serial port using the provided Config and returns a Port.
// The port is configured for raw, low-latency, non-buffered operation.
func Open(cfg Config) (*Port, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	fd, err := syscall.Open(cfg.Device, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0666)
	if err != nil {
		return nil, errs.NewOpenPortErr().WithErr(errors.Wrap(err, cfg.Device))
	}

	if err := configure(fd, cfg); err != nil {
		unix.Close(fd)
		return nil, err
	}

	// Turn back into blocking mode now that config is done
	if err := syscall.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, errs.NewConfigurePortErr().WithErr(errors.Wrap(err, "set blocking"))
	}

	// Create self-pipe for killability
	pipeFds := make([]int, 2)
	if err := unix.Pipe2(pipeFds, unix.O_CLOEXEC); err != nil {
		unix.Close(fd)
		return nil, errs.NewResourceExhaustedErr().WithErr(errors.Wrap(err, "pipe"))
	}

	logs.Debug("port opened", zap.String(consts.LogFieldDevice, cfg.Device), zap.Int(consts.LogFieldValue, cfg.BaudRate))
	return &Port{
		fd:     fd,
		file:   os.NewFile(uintptr(fd), cfg.Device),
		done:   make(chan struct{}),
		config: cfg,
		pipeR:  pipeFds[0],
		pipeW:  pipeFds[1],
	}, nil
}

func configure(fd int, cfg Config) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return errs.NewConfigurePortErr().WithErr(errors.Wrap(err, "get termios"))
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL |
		unix.IXON | unix.IXOFF | unix.IXANY | unix.INPCK
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CMSPAR | unix.CSTOPB | unix.CRTSCTS
	termios.Cflag |= unix.CREAD | unix.CLOCAL | dataBits[cfg.DataBits]

	switch cfg.Parity {
	case ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
	case ParityEven:
		termios.Cflag |= unix.PARENB
	case ParityMark:
		termios.Cflag |= unix.PARENB | unix.CMSPAR | unix.PARODD
	case ParitySpace:
		termios.Cflag |= unix.PARENB | unix.CMSPAR
	}
	if cfg.Parity != ParityNone {
		termios.Iflag |= unix.INPCK
	}

	if cfg.StopBits == StopBits2 {
		termios.Cflag |= unix.CSTOPB
	}

	switch cfg.FlowControl {
	case FlowHardware:
		termios.Cflag |= unix.CRTSCTS
	case FlowSoftware:
		termios.Iflag |= unix.IXON | unix.IXOFF
		termios.Cc[unix.VSTART] = cfg.XON
		termios.Cc[unix.VSTOP] = cfg.XOFF
	}

	// Baud rate
	baud := baudRates[cfg.BaudRate]
	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baud
	termios.Ispeed = baud
	termios.Ospeed = baud

	// Set VMIN=1, VTIME=0 for immediate, non-blocking reads
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return errs.NewConfigurePortErr().WithErr(errors.Wrap(err, "set termios"))
	}
	return nil
}

func (p *Port) Name() string {
	return p.config.Device
}

// Fd returns the device descriptor. It stays valid until Close.
func (p *Port) Fd() int {
	return p.fd
}

func (p *Port) Config() Config {
	return p.config
}

func (p *Port) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// use runs fn with the descriptors guaranteed open.
func (p *Port) use(fn func() error) error {
	p.fdMu.RLock()
	defer p.fdMu.RUnlock()
	if p.closed() {
		return errs.NewPortClosedErr()
	}
	return fn()
}

// waitReadable blocks until input is pending, the port is closed or the
// read timeout expires. The caller holds fdMu shared.
func (p *Port) waitReadable() error {
	timeout := -1
	if p.config.ReadTimeout > 0 {
		timeout = int(p.config.ReadTimeout / time.Millisecond)
		if timeout < 1 {
			timeout = 1
		}
	}

	// Use poll to wait for data or kill signal
	pfd := []unix.PollFd{
		{Fd: int32(p.fd), Events: unix.POLLIN},
		{Fd: int32(p.pipeR), Events: unix.POLLIN},
	}
	for {
		n, err := unix.Poll(pfd, timeout)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return errs.NewReadPortErr().WithErr(errors.Wrap(err, "poll"))
		}
		if n == 0 {
			return errs.NewTimeoutErr().WithErr(errors.Errorf("no input within %s", p.config.ReadTimeout))
		}
		// Check killability. The pipe byte is never drained so every waiter sees it.
		if pfd[1].Revents&unix.POLLIN != 0 || p.closed() {
			return errs.NewPortClosedErr()
		}
		rev := pfd[0].Revents
		if rev&unix.POLLIN != 0 {
			return nil
		}
		if rev&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			return errs.NewReadPortErr().WithErr(errors.New("device hung up"))
		}
	}
}

// Read waits for input and reads what is available, at most len(b) bytes.
func (p *Port) Read(b []byte) (int, error) {
	var n int
	err := p.use(func() error {
		if err := p.waitReadable(); err != nil {
			return err
		}
		var err error
		n, err = p.file.Read(b)
		return err
	})
	if err != nil && err != io.EOF && errs.GetCode(err) == errs.UnknownErrCode {
		err = errs.NewReadPortErr().WithErr(err)
	}
	return n, err
}

// ReadAvailable returns exactly the bytes pending in the input queue without
// blocking. It returns nil when nothing is pending.
func (p *Port) ReadAvailable() ([]byte, error) {
	var out []byte
	err := p.use(func() error {
		in, err := tty.InputPending(p.fd)
		if err != nil {
			return errs.NewIoctlErr().WithErr(err)
		}
		if in == 0 {
			return nil
		}
		// more may arrive after the ioctl; only what was counted is read
		buf := mcache.Malloc(in)
		defer mcache.Free(buf)
		n, err := p.file.Read(buf)
		if err != nil {
			return errs.NewReadPortErr().WithErr(err)
		}
		out = append([]byte(nil), buf[:n]...)
		return nil
	})
	return out, err
}

func (p *Port) Write(b []byte) (int, error) {
	var n int
	err := p.use(func() error {
		var err error
		n, err = p.file.Write(b)
		if err != nil {
			return errs.NewWritePortErr().WithErr(err)
		}
		return nil
	})
	return n, err
}

// WriteLine writes a line (with specified newline) to the serial port.
// An empty newline uses the configured delimiter.
func (p *Port) WriteLine(line string, newline string) error {
	if newline == "" {
		newline = p.config.Delimiter
	}
	_, err := p.Write([]byte(line + newline))
	return err
}

// ReadLine reads a single line from the serial port, blocking until a full line is received or an error occurs.
// The delimiter is specified in Config and is not returned. Bytes following
// it are kept for the next call.
func (p *Port) ReadLine() (string, error) {
	p.lineMu.Lock()
	defer p.lineMu.Unlock()

	delim := []byte(p.config.Delimiter)
	if line, ok := cutLine(&p.pending, delim); ok {
		return line, nil
	}

	buf := mcache.Malloc(readChunk)
	defer mcache.Free(buf)

	for {
		n, err := p.Read(buf)
		if err != nil {
			return "", err
		}
		p.pending = append(p.pending, buf[:n]...)
		if line, ok := cutLine(&p.pending, delim); ok {
			return line, nil
		}
	}
}

func cutLine(pending *[]byte, delim []byte) (string, bool) {
	idx := strings.Index(string(*pending), string(delim))
	if idx < 0 {
		return "", false
	}
	line := string((*pending)[:idx])
	*pending = append((*pending)[:0], (*pending)[idx+len(delim):]...)
	return line, true
}

// ReadLinesLoop continuously reads lines from the serial port and invokes onLine for each complete line.
// If an error occurs, onError is called and the loop exits. Closing the port
// ends the loop without calling onError.
func (p *Port) ReadLinesLoop(onLine func(string), onError func(error)) {
	buf := mcache.Malloc(readChunk)
	defer mcache.Free(buf)

	line := ""
	for {
		n, err := p.Read(buf)
		if err != nil {
			if errs.GetCode(err) != errs.PortClosedErrCode {
				onError(err)
			}
			return
		}
		line += string(buf[:n])
		for {
			idx := strings.Index(line, p.config.Delimiter)
			if idx < 0 {
				break
			}
			onLine(line[:idx])
			line = line[idx+len(p.config.Delimiter):]
		}
	}
}

// Close closes the serial port and unblocks any Read/ReadLine/ReadLinesLoop calls.
// Safe to call multiple times; subsequent calls are no-ops.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		// Wake up poll using self-pipe
		unix.Write(p.pipeW, []byte{1})

		p.fdMu.Lock()
		defer p.fdMu.Unlock()
		// the file owns the device descriptor
		if cerr := p.file.Close(); cerr != nil {
			err = errs.NewPortClosedErr().WithErr(cerr)
		}
		unix.Close(p.pipeR)
		unix.Close(p.pipeW)
		logs.Debug("port closed", zap.String(consts.LogFieldDevice, p.config.Device))
	})
	return err
}

var dataBits = map[int]uint32{
	5: unix.CS5,
	6: unix.CS6,
	7: unix.CS7,
	8: unix.CS8,
}

var baudRates = map[int]uint32{
	50:      unix.B50,
	75:      unix.B75,
	110:     unix.B110,
	134:     unix.B134,
	150:     unix.B150,
	200:     unix.B200,
	300:     unix.B300,
	600:     unix.B600,
	1200:    unix.B1200,
	1800:    unix.B1800,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1152000: unix.B1152000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
	2500000: unix.B2500000,
	3000000: unix.B3000000,
	3500000: unix.B3500000,
	4000000: unix.B4000000,
}
