// Package serial opens and configures the instrument's serial line using
// termios ioctls, the same low-level territory Daedaluz-goserial covers,
// but through golang.org/x/sys/unix directly instead of an external ioctl
// shim so the module stays on dependencies the retrieval pack actually
// vendors.
package serial

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Parity identifies the serial line's parity mode.
type Parity int

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

// Settings describes how to open and program the serial line (spec.md §6).
type Settings struct {
	Port           string
	BaudRate       int
	ByteSize       int
	Parity         Parity
	StopBits       int
	ReadTimeoutMs  int
	WriteTimeoutMs int
	RTSCTS         bool
	DSRDTR         bool
	XonXoff        bool
}

// Sentinel errors classifying why a serial port could not be opened or
// read from (spec.md §7).
var (
	ErrDeviceUnavailable = errors.New("serial: device unavailable")
	ErrPermissionDenied  = errors.New("serial: permission denied")
	ErrDeviceBusy        = errors.New("serial: device busy")
	ErrDeviceLost        = errors.New("serial: device lost")
)

// Port is an open, configured serial line.
type Port struct {
	f    *os.File
	fd   uintptr
	orig unix.Termios
}

// Open opens the serial device and programs it per Settings. classifyOpenErr
// maps the underlying OS error onto the sentinel kinds above; the producer
// retries every kind of open failure alike.
func Open(s Settings) (*Port, error) {
	f, err := os.OpenFile(s.Port, os.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, classifyOpenErr(err)
	}
	fd := f.Fd()

	orig, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("serial: tcgetattr %s: %w", s.Port, err)
	}

	t := *orig
	if err := applySettings(&t, s); err != nil {
		f.Close()
		return nil, err
	}
	if err := unix.IoctlSetTermios(int(fd), unix.TCSETS, &t); err != nil {
		f.Close()
		return nil, fmt.Errorf("serial: tcsetattr %s: %w", s.Port, err)
	}

	// Clear O_NONBLOCK now that the line is configured; reads block up to
	// VTIME deciseconds as programmed in applySettings.
	flags, err := unix.FcntlInt(fd, unix.F_GETFL, 0)
	if err == nil {
		_, _ = unix.FcntlInt(fd, unix.F_SETFL, flags&^unix.O_NONBLOCK)
	}

	return &Port{f: f, fd: fd, orig: *orig}, nil
}

func classifyOpenErr(err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case errors.Is(err, syscall.EBUSY):
		return fmt.Errorf("%w: %v", ErrDeviceBusy, err)
	default:
		return err
	}
}

func baudConstant(rate int) (uint32, error) {
	switch rate {
	case 1200:
		return unix.B1200, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	default:
		return 0, fmt.Errorf("serial: unsupported baud rate %d", rate)
	}
}

func applySettings(t *unix.Termios, s Settings) error {
	baud, err := baudConstant(s.BaudRate)
	if err != nil {
		return err
	}

	// Raw mode: no line discipline processing of any kind.
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB | unix.CRTSCTS
	t.Cflag |= unix.CREAD | unix.CLOCAL

	switch s.ByteSize {
	case 5:
		t.Cflag |= unix.CS5
	case 6:
		t.Cflag |= unix.CS6
	case 7:
		t.Cflag |= unix.CS7
	case 8:
		t.Cflag |= unix.CS8
	default:
		return fmt.Errorf("serial: unsupported byte size %d", s.ByteSize)
	}

	switch s.Parity {
	case ParityEven:
		t.Cflag |= unix.PARENB
	case ParityOdd:
		t.Cflag |= unix.PARENB | unix.PARODD
	}

	if s.StopBits == 2 {
		t.Cflag |= unix.CSTOPB
	}

	if s.RTSCTS {
		t.Cflag |= unix.CRTSCTS
	}
	if s.XonXoff {
		t.Iflag |= unix.IXON | unix.IXOFF
	}

	setBaud(t, baud)

	// VMIN=0, VTIME in deciseconds implements the configured read timeout
	// as a non-canonical blocking read with a deadline, per termios(3).
	vtime := s.ReadTimeoutMs / 100
	if vtime < 1 {
		vtime = 1
	}
	if vtime > 255 {
		vtime = 255
	}
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = uint8(vtime)

	return nil
}

// Read reads up to len(buf) bytes, honoring the configured read timeout via
// VTIME. A zero-byte, nil-error return means the read timed out with no
// data available — callers treat that as a heartbeat tick, not EOF.
func (p *Port) Read(buf []byte) (int, error) {
	n, err := p.f.Read(buf)
	if err != nil {
		return n, classifyReadErr(err)
	}
	return n, nil
}

// Write writes buf to the line, used only for instrument control commands
// outside the recorder's default read-only operation.
func (p *Port) Write(buf []byte) (int, error) {
	return p.f.Write(buf)
}

func classifyReadErr(err error) error {
	if errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.EIO) || errors.Is(err, syscall.ENXIO) {
		return fmt.Errorf("%w: %v", ErrDeviceLost, err)
	}
	return err
}

// Close restores the line's original termios settings and closes the file.
func (p *Port) Close() error {
	_ = unix.IoctlSetTermios(int(p.fd), unix.TCSETS, &p.orig)
	return p.f.Close()
}

// SetReadDeadline is a thin wrapper so callers can bound Read beyond what
// VTIME alone offers, e.g. to detect a wedged device during shutdown.
func (p *Port) SetReadDeadline(t time.Time) error {
	return p.f.SetReadDeadline(t)
}
