package serial

import (
	"errors"
	"os"
	"syscall"
	"testing"

	"golang.org/x/sys/unix"
)

func TestBaudConstantKnownRates(t *testing.T) {
	cases := map[int]uint32{
		1200:   unix.B1200,
		9600:   unix.B9600,
		19200:  unix.B19200,
		115200: unix.B115200,
		230400: unix.B230400,
	}
	for rate, want := range cases {
		got, err := baudConstant(rate)
		if err != nil {
			t.Fatalf("baudConstant(%d): %v", rate, err)
		}
		if got != want {
			t.Errorf("baudConstant(%d) = %v, want %v", rate, got, want)
		}
	}
}

func TestBaudConstantRejectsUnsupportedRate(t *testing.T) {
	if _, err := baudConstant(1); err == nil {
		t.Fatalf("expected an error for an unsupported baud rate")
	}
}

func TestApplySettingsProgramsByteSizeParityAndStopBits(t *testing.T) {
	var term unix.Termios
	s := Settings{
		BaudRate:      9600,
		ByteSize:      7,
		Parity:        ParityEven,
		StopBits:      2,
		ReadTimeoutMs: 500,
	}
	if err := applySettings(&term, s); err != nil {
		t.Fatalf("applySettings: %v", err)
	}
	if term.Cflag&unix.CS7 == 0 {
		t.Errorf("expected CS7 set in Cflag, got %x", term.Cflag)
	}
	if term.Cflag&unix.PARENB == 0 {
		t.Errorf("expected PARENB set for even parity")
	}
	if term.Cflag&unix.PARODD != 0 {
		t.Errorf("PARODD must not be set for even parity")
	}
	if term.Cflag&unix.CSTOPB == 0 {
		t.Errorf("expected CSTOPB set for 2 stop bits")
	}
	if term.Cc[unix.VMIN] != 0 {
		t.Errorf("VMIN must be 0 for a timed non-canonical read")
	}
	if term.Cc[unix.VTIME] != 5 {
		t.Errorf("VTIME = %d, want 5 (500ms / 100)", term.Cc[unix.VTIME])
	}
}

func TestApplySettingsClampsReadTimeoutToVTimeRange(t *testing.T) {
	var term unix.Termios
	s := Settings{BaudRate: 9600, ByteSize: 8, ReadTimeoutMs: 1}
	if err := applySettings(&term, s); err != nil {
		t.Fatalf("applySettings: %v", err)
	}
	if term.Cc[unix.VTIME] != 1 {
		t.Errorf("VTIME should clamp up to 1 decisecond minimum, got %d", term.Cc[unix.VTIME])
	}

	term = unix.Termios{}
	s.ReadTimeoutMs = 1_000_000
	if err := applySettings(&term, s); err != nil {
		t.Fatalf("applySettings: %v", err)
	}
	if term.Cc[unix.VTIME] != 255 {
		t.Errorf("VTIME should clamp down to 255 decisecond maximum, got %d", term.Cc[unix.VTIME])
	}
}

func TestApplySettingsRejectsUnsupportedByteSize(t *testing.T) {
	var term unix.Termios
	s := Settings{BaudRate: 9600, ByteSize: 4}
	if err := applySettings(&term, s); err == nil {
		t.Fatalf("expected an error for an unsupported byte size")
	}
}

func TestApplySettingsOddParityAndFlowControl(t *testing.T) {
	var term unix.Termios
	s := Settings{BaudRate: 9600, ByteSize: 8, Parity: ParityOdd, RTSCTS: true, XonXoff: true, ReadTimeoutMs: 100}
	if err := applySettings(&term, s); err != nil {
		t.Fatalf("applySettings: %v", err)
	}
	if term.Cflag&unix.PARENB == 0 || term.Cflag&unix.PARODD == 0 {
		t.Errorf("expected PARENB|PARODD for odd parity, got %x", term.Cflag)
	}
	if term.Cflag&unix.CRTSCTS == 0 {
		t.Errorf("expected CRTSCTS set when RTSCTS requested")
	}
	if term.Iflag&unix.IXON == 0 || term.Iflag&unix.IXOFF == 0 {
		t.Errorf("expected IXON|IXOFF set when XonXoff requested")
	}
}

func TestClassifyOpenErrMapsSentinels(t *testing.T) {
	if got := classifyOpenErr(os.ErrNotExist); !errors.Is(got, ErrDeviceUnavailable) {
		t.Errorf("ErrNotExist should classify as ErrDeviceUnavailable, got %v", got)
	}
	if got := classifyOpenErr(os.ErrPermission); !errors.Is(got, ErrPermissionDenied) {
		t.Errorf("ErrPermission should classify as ErrPermissionDenied, got %v", got)
	}
	if got := classifyOpenErr(syscall.EBUSY); !errors.Is(got, ErrDeviceBusy) {
		t.Errorf("EBUSY should classify as ErrDeviceBusy, got %v", got)
	}
	other := errors.New("boom")
	if got := classifyOpenErr(other); !errors.Is(got, other) {
		t.Errorf("unrecognized errors should pass through unchanged, got %v", got)
	}
}

func TestClassifyReadErrMapsDeviceLost(t *testing.T) {
	if got := classifyReadErr(os.ErrClosed); !errors.Is(got, ErrDeviceLost) {
		t.Errorf("ErrClosed should classify as ErrDeviceLost, got %v", got)
	}
	if got := classifyReadErr(syscall.EIO); !errors.Is(got, ErrDeviceLost) {
		t.Errorf("EIO should classify as ErrDeviceLost, got %v", got)
	}
	other := errors.New("timeout-ish")
	if got := classifyReadErr(other); !errors.Is(got, other) {
		t.Errorf("unrecognized read errors should pass through unchanged, got %v", got)
	}
}

func TestSetBaudProgramsInputAndOutputSpeed(t *testing.T) {
	var term unix.Termios
	term.Cflag = unix.CBAUD // pretend some stale rate bits are set
	setBaud(&term, unix.B19200)
	if term.Cflag&unix.CBAUD != unix.B19200 {
		t.Errorf("Cflag baud bits = %x, want %x", term.Cflag&unix.CBAUD, unix.B19200)
	}
	if term.Ispeed != unix.B19200 || term.Ospeed != unix.B19200 {
		t.Errorf("Ispeed/Ospeed = %d/%d, want %d", term.Ispeed, term.Ospeed, unix.B19200)
	}
}

func TestListPortsReturnsSortedDeduplicated(t *testing.T) {
	got := ListPorts()
	seen := map[string]bool{}
	for i, p := range got {
		if seen[p] {
			t.Fatalf("ListPorts returned duplicate entry %q", p)
		}
		seen[p] = true
		if i > 0 && got[i-1] > p {
			t.Fatalf("ListPorts is not sorted: %q before %q", got[i-1], p)
		}
	}
}
