package serial

import "golang.org/x/sys/unix"

// setBaud programs both input and output speed. On Linux, unix.Termios
// carries dedicated Ispeed/Ospeed fields alongside the CBAUD bits in
// Cflag; setting all three keeps glibc and musl ioctl paths consistent.
func setBaud(t *unix.Termios, baud uint32) {
	t.Cflag &^= unix.CBAUD
	t.Cflag |= baud
	t.Ispeed = baud
	t.Ospeed = baud
}
