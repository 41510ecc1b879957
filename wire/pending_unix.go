//go:build linux || darwin

package wire

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// kernelPending returns a probe for the number of received bytes queued in
// the socket and not yet read. Sockets that expose no descriptor report 0.
func kernelPending(conn net.Conn) func() (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return noPending
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return noPending
	}

	return func() (int, error) {
		var (
			n        int
			ioctlErr error
		)

		if err := raw.Control(func(fd uintptr) {
			n, ioctlErr = unix.IoctlGetInt(int(fd), inqRequest)
		}); err != nil {
			return 0, err
		}

		return n, ioctlErr
	}
}

func noPending() (int, error) {
	return 0, nil
}
