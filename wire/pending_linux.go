package wire

import "golang.org/x/sys/unix"

// inqRequest is the ioctl returning the unread bytes of a TCP socket.
const inqRequest = unix.SIOCINQ
