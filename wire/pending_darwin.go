package wire

import "syscall"

const inqRequest = syscall.FIONREAD
