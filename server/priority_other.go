//go:build !linux

package server

import "errors"

var errPriorityUnsupported = errors.New("per-thread priority is not supported on this platform")

func setThreadPriority(int) error {
	return errPriorityUnsupported
}
