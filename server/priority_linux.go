//go:build linux

package server

import "golang.org/x/sys/unix"

// setThreadPriority changes the nice value of the calling OS thread only.
// Raising priority (negative values) needs CAP_SYS_NICE.
func setThreadPriority(nice int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), nice)
}
