package server

import (
	"runtime"

	"github.com/cyberinferno/tradeserver/logger"
)

// spawn runs fn on a new worker goroutine configured by cfg.Worker.
func (a *Acceptor) spawn(fn func()) {
	opts := a.cfg.Worker
	if !opts.Detached {
		a.workers.Add(1)
	}

	go func() {
		if !opts.Detached {
			defer a.workers.Done()
		}

		if opts.LockOSThread {
			runtime.LockOSThread()
			// A thread whose priority was changed must not go back to the
			// runtime's pool. Exiting while locked terminates it.
			if !a.applyPriority(opts.Priority) {
				defer runtime.UnlockOSThread()
			}
		}

		fn()
	}()
}

// applyPriority sets the nice value of the current thread and reports
// whether it was changed. Failures are expected without CAP_SYS_NICE and
// only logged.
func (a *Acceptor) applyPriority(priority int) bool {
	if priority == 0 {
		return false
	}

	if err := setThreadPriority(priority); err != nil {
		a.log.Debug("worker priority unchanged", logger.F("priority", priority), logger.Err(err))
		return false
	}

	return true
}
