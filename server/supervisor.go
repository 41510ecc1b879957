package server

import (
	"context"
	"runtime/debug"

	"github.com/cyberinferno/tradeserver/lease"
	"github.com/cyberinferno/tradeserver/logger"
	"github.com/cyberinferno/tradeserver/notify"
	"github.com/cyberinferno/tradeserver/wire"
)

// ReasonClosedWhileHolding is the reclaim reason for leases still held by a
// client that closed its connection in an orderly way.
const ReasonClosedWhileHolding = "client closed the connection while still holding it"

// SessionFunc runs one client conversation. Volume must be requested from
// alloc, which tracks every lease the session holds.
type SessionFunc func(ctx context.Context, conn *wire.Connection, alloc lease.Allocator) error

// Supervisor is a SessionHandler giving each session its own lease.Pool on
// top of a shared allocator. When the session ends, leases it still holds
// are reclaimed.
type Supervisor struct {
	shared        lease.Allocator
	run           SessionFunc
	reclaimOnExit bool
	notifier      notify.Notifier
	log           logger.Logger
}

// NewSupervisor creates a Supervisor.
//
// Parameters:
//   - shared: The allocator all sessions draw from; must be safe for concurrent use
//   - run: The session conversation
//   - reclaimOnExit: Whether leases left behind by a session are returned automatically
//   - notifier: Receives one event per reclaimed lease
//   - log: Logger for diagnostics
//
// Returns:
//   - A new Supervisor
func NewSupervisor(shared lease.Allocator, run SessionFunc, reclaimOnExit bool, notifier notify.Notifier, log logger.Logger) *Supervisor {
	return &Supervisor{
		shared:        shared,
		run:           run,
		reclaimOnExit: reclaimOnExit,
		notifier:      notifier,
		log:           log,
	}
}

// ServeSession implements SessionHandler. A panic in the session is turned
// into a *PanicError after its leases were settled.
func (s *Supervisor) ServeSession(ctx context.Context, conn *wire.Connection) (err error) {
	pool := lease.NewPool(s.shared, s.notifier, s.log)

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}

		s.settle(pool, err)
	}()

	return s.run(ctx, conn, pool)
}

func (s *Supervisor) settle(pool *lease.Pool, err error) {
	active := pool.Active()
	if active == 0 {
		return
	}

	if !s.reclaimOnExit {
		s.log.Warn("session ended holding volume",
			logger.F("leases", active), logger.F("volume", pool.Outstanding().String()))
		return
	}

	var (
		reclaimed int
		rerr      error
	)
	if err == nil || wire.OutcomeOf(err) == wire.ClosedNormally {
		reclaimed, rerr = pool.Reclaim(ReasonClosedWhileHolding)
	} else {
		reclaimed, rerr = pool.ForceReclaimAll()
	}

	if rerr != nil {
		s.log.Error("reclaiming volume failed", logger.Err(rerr))
	}

	s.log.Info("reclaimed volume of ended session", logger.F("leases", reclaimed))
}
