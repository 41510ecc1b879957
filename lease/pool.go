package lease

import (
	"errors"
	"fmt"

	"github.com/cyberinferno/tradeserver/domain"
	"github.com/cyberinferno/tradeserver/logger"
	"github.com/cyberinferno/tradeserver/notify"
	"github.com/cyberinferno/tradeserver/safeset"
)

// ReasonTerminatedUnexpectedly is the reclaim reason used by ForceReclaimAll.
const ReasonTerminatedUnexpectedly = "session terminated unexpectedly"

// Pool grants leases from an underlying allocator and remembers every lease
// that is still active, so that all of them can be reclaimed at once.
type Pool struct {
	alloc    Allocator
	notifier notify.Notifier
	log      logger.Logger
	active   *safeset.SafeSet[*trackedLease]
}

// NewPool creates a Pool on top of alloc.
//
// Parameters:
//   - alloc: The allocator leases are requested from and returned to
//   - notifier: Receives one notification per lease reclaimed by force
//   - log: Logger for lease bookkeeping
//
// Returns:
//   - A new Pool with no active leases
func NewPool(alloc Allocator, notifier notify.Notifier, log logger.Logger) *Pool {
	return &Pool{
		alloc:    alloc,
		notifier: notifier,
		log:      log,
		active:   safeset.NewSafeSet[*trackedLease](),
	}
}

// RequestVolume implements Allocator. Granted leases are tracked until they
// are released or reclaimed.
func (p *Pool) RequestVolume(req domain.VolumeRequest) (Lease, error) {
	granted, err := p.alloc.RequestVolume(req)
	if err != nil {
		return nil, err
	}

	if granted == nil {
		p.log.Debug("volume request denied", logger.F("symbol", req.Symbol.String()))
		return nil, nil
	}

	l := &trackedLease{pool: p, inner: granted, volume: granted.Volume()}
	p.active.Add(l)
	p.log.Debug("volume granted", logger.F("symbol", req.Symbol.String()), logger.F("volume", l.volume.String()))
	return l, nil
}

// Release returns a lease granted by this pool. It is equivalent to calling
// the lease's own Release.
func (p *Pool) Release(l Lease) error {
	tl, ok := l.(*trackedLease)
	if !ok || tl.pool != p {
		return ErrForeignLease
	}

	return p.release(tl)
}

// UpdateBalance implements Allocator.
func (p *Pool) UpdateBalance(balance domain.Money) error {
	return p.alloc.UpdateBalance(balance)
}

// UpdateExchangeRate implements Allocator.
func (p *Pool) UpdateExchangeRate(pair domain.ForexSymbol, rate domain.Price) error {
	return p.alloc.UpdateExchangeRate(pair, rate)
}

// Active returns the number of leases not yet released.
func (p *Pool) Active() int {
	return p.active.Size()
}

// Outstanding returns the sum of all active leases.
func (p *Pool) Outstanding() domain.Volume {
	var total domain.Volume
	for _, l := range p.active.Snapshot() {
		total += l.volume
	}

	return total
}

// ForceReclaimAll releases every active lease on behalf of its holder, which
// will not learn about it, and emits one notification per lease.
//
// Returns:
//   - The number of leases reclaimed
//   - The joined errors of underlying releases that failed
func (p *Pool) ForceReclaimAll() (int, error) {
	return p.Reclaim(ReasonTerminatedUnexpectedly)
}

// Reclaim is ForceReclaimAll with a custom reason in the notifications.
//
// Each lease is claimed from the active set before it is released, so a
// holder releasing concurrently and the reclaim never both release it. The
// notification is sent even if the underlying release failed, and no lock is
// held while notifying.
func (p *Pool) Reclaim(reason string) (int, error) {
	var (
		reclaimed int
		errs      []error
	)

	for _, l := range p.active.Snapshot() {
		if !p.active.TryRemove(l) {
			continue
		}

		reclaimed++
		err := l.inner.Release()
		if err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", l.volume, err))
		}

		p.notifier.UnexpectedEvent(fmt.Sprintf(
			"A volume of %s (%d units) lent to a session was forcefully returned to the money management because the %s.",
			l.volume, l.volume.Base(), reason), err)
	}

	return reclaimed, errors.Join(errs...)
}

func (p *Pool) release(l *trackedLease) error {
	if !p.active.TryRemove(l) {
		return ErrLeaseReleased
	}

	return l.inner.Release()
}

type trackedLease struct {
	pool   *Pool
	inner  Lease
	volume domain.Volume
}

func (l *trackedLease) Volume() domain.Volume {
	return l.volume
}

func (l *trackedLease) Release() error {
	return l.pool.release(l)
}
