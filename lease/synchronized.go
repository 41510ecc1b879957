package lease

import (
	"sync"

	"github.com/cyberinferno/tradeserver/domain"
)

// Synchronized makes an Allocator and every lease it grants safe for
// concurrent use. RequestVolume, UpdateBalance, UpdateExchangeRate and
// Release on any granted lease all run under one mutex owned by the
// Synchronized, so a lease released from one goroutine never overlaps a
// request made from another.
type Synchronized struct {
	mu   sync.Mutex
	orig Allocator
}

// NewSynchronized wraps orig.
func NewSynchronized(orig Allocator) *Synchronized {
	return &Synchronized{orig: orig}
}

// RequestVolume implements Allocator.
func (s *Synchronized) RequestVolume(req domain.VolumeRequest) (Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	granted, err := s.orig.RequestVolume(req)
	if err != nil || granted == nil {
		return nil, err
	}

	return &syncLease{owner: s, inner: granted, volume: granted.Volume()}, nil
}

// UpdateBalance implements Allocator.
func (s *Synchronized) UpdateBalance(balance domain.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orig.UpdateBalance(balance)
}

// UpdateExchangeRate implements Allocator.
func (s *Synchronized) UpdateExchangeRate(pair domain.ForexSymbol, rate domain.Price) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orig.UpdateExchangeRate(pair, rate)
}

func (s *Synchronized) release(l *syncLease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.released {
		return ErrLeaseReleased
	}

	l.released = true
	return l.inner.Release()
}

// syncLease caches the volume at grant time so Volume needs no lock.
type syncLease struct {
	owner  *Synchronized
	inner  Lease
	volume domain.Volume
	// guarded by owner.mu
	released bool
}

func (l *syncLease) Volume() domain.Volume {
	return l.volume
}

func (l *syncLease) Release() error {
	return l.owner.release(l)
}
