// Package lease hands out tradeable volume to concurrently connected
// sessions. A Pool tracks every lease it granted so that the volume of a
// session that vanished can be reclaimed, and Synchronized serializes all
// access to an allocator that is not safe for concurrent use.
package lease

import (
	"errors"

	"github.com/cyberinferno/tradeserver/domain"
)

var (
	// ErrLeaseReleased is returned when a lease is released a second time,
	// including after it was reclaimed by force. The underlying release is
	// not repeated.
	ErrLeaseReleased = errors.New("lease already released")

	// ErrForeignLease is returned when a Pool is asked to release a lease it
	// did not grant.
	ErrForeignLease = errors.New("lease was not granted by this pool")
)

// Lease is volume granted for a single trade. It must be released exactly
// once when the trade is finished.
type Lease interface {
	// Volume returns the granted amount.
	Volume() domain.Volume

	// Release returns the volume to the allocator that granted it.
	Release() error
}

// Allocator grants volume and keeps the account state the grants are based on.
type Allocator interface {
	// RequestVolume asks for volume for one trade. A denial is not an error:
	// it returns a nil Lease and a nil error. An error means the request
	// could not be evaluated, e.g. a required exchange rate is unknown.
	RequestVolume(req domain.VolumeRequest) (Lease, error)

	// UpdateBalance informs the allocator about the current account balance.
	UpdateBalance(balance domain.Money) error

	// UpdateExchangeRate informs the allocator about the current rate of a
	// currency pair.
	UpdateExchangeRate(pair domain.ForexSymbol, rate domain.Price) error
}
