package money

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/cyberinferno/tradeserver/domain"
)

// RateStore keeps the latest exchange rate per currency pair. Updating a pair
// also stores the inverse rate for the opposite pair. With a TTL, rates that
// were not refreshed in time count as unknown.
type RateStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewRateStore creates an empty store. A ttl <= 0 keeps rates forever.
//
// Parameters:
//   - ttl: How long a rate stays valid after its last update
//
// Returns:
//   - A new RateStore
func NewRateStore(ttl time.Duration) *RateStore {
	if ttl <= 0 {
		return &RateStore{cache: cache.New(cache.NoExpiration, 0), ttl: cache.NoExpiration}
	}

	return &RateStore{cache: cache.New(ttl, 2*ttl), ttl: ttl}
}

// Update records that one unit of pair.Base costs rate units of pair.Quote.
func (s *RateStore) Update(pair domain.ForexSymbol, rate domain.Price) error {
	if !rate.IsPositive() {
		return fmt.Errorf("%w: %s for %s", ErrInvalidRate, rate, pair)
	}

	s.cache.Set(pair.String(), rate.Decimal(), s.ttl)
	s.cache.Set(pair.Inverse().String(), decimal.NewFromInt(1).Div(rate.Decimal()), s.ttl)
	return nil
}

// Rate returns how many units of variable one unit of fixed is worth.
func (s *RateStore) Rate(fixed, variable domain.Currency) (decimal.Decimal, bool) {
	v, ok := s.cache.Get(string(fixed) + string(variable))
	if !ok {
		return decimal.Decimal{}, false
	}

	return v.(decimal.Decimal), true
}

// Len returns the number of stored pairs, inverses included.
func (s *RateStore) Len() int {
	return s.cache.ItemCount()
}
