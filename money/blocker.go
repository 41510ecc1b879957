package money

import (
	"fmt"

	"github.com/cyberinferno/tradeserver/domain"
)

// TradeBlocker limits how many trades may be open at the same time.
type TradeBlocker interface {
	// Allowed reports whether a new trade of symbol may be opened.
	Allowed(symbol domain.ForexSymbol) bool

	// Block records an opened trade of symbol.
	Block(symbol domain.ForexSymbol) error

	// Unblock records that a trade of symbol was closed.
	Unblock(symbol domain.ForexSymbol) error
}

// OneTradePerCurrency allows a single open trade per currency: while EURUSD
// is open neither EURGBP nor GBPUSD may be traded.
type OneTradePerCurrency struct {
	invested map[domain.Currency]struct{}
}

func NewOneTradePerCurrency() *OneTradePerCurrency {
	return &OneTradePerCurrency{invested: make(map[domain.Currency]struct{})}
}

func (b *OneTradePerCurrency) Allowed(symbol domain.ForexSymbol) bool {
	_, base := b.invested[symbol.Base]
	_, quote := b.invested[symbol.Quote]
	return !base && !quote
}

func (b *OneTradePerCurrency) Block(symbol domain.ForexSymbol) error {
	if !b.Allowed(symbol) {
		return fmt.Errorf("%w: currencies of %s are already blocked", ErrBlockState, symbol)
	}

	b.invested[symbol.Base] = struct{}{}
	b.invested[symbol.Quote] = struct{}{}
	return nil
}

func (b *OneTradePerCurrency) Unblock(symbol domain.ForexSymbol) error {
	_, base := b.invested[symbol.Base]
	_, quote := b.invested[symbol.Quote]
	if !base || !quote {
		return fmt.Errorf("%w: currencies of %s are not blocked", ErrBlockState, symbol)
	}

	delete(b.invested, symbol.Base)
	delete(b.invested, symbol.Quote)
	return nil
}

// FixedTradeCount allows up to Max open trades regardless of the symbol.
type FixedTradeCount struct {
	Max    int
	active int
}

func (b *FixedTradeCount) Allowed(domain.ForexSymbol) bool {
	return b.active < b.Max
}

func (b *FixedTradeCount) Block(symbol domain.ForexSymbol) error {
	if !b.Allowed(symbol) {
		return fmt.Errorf("%w: %d trades already open", ErrBlockState, b.active)
	}

	b.active++
	return nil
}

func (b *FixedTradeCount) Unblock(domain.ForexSymbol) error {
	if b.active == 0 {
		return fmt.Errorf("%w: no open trade", ErrBlockState)
	}

	b.active--
	return nil
}
