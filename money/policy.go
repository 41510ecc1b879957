// Package money decides how much volume a trade may use. Policies implement
// lease.Allocator and are not safe for concurrent use; share them through
// lease.Synchronized.
package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/cyberinferno/tradeserver/domain"
	"github.com/cyberinferno/tradeserver/lease"
)

// maxVolume caps computed volumes to what fits in a domain.Volume.
var maxVolume = decimal.NewFromInt(math.MaxInt64)

var (
	// ErrMissingExchangeRate means a request needs a conversion into the
	// account currency for which no rate is known. The request is rejected
	// instead of denied so the misconfiguration surfaces.
	ErrMissingExchangeRate = errors.New("exchange rate not available")

	// ErrInvalidRiskRatio is returned for risk ratios outside [0, 1].
	ErrInvalidRiskRatio = errors.New("risk ratio must be between 0% and 100%")

	// ErrInvalidRate is returned for non-positive exchange rates.
	ErrInvalidRate = errors.New("exchange rate must be positive")

	// ErrInvalidRequest is returned for requests that can't be priced, e.g.
	// a non-positive stop loss distance.
	ErrInvalidRequest = errors.New("invalid volume request")

	// ErrBlockState means a trade blocker was asked to block what is blocked
	// or to unblock what is not.
	ErrBlockState = errors.New("inconsistent trade blocker state")
)

// DefaultRisk is the share of the balance risked per trade.
var DefaultRisk = domain.Percent(1)

// RiskPolicy risks a fixed share of the account balance per trade and lets a
// TradeBlocker veto trades.
type RiskPolicy struct {
	risk    domain.Ratio
	rates   *RateStore
	blocker TradeBlocker
	balance domain.Money
}

// NewRiskPolicy creates a policy with a zero balance in accountCurrency.
//
// Parameters:
//   - risk: Share of the balance lost when a trade hits its stop loss
//   - accountCurrency: Currency of the initial zero balance
//   - rates: Exchange rates for symbols not containing the account currency
//   - blocker: Trade limiter; nil means NewOneTradePerCurrency()
//
// Returns:
//   - The policy, or ErrInvalidRiskRatio
func NewRiskPolicy(risk domain.Ratio, accountCurrency domain.Currency, rates *RateStore, blocker TradeBlocker) (*RiskPolicy, error) {
	if !risk.Within() {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidRiskRatio, risk)
	}

	if blocker == nil {
		blocker = NewOneTradePerCurrency()
	}

	if rates == nil {
		rates = NewRateStore(0)
	}

	return &RiskPolicy{
		risk:    risk,
		rates:   rates,
		blocker: blocker,
		balance: domain.NewMoney(decimal.Zero, accountCurrency),
	}, nil
}

// RequestVolume implements lease.Allocator. The volume is computed before
// the blocker is touched, so a rejected request leaves no currency blocked.
func (p *RiskPolicy) RequestVolume(req domain.VolumeRequest) (lease.Lease, error) {
	if !p.blocker.Allowed(req.Symbol) {
		return nil, nil
	}

	volume, err := p.volumeFor(req)
	if err != nil {
		return nil, err
	}

	if volume <= 0 {
		return nil, nil
	}

	if err := p.blocker.Block(req.Symbol); err != nil {
		return nil, err
	}

	return &riskLease{policy: p, symbol: req.Symbol, volume: volume}, nil
}

// UpdateBalance implements lease.Allocator.
func (p *RiskPolicy) UpdateBalance(balance domain.Money) error {
	p.balance = balance
	return nil
}

// UpdateExchangeRate implements lease.Allocator.
func (p *RiskPolicy) UpdateExchangeRate(pair domain.ForexSymbol, rate domain.Price) error {
	return p.rates.Update(pair, rate)
}

// Balance returns the last balance received.
func (p *RiskPolicy) Balance() domain.Money {
	return p.balance
}

func (p *RiskPolicy) volumeFor(req domain.VolumeRequest) (domain.Volume, error) {
	pipettes := req.PipLostOnStopLoss.Pipettes()
	if pipettes <= 0 {
		return 0, fmt.Errorf("%w: stop loss distance %s is below one pipette", ErrInvalidRequest, req.PipLostOnStopLoss)
	}

	pipetteValue, err := p.pipetteValue(req.Symbol, req.CurrentPrice)
	if err != nil {
		return 0, err
	}

	atRisk := p.balance.Amount.Mul(p.risk.Decimal())
	lossPerUnit := pipetteValue.Mul(decimal.NewFromInt(pipettes))
	units := atRisk.Div(lossPerUnit).Floor()
	if units.GreaterThan(maxVolume) {
		units = maxVolume
	}

	return domain.Volume(units.IntPart()).RoundDown(req.AllowedStepSize), nil
}

// pipetteValue is the worth of one pipette of one base unit of symbol in the
// account currency.
func (p *RiskPolicy) pipetteValue(symbol domain.ForexSymbol, price domain.Price) (decimal.Decimal, error) {
	pipette := domain.PriceFromPipettes(1).Decimal()
	account := p.balance.Currency

	switch account {
	case symbol.Base:
		if !price.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: price %s of %s is not positive", ErrInvalidRequest, price, symbol)
		}
		return pipette.Div(price.Decimal()), nil
	case symbol.Quote:
		return pipette, nil
	}

	rate, ok := p.rates.Rate(symbol.Quote, account)
	if !ok {
		return decimal.Zero, fmt.Errorf(
			"%w: pricing a pipette of %s in %s requires the rate from %s to %s",
			ErrMissingExchangeRate, symbol, account, symbol.Quote, account)
	}

	return pipette.Mul(rate), nil
}

type riskLease struct {
	policy   *RiskPolicy
	symbol   domain.ForexSymbol
	volume   domain.Volume
	released bool
}

func (l *riskLease) Volume() domain.Volume {
	return l.volume
}

func (l *riskLease) Release() error {
	if l.released {
		return lease.ErrLeaseReleased
	}

	l.released = true
	return l.policy.blocker.Unblock(l.symbol)
}

// FixedPolicy grants the same volume to every request and never denies.
type FixedPolicy struct {
	volume domain.Volume
}

func NewFixedPolicy(volume domain.Volume) *FixedPolicy {
	return &FixedPolicy{volume: volume}
}

// RequestVolume implements lease.Allocator.
func (p *FixedPolicy) RequestVolume(domain.VolumeRequest) (lease.Lease, error) {
	return fixedLease(p.volume), nil
}

// UpdateBalance implements lease.Allocator; the balance is irrelevant.
func (p *FixedPolicy) UpdateBalance(domain.Money) error {
	return nil
}

// UpdateExchangeRate implements lease.Allocator; rates are irrelevant.
func (p *FixedPolicy) UpdateExchangeRate(domain.ForexSymbol, domain.Price) error {
	return nil
}

type fixedLease domain.Volume

func (l fixedLease) Volume() domain.Volume {
	return domain.Volume(l)
}

func (l fixedLease) Release() error {
	return nil
}
