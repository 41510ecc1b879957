package lease

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/tradeserver/domain"
)

var (
	someSymbol  = domain.MustForexSymbol("GBPUSD")
	someRequest = domain.VolumeRequest{
		Symbol:            someSymbol,
		CurrentPrice:      domain.NewPrice(1.25),
		PipLostOnStopLoss: domain.PriceFromPipettes(150),
		AllowedStepSize:   domain.NewVolume(1, domain.MicroLot),
	}
	someBalance = domain.MoneyFromMinor(100_000, "EUR")
)

type fakeLease struct {
	volume   domain.Volume
	err      error
	releases atomic.Int32
}

func (f *fakeLease) Volume() domain.Volume {
	return f.volume
}

func (f *fakeLease) Release() error {
	f.releases.Add(1)
	return f.err
}

// scriptedAllocator grants the queued leases in order; a nil entry denies.
type scriptedAllocator struct {
	mu       sync.Mutex
	queue    []*fakeLease
	err      error
	balances []domain.Money
	rates    map[domain.ForexSymbol]domain.Price
}

func grantsOf(volumes ...domain.Volume) (*scriptedAllocator, []*fakeLease) {
	leases := make([]*fakeLease, len(volumes))
	for i, v := range volumes {
		leases[i] = &fakeLease{volume: v}
	}

	return &scriptedAllocator{queue: append([]*fakeLease(nil), leases...)}, leases
}

func (a *scriptedAllocator) RequestVolume(domain.VolumeRequest) (Lease, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.err != nil {
		return nil, a.err
	}

	if len(a.queue) == 0 {
		return nil, nil
	}

	next := a.queue[0]
	a.queue = a.queue[1:]
	if next == nil {
		return nil, nil
	}

	return next, nil
}

func (a *scriptedAllocator) UpdateBalance(balance domain.Money) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances = append(a.balances, balance)
	return nil
}

func (a *scriptedAllocator) UpdateExchangeRate(pair domain.ForexSymbol, rate domain.Price) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rates == nil {
		a.rates = make(map[domain.ForexSymbol]domain.Price)
	}
	a.rates[pair] = rate
	return nil
}

// exclusiveAllocator counts every call that overlaps another one. Each call
// takes delay to widen the window for overlaps.
type exclusiveAllocator struct {
	delay      time.Duration
	busy       atomic.Bool
	violations atomic.Int64
	calls      atomic.Int64
}

func (a *exclusiveAllocator) enter() {
	a.calls.Add(1)
	if !a.busy.CompareAndSwap(false, true) {
		a.violations.Add(1)
		time.Sleep(a.delay)
		return
	}

	time.Sleep(a.delay)
	a.busy.Store(false)
}

func (a *exclusiveAllocator) RequestVolume(domain.VolumeRequest) (Lease, error) {
	a.enter()
	return &exclusiveLease{owner: a}, nil
}

func (a *exclusiveAllocator) UpdateBalance(domain.Money) error {
	a.enter()
	return nil
}

func (a *exclusiveAllocator) UpdateExchangeRate(domain.ForexSymbol, domain.Price) error {
	a.enter()
	return nil
}

type exclusiveLease struct {
	owner *exclusiveAllocator
}

func (l *exclusiveLease) Volume() domain.Volume {
	l.owner.enter()
	return domain.NewVolume(42, domain.MiniLot)
}

func (l *exclusiveLease) Release() error {
	l.owner.enter()
	return nil
}
