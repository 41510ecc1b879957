// Package session implements the money management conversation with a
// trading terminal. The terminal reports its balance and exchange rates and
// borrows volume for its trades; every message starts with a one byte type.
//
//	13 BalanceChanged       long balance in minor units           no reply
//	14 ExchangeRateChanged  string pair, double rate              no reply
//	20 RequestVolume        string symbol, double price,          byte status,
//	                        double stop loss distance, long step  on grant long id, long volume
//	21 ReleaseVolume        long id                               byte status
package session

import (
	"context"
	"fmt"
	"math"

	"github.com/cyberinferno/tradeserver/domain"
	"github.com/cyberinferno/tradeserver/lease"
	"github.com/cyberinferno/tradeserver/logger"
	"github.com/cyberinferno/tradeserver/wire"
)

// Message types.
const (
	MsgBalanceChanged      byte = 13
	MsgExchangeRateChanged byte = 14
	MsgRequestVolume       byte = 20
	MsgReleaseVolume       byte = 21
)

// RequestVolume reply status.
const (
	StatusGranted       byte = 0
	StatusDenied        byte = 1
	StatusMisconfigured byte = 2
)

// ReleaseVolume reply status.
const (
	StatusReleased     byte = 0
	StatusUnknownLease byte = 1
)

// Session serves one terminal. It is used by the connection's worker only.
type Session struct {
	conn    *wire.Connection
	alloc   lease.Allocator
	account domain.Currency
	log     logger.Logger

	lastID int64
	leases map[int64]lease.Lease
}

// New creates a session on conn drawing volume from alloc. Balances received
// from the terminal are in account currency.
func New(conn *wire.Connection, alloc lease.Allocator, account domain.Currency, log logger.Logger) *Session {
	return &Session{
		conn:    conn,
		alloc:   alloc,
		account: account,
		log:     log.With(logger.F("remote", conn.RemoteAddr())),
		leases:  make(map[int64]lease.Lease),
	}
}

// Serve returns a function running a Session per connection, suitable for
// server.NewSupervisor.
func Serve(account domain.Currency, log logger.Logger) func(context.Context, *wire.Connection, lease.Allocator) error {
	return func(ctx context.Context, conn *wire.Connection, alloc lease.Allocator) error {
		return New(conn, alloc, account, log).Run(ctx)
	}
}

// Run handles messages until the connection closes, the terminal breaks the
// protocol or ctx is done. Leases still held when Run returns are left to
// the caller's allocator to reclaim.
//
// Returns:
//   - The *wire.CloseError ending the conversation, a *wire.ProtocolError or
//     *wire.MessageReadError for a misbehaving terminal, or nil if ctx ended
func (s *Session) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		msgType, err := s.conn.TryReceiveByte()
		if err != nil {
			return err
		}

		if err := s.dispatch(msgType); err != nil {
			return err
		}
	}

	return nil
}

// Held returns the number of leases the terminal has not released.
func (s *Session) Held() int {
	return len(s.leases)
}

func (s *Session) dispatch(msgType byte) error {
	switch msgType {
	case MsgBalanceChanged:
		return s.balanceChanged()
	case MsgExchangeRateChanged:
		return s.exchangeRateChanged()
	case MsgRequestVolume:
		return s.requestVolume()
	case MsgReleaseVolume:
		return s.releaseVolume()
	default:
		return wire.NewProtocolError("unknown message type %d", msgType)
	}
}

func (s *Session) balanceChanged() error {
	minor, err := s.conn.TryReceiveLong()
	if err != nil {
		return err
	}

	balance := domain.MoneyFromMinor(minor, s.account)
	if err := s.alloc.UpdateBalance(balance); err != nil {
		return fmt.Errorf("update balance to %s: %w", balance, err)
	}

	s.log.Debug("balance changed", logger.F("balance", balance.String()))
	return nil
}

func (s *Session) exchangeRateChanged() error {
	pairName, err := s.conn.TryReceiveString()
	if err != nil {
		return err
	}

	rate, err := s.receivePrice("ExchangeRateChanged")
	if err != nil {
		return err
	}

	pair, err := domain.ParseForexSymbol(pairName)
	if err != nil {
		return &wire.MessageReadError{Message: "ExchangeRateChanged", Cause: err}
	}

	if err := s.alloc.UpdateExchangeRate(pair, rate); err != nil {
		return &wire.MessageReadError{Message: "ExchangeRateChanged", Cause: err}
	}

	return nil
}

func (s *Session) requestVolume() error {
	symbolName, err := s.conn.TryReceiveString()
	if err != nil {
		return err
	}

	price, err := s.conn.TryReceiveDouble()
	if err != nil {
		return err
	}

	distance, err := s.conn.TryReceiveDouble()
	if err != nil {
		return err
	}

	step, err := s.conn.TryReceiveLong()
	if err != nil {
		return err
	}

	req, err := requestFrom(symbolName, price, distance, step)
	if err != nil {
		return &wire.MessageReadError{Message: "RequestVolume", Cause: err}
	}

	granted, err := s.alloc.RequestVolume(req)
	if err != nil {
		s.log.Error("volume request could not be evaluated", logger.F("symbol", req.Symbol.String()), logger.Err(err))
		return s.conn.TrySendByte(StatusMisconfigured)
	}

	if granted == nil {
		return s.conn.TrySendByte(StatusDenied)
	}

	s.lastID++
	s.leases[s.lastID] = granted

	if err := s.conn.TrySendByte(StatusGranted); err != nil {
		return err
	}

	if err := s.conn.TrySendLong(s.lastID); err != nil {
		return err
	}

	return s.conn.TrySendLong(granted.Volume().Base())
}

func (s *Session) releaseVolume() error {
	id, err := s.conn.TryReceiveLong()
	if err != nil {
		return err
	}

	l, ok := s.leases[id]
	if !ok {
		return s.conn.TrySendByte(StatusUnknownLease)
	}

	delete(s.leases, id)
	if err := l.Release(); err != nil {
		s.log.Warn("releasing volume failed", logger.F("lease", id), logger.Err(err))
		return s.conn.TrySendByte(StatusUnknownLease)
	}

	return s.conn.TrySendByte(StatusReleased)
}

// receivePrice reads a double that must be a finite number.
func (s *Session) receivePrice(message string) (domain.Price, error) {
	v, err := s.conn.TryReceiveDouble()
	if err != nil {
		return domain.Price{}, err
	}

	if err := checkFinite(v); err != nil {
		return domain.Price{}, &wire.MessageReadError{Message: message, Cause: err}
	}

	return domain.NewPrice(v), nil
}

// requestFrom validates the fields of a RequestVolume message.
func requestFrom(symbolName string, price, distance float64, step int64) (domain.VolumeRequest, error) {
	symbol, err := domain.ParseForexSymbol(symbolName)
	if err != nil {
		return domain.VolumeRequest{}, err
	}

	if err := checkPositive(price); err != nil {
		return domain.VolumeRequest{}, fmt.Errorf("price: %w", err)
	}

	if err := checkPositive(distance); err != nil {
		return domain.VolumeRequest{}, fmt.Errorf("stop loss distance: %w", err)
	}

	if step <= 0 {
		return domain.VolumeRequest{}, fmt.Errorf("step size %d is not positive", step)
	}

	return domain.VolumeRequest{
		Symbol:            symbol,
		CurrentPrice:      domain.NewPrice(price),
		PipLostOnStopLoss: domain.NewPrice(distance),
		AllowedStepSize:   domain.Volume(step),
	}, nil
}

func checkFinite(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%v is not a price", v)
	}

	return nil
}

func checkPositive(v float64) error {
	if err := checkFinite(v); err != nil {
		return err
	}

	if v <= 0 {
		return fmt.Errorf("%v is not positive", v)
	}

	return nil
}
