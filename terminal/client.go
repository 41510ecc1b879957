// Package terminal is the trading terminal side of the money management
// conversation: it reports the account state to a trade server and borrows
// volume from it.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/tradeserver/session"
	"github.com/cyberinferno/tradeserver/wire"
)

var (
	// ErrDenied means the server has no volume for the requested trade.
	ErrDenied = errors.New("volume request denied")

	// ErrMisconfigured means the server could not evaluate the request,
	// usually because an exchange rate was never reported.
	ErrMisconfigured = errors.New("server can't price the request")

	// ErrClientClosed is returned by calls on a closed Client.
	ErrClientClosed = errors.New("client is closed")
)

// State is the connection state of a Client.
type State int

const (
	Connected State = iota // Requests may be sent
	Closed                 // Closed locally or by the server; the Client can't be reused
)

func (s State) String() string {
	switch s {
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Config holds the connection settings of a Client.
type Config struct {
	// Address is the "host:port" of the trade server.
	Address string
	// ConnectionTimeout bounds establishing the connection.
	ConnectionTimeout time.Duration
	// RequestTimeout bounds every call including its reply; 0 means no limit.
	RequestTimeout time.Duration
}

// DefaultConfig returns settings for address with a 10s connection timeout
// and a 10s request timeout.
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		ConnectionTimeout: 10 * time.Second,
		RequestTimeout:    10 * time.Second,
	}
}

// Grant is volume lent by the server. It must be returned with ReleaseVolume.
type Grant struct {
	ID     int64
	Volume int64
}

// Client talks to one trade server. It is safe for concurrent use; calls are
// serialized.
type Client struct {
	config Config

	mu     sync.Mutex
	raw    net.Conn
	conn   *wire.Connection
	closed bool
}

// Dial connects to the server at cfg.Address.
//
// Parameters:
//   - ctx: Cancels the connection attempt
//   - cfg: Address and timeouts
//
// Returns:
//   - A connected Client; call Close when done
//   - An error if the server is unreachable
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectionTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Address, err)
	}

	conn, err := wire.NewConnection(raw)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}

	return &Client{config: cfg, raw: raw, conn: conn}, nil
}

// State returns Closed once the Client was closed or the connection failed.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.conn.State() != wire.Open {
		return Closed
	}

	return Connected
}

// UpdateBalance reports the account balance in minor units of the account
// currency.
func (c *Client) UpdateBalance(minor int64) error {
	return c.call(func() error {
		if err := c.conn.TrySendByte(session.MsgBalanceChanged); err != nil {
			return err
		}

		return c.conn.TrySendLong(minor)
	})
}

// UpdateExchangeRate reports that one unit of pair's base currency costs rate
// units of its quote currency.
func (c *Client) UpdateExchangeRate(pair string, rate float64) error {
	return c.call(func() error {
		if err := c.conn.TrySendByte(session.MsgExchangeRateChanged); err != nil {
			return err
		}

		if err := c.conn.TrySendString(pair); err != nil {
			return err
		}

		return c.conn.TrySendDouble(rate)
	})
}

// RequestVolume asks for volume for a trade of symbol.
//
// Parameters:
//   - symbol: Six letter symbol, e.g. "EURUSD"
//   - price: Current price of symbol
//   - stopDistance: Price distance lost when the stop loss is hit
//   - step: Granularity of the volume in base units
//
// Returns:
//   - The grant
//   - ErrDenied, ErrMisconfigured or a communication error
func (c *Client) RequestVolume(symbol string, price, stopDistance float64, step int64) (Grant, error) {
	var grant Grant
	err := c.call(func() error {
		if err := c.conn.TrySendByte(session.MsgRequestVolume); err != nil {
			return err
		}

		if err := c.conn.TrySendString(symbol); err != nil {
			return err
		}

		if err := c.conn.TrySendDouble(price); err != nil {
			return err
		}

		if err := c.conn.TrySendDouble(stopDistance); err != nil {
			return err
		}

		if err := c.conn.TrySendLong(step); err != nil {
			return err
		}

		if err := c.conn.Flush(); err != nil {
			return err
		}

		status, err := c.conn.TryReceiveByte()
		if err != nil {
			return err
		}

		switch status {
		case session.StatusGranted:
		case session.StatusDenied:
			return ErrDenied
		case session.StatusMisconfigured:
			return ErrMisconfigured
		default:
			return wire.NewProtocolError("unknown request status %d", status)
		}

		if grant.ID, err = c.conn.TryReceiveLong(); err != nil {
			return err
		}

		grant.Volume, err = c.conn.TryReceiveLong()
		return err
	})

	return grant, err
}

// ReleaseVolume returns a grant and reports whether the server still knew it.
func (c *Client) ReleaseVolume(id int64) (bool, error) {
	var known bool
	err := c.call(func() error {
		if err := c.conn.TrySendByte(session.MsgReleaseVolume); err != nil {
			return err
		}

		if err := c.conn.TrySendLong(id); err != nil {
			return err
		}

		if err := c.conn.Flush(); err != nil {
			return err
		}

		status, err := c.conn.TryReceiveByte()
		if err != nil {
			return err
		}

		known = status == session.StatusReleased
		return nil
	})

	return known, err
}

// Close closes the connection. Volume still lent is reclaimed by the server.
// Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	return c.conn.Close()
}

// call runs fn under the lock and flushes whatever fn left buffered.
func (c *Client) call(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	if c.config.RequestTimeout > 0 {
		if err := c.raw.SetDeadline(time.Now().Add(c.config.RequestTimeout)); err != nil {
			return err
		}

		defer func() {
			_ = c.raw.SetDeadline(time.Time{})
		}()
	}

	if err := fn(); err != nil {
		return err
	}

	return c.conn.Flush()
}
