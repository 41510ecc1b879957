package terminal_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/tradeserver/lease"
	"github.com/cyberinferno/tradeserver/logger"
	"github.com/cyberinferno/tradeserver/money"
	"github.com/cyberinferno/tradeserver/notify"
	"github.com/cyberinferno/tradeserver/server"
	"github.com/cyberinferno/tradeserver/session"
	"github.com/cyberinferno/tradeserver/terminal"
	"github.com/cyberinferno/tradeserver/wire"
)

func startServer(t *testing.T, alloc lease.Allocator) string {
	t.Helper()

	log := logger.Nop()
	notes := &notify.Memory{}
	supervisor := server.NewSupervisor(lease.NewSynchronized(alloc), session.Serve("EUR", log), true, notes, log)

	cfg := server.DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.Worker.Priority = 0

	a := server.NewAcceptor(cfg, supervisor, notes, log)
	require.NoError(t, a.Start())
	go func() { _ = a.Serve(context.Background()) }()
	t.Cleanup(func() { _ = a.Stop() })

	return a.Addr().String()
}

func dial(t *testing.T, addr string) *terminal.Client {
	t.Helper()

	c, err := terminal.Dial(context.Background(), terminal.DefaultConfig(addr))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func riskPolicy(t *testing.T) *money.RiskPolicy {
	t.Helper()

	policy, err := money.NewRiskPolicy(money.DefaultRisk, "EUR", money.NewRateStore(0), nil)
	require.NoError(t, err)
	return policy
}

func TestClient_BorrowAndReturn(t *testing.T) {
	c := dial(t, startServer(t, riskPolicy(t)))
	assert.Equal(t, terminal.Connected, c.State())

	require.NoError(t, c.UpdateBalance(100_000))

	grant, err := c.RequestVolume("EURUSD", 1.25, 0.0015, 1_000)
	require.NoError(t, err)
	assert.Equal(t, terminal.Grant{ID: 1, Volume: 8_000}, grant)

	_, err = c.RequestVolume("EURJPY", 160, 0.15, 1_000)
	assert.ErrorIs(t, err, terminal.ErrDenied)

	_, err = c.RequestVolume("GBPCHF", 1.1, 0.0015, 1_000)
	assert.ErrorIs(t, err, terminal.ErrMisconfigured)

	known, err := c.ReleaseVolume(grant.ID)
	require.NoError(t, err)
	assert.True(t, known)

	known, err = c.ReleaseVolume(grant.ID)
	require.NoError(t, err)
	assert.False(t, known)

	require.NoError(t, c.UpdateExchangeRate("EURUSD", 1.25))
	grant, err = c.RequestVolume("GBPUSD", 1.3, 0.0015, 1_000)
	require.NoError(t, err)
	assert.Equal(t, int64(8_000), grant.Volume)
}

func TestClient_ServerEndsConversationOnBadInput(t *testing.T) {
	c := dial(t, startServer(t, riskPolicy(t)))

	require.NoError(t, c.UpdateExchangeRate("EUR", 1.1))

	_, err := c.RequestVolume("EURUSD", 1.25, 0.0015, 1_000)
	assert.ErrorIs(t, err, wire.ErrCommunication)
	assert.Equal(t, terminal.Closed, c.State())
}

func TestClient_Close(t *testing.T) {
	c := dial(t, startServer(t, money.NewFixedPolicy(1_000)))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, terminal.Closed, c.State())

	assert.ErrorIs(t, c.UpdateBalance(1), terminal.ErrClientClosed)
	_, err := c.ReleaseVolume(1)
	assert.ErrorIs(t, err, terminal.ErrClientClosed)
}

func TestClient_ClosingReturnsHeldVolume(t *testing.T) {
	addr := startServer(t, riskPolicy(t))

	first := dial(t, addr)
	require.NoError(t, first.UpdateBalance(100_000))
	_, err := first.RequestVolume("EURUSD", 1.25, 0.0015, 1_000)
	require.NoError(t, err)

	second := dial(t, addr)
	_, err = second.RequestVolume("EURUSD", 1.25, 0.0015, 1_000)
	require.ErrorIs(t, err, terminal.ErrDenied)

	require.NoError(t, first.Close())

	assert.Eventually(t, func() bool {
		grant, err := second.RequestVolume("EURUSD", 1.25, 0.0015, 1_000)
		return err == nil && grant.Volume == 8_000
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClient_RequestTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(time.Second)
		}
	}()

	cfg := terminal.DefaultConfig(ln.Addr().String())
	cfg.RequestTimeout = 50 * time.Millisecond

	c, err := terminal.Dial(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	start := time.Now()
	_, err = c.ReleaseVolume(1)
	assert.ErrorIs(t, err, wire.ErrCommunication)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDial_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = terminal.Dial(context.Background(), terminal.DefaultConfig(addr))
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Connected", terminal.Connected.String())
	assert.Equal(t, "Closed", terminal.Closed.String())
	assert.Equal(t, "Unknown", terminal.State(9).String())
}
