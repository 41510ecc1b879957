// Package server accepts trading terminal connections and runs one session
// per client on its own worker goroutine.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/tradeserver/logger"
	"github.com/cyberinferno/tradeserver/notify"
	"github.com/cyberinferno/tradeserver/safemap"
	"github.com/cyberinferno/tradeserver/wire"
)

var (
	// ErrAlreadyStarted is returned by Start on an acceptor that is already
	// listening.
	ErrAlreadyStarted = errors.New("acceptor already started")

	// ErrNotStarted is returned by Serve when Start was not called first.
	ErrNotStarted = errors.New("acceptor not started")
)

// Acceptor listens on a TCP address and hands every accepted client to a
// SessionHandler running on a dedicated worker. A failing client never
// stops the accept loop; only bind failures and losing the listening socket
// are fatal.
type Acceptor struct {
	cfg      Config
	handler  SessionHandler
	notifier notify.Notifier
	log      logger.Logger

	listener  net.Listener
	started   atomic.Bool
	stopping  atomic.Bool
	closeOnce sync.Once
	closeErr  error

	mu     sync.Mutex
	cancel context.CancelFunc

	nextID   atomic.Uint32
	sessions *safemap.SafeMap[uint32, *wire.Connection]
	workers  sync.WaitGroup
}

// NewAcceptor creates an Acceptor that is not yet listening.
//
// Parameters:
//   - cfg: Listening address, worker options and buffer sizes; zero fields take defaults
//   - handler: Runs the conversation of each client
//   - notifier: Receives connection and failure events for the administrator
//   - log: Logger for diagnostics
//
// Returns:
//   - A new Acceptor
func NewAcceptor(cfg Config, handler SessionHandler, notifier notify.Notifier, log logger.Logger) *Acceptor {
	return &Acceptor{
		cfg:      cfg.withDefaults(),
		handler:  handler,
		notifier: notifier,
		log:      log.With(logger.F("component", "acceptor")),
		sessions: safemap.NewSafeMap[uint32, *wire.Connection](),
	}
}

// Start binds the listening address. A bind failure is reported as an
// unrecoverable error and returned; the Acceptor then never serves.
//
// Returns:
//   - An error if already started or if binding fails
func (a *Acceptor) Start() error {
	if a.started.Load() {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", a.cfg.Addr)
	if err != nil {
		a.notifier.UnrecoverableError("An error occurred in the main server socket.", err)
		return fmt.Errorf("listen on %s: %w", a.cfg.Addr, err)
	}

	a.listener = ln
	a.started.Store(true)
	a.notifier.InformalEvent(fmt.Sprintf("Listening for connections on %s.", ln.Addr()))
	return nil
}

// Serve runs the accept loop until ctx is done or Stop is called. Sessions
// receive a context that is cancelled when Serve returns.
//
// Returns:
//   - nil after a regular shutdown
//   - ErrNotStarted if Start did not succeed
//   - An error if the listening socket failed or could not be closed
func (a *Acceptor) Serve(ctx context.Context) error {
	if !a.started.Load() {
		return ErrNotStarted
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	loopDone := make(chan struct{})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return a.closeListener()
		case <-loopDone:
			return nil
		}
	})

	g.Go(func() error {
		defer close(loopDone)
		return a.acceptLoop(sessionCtx)
	})

	return g.Wait()
}

// ListenAndServe is Start followed by Serve.
func (a *Acceptor) ListenAndServe(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}

	return a.Serve(ctx)
}

// Stop closes the listening socket and every live client connection. Safe to
// call more than once and before Start.
//
// Returns:
//   - The error of closing the listening socket, if any
func (a *Acceptor) Stop() error {
	if !a.started.Load() {
		return nil
	}

	err := a.closeListener()

	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	for _, conn := range a.sessions.Values() {
		_ = conn.Close()
	}

	return err
}

// Shutdown stops the Acceptor and waits for workers that are not detached.
//
// Returns:
//   - The error of Stop, or ctx.Err() if ctx ends before the workers
func (a *Acceptor) Shutdown(ctx context.Context) error {
	err := a.Stop()

	done := make(chan struct{})
	go func() {
		a.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
}

// Addr returns the bound address, or nil before Start.
func (a *Acceptor) Addr() net.Addr {
	if !a.started.Load() {
		return nil
	}

	return a.listener.Addr()
}

// Sessions returns the number of clients currently being served.
func (a *Acceptor) Sessions() int {
	return a.sessions.Len()
}

func (a *Acceptor) closeListener() error {
	a.closeOnce.Do(func() {
		a.stopping.Store(true)
		if err := a.listener.Close(); err != nil {
			a.notifier.UnrecoverableError("Failed to close the server socket.", err)
			a.closeErr = fmt.Errorf("close listener: %w", err)
			return
		}

		a.log.Info("stopped listening", logger.F("addr", a.listener.Addr().String()))
	})

	return a.closeErr
}

func (a *Acceptor) acceptLoop(ctx context.Context) error {
	var backoff time.Duration

	for {
		conn, err := a.listener.Accept()
		if err != nil {
			if a.stopping.Load() {
				return nil
			}

			if errors.Is(err, net.ErrClosed) {
				a.notifier.UnrecoverableError("The server socket was closed unexpectedly.", err)
				return fmt.Errorf("accept: %w", err)
			}

			a.notifier.UnexpectedEvent("Accepting a client connection failed.", err)
			backoff = nextBackoff(backoff, a.cfg.MaxAcceptBackoff)
			a.log.Warn("accept failed", logger.Err(err), logger.F("retry_in", backoff.String()))

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}

			continue
		}

		backoff = 0
		a.handle(ctx, conn)
	}
}

func nextBackoff(current, limit time.Duration) time.Duration {
	if current == 0 {
		return 5 * time.Millisecond
	}

	return min(2*current, limit)
}

func (a *Acceptor) handle(ctx context.Context, conn net.Conn) {
	remote := addrString(conn.RemoteAddr())
	a.notifier.InformalEvent(fmt.Sprintf("A client connected from '%s'.", remote))

	wc, err := wire.NewConnection(conn, wire.WithWriteBufferSize(a.cfg.WriteBufferSize))
	if err != nil {
		a.rejectClient(conn, remote, err)
		return
	}

	id := a.nextID.Add(1)
	a.sessions.Store(id, wc)
	a.spawn(func() {
		a.runSession(ctx, id, wc)
	})
}

func (a *Acceptor) rejectClient(conn net.Conn, remote string, cause error) {
	a.notifier.UnexpectedEvent(fmt.Sprintf(
		"Can't initialize connection of client '%s' correctly. Closing the connection to it.", remote), cause)

	if err := conn.Close(); err != nil {
		a.notifier.UnexpectedEvent(fmt.Sprintf("Could not close the connection to the client '%s'.", remote), err)
	}
}

func (a *Acceptor) runSession(ctx context.Context, id uint32, conn *wire.Connection) {
	defer a.sessions.Delete(id)

	log := a.log.With(logger.F("session", id), logger.F("remote", conn.RemoteAddr()))
	log.Debug("session started")

	err := a.serveRecovered(ctx, conn)

	var pe *PanicError
	if errors.As(err, &pe) {
		log.Error("session panicked", logger.F("panic", fmt.Sprint(pe.Value)), logger.F("stack", string(pe.Stack)))
	}

	a.finish(conn, err)
	log.Debug("session ended", logger.F("outcome", conn.State().String()))
}

func (a *Acceptor) serveRecovered(ctx context.Context, conn *wire.Connection) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	return a.handler.ServeSession(ctx, conn)
}

// finish reports how a session ended and closes its connection.
func (a *Acceptor) finish(conn *wire.Connection, err error) {
	var (
		panicErr    *PanicError
		protocolErr *wire.ProtocolError
		readErr     *wire.MessageReadError
	)

	switch {
	case err == nil, wire.OutcomeOf(err) == wire.ClosedNormally:
	case wire.OutcomeOf(err) == wire.ClosedAbnormally:
		a.notifier.UnexpectedEvent(fmt.Sprintf("The connection to the client '%s' was closed unexpectedly.", conn), err)
		_ = conn.Close()
		return
	case errors.As(err, &panicErr):
		a.notifier.UnexpectedEvent(fmt.Sprintf(
			"An internal server error occurred in the communication with the client '%s'. Closing the connection to this client.", conn), err)
	case errors.As(err, &protocolErr):
		a.notifier.UnexpectedEvent(fmt.Sprintf(
			"A violation of the communication protocol with client '%s' occurred. Closing the connection to that client.", conn), err)
	case errors.As(err, &readErr):
		a.notifier.UnexpectedEvent(fmt.Sprintf(
			"Failed to read an expected message from the connection to the client '%s'. Closing the connection to that client.", conn), err)
	default:
		a.notifier.UnexpectedEvent(fmt.Sprintf(
			"An unspecified error in the communication with the client '%s' occurred. Closing the connection to this client.", conn), err)
	}

	if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		a.notifier.UnexpectedEvent(fmt.Sprintf(
			"Closing the connection to the client '%s' failed. Assuming it is closed anyway.", conn), cerr)
		return
	}

	a.notifier.InformalEvent(fmt.Sprintf("The connection to the client '%s' was closed.", conn))
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}

	return addr.String()
}
