package server

import (
	"context"
	"fmt"

	"github.com/cyberinferno/tradeserver/wire"
)

// SessionHandler runs the conversation with one connected client. It is
// called on the client's worker goroutine and owns conn until it returns.
// The Acceptor closes conn afterwards.
type SessionHandler interface {
	// ServeSession returns nil when the conversation ended by itself, or the
	// error that ended it. ctx is cancelled when the Acceptor shuts down.
	ServeSession(ctx context.Context, conn *wire.Connection) error
}

// SessionHandlerFunc adapts a function to SessionHandler.
type SessionHandlerFunc func(ctx context.Context, conn *wire.Connection) error

func (f SessionHandlerFunc) ServeSession(ctx context.Context, conn *wire.Connection) error {
	return f(ctx, conn)
}

// PanicError is the error of a session that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("session panicked: %v", e.Value)
}
