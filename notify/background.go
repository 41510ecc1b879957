package notify

import (
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/tradeserver/logger"
)

// DefaultQueueSize is the number of notifications a Background holds before
// it starts dropping new ones.
const DefaultQueueSize = 256

type notification struct {
	level Level
	msg   string
	cause error
}

// Background hands notifications to another Notifier from a single goroutine,
// in the order they were raised. Raising a notification never waits for the
// delivery; when the queue is full the notification is dropped and logged.
type Background struct {
	next  Notifier
	log   logger.Logger
	queue chan notification
	done  chan struct{}

	// mu orders enqueueing against Close.
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewBackground starts the delivery goroutine for next.
//
// Parameters:
//   - next: The Notifier that does the actual, possibly slow, delivery
//   - size: Queue capacity; DefaultQueueSize when not positive
//   - log: Receives the notifications that could not be queued
//
// Returns:
//   - A running Background; call Close to drain and stop it
func NewBackground(next Notifier, size int, log logger.Logger) *Background {
	if size <= 0 {
		size = DefaultQueueSize
	}

	b := &Background{
		next:  next,
		log:   log,
		queue: make(chan notification, size),
		done:  make(chan struct{}),
	}

	go b.deliver()
	return b
}

func (b *Background) InformalEvent(msg string) {
	b.enqueue(notification{level: Informal, msg: msg})
}

func (b *Background) UnexpectedEvent(msg string, cause error) {
	b.enqueue(notification{level: Unexpected, msg: msg, cause: cause})
}

func (b *Background) UnrecoverableError(msg string, cause error) {
	b.enqueue(notification{level: Unrecoverable, msg: msg, cause: cause})
}

// Dropped returns how many notifications were discarded so far.
func (b *Background) Dropped() int64 {
	return b.dropped.Load()
}

// Close stops accepting notifications and waits until the queued ones are
// delivered. Safe to call multiple times.
func (b *Background) Close() error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	<-b.done
	return nil
}

func (b *Background) enqueue(n notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.drop(n, "notifier is closed")
		return
	}

	select {
	case b.queue <- n:
	default:
		b.drop(n, "notification queue is full")
	}
}

func (b *Background) drop(n notification, reason string) {
	b.dropped.Add(1)
	b.log.Warn("notification dropped", logger.F("reason", reason), logger.F("level", n.level.String()), logger.F("message", n.msg))
}

func (b *Background) deliver() {
	defer close(b.done)

	for n := range b.queue {
		switch n.level {
		case Informal:
			b.next.InformalEvent(n.msg)
		case Unexpected:
			b.next.UnexpectedEvent(n.msg, n.cause)
		default:
			b.next.UnrecoverableError(n.msg, n.cause)
		}
	}
}
