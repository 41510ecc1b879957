// Package notify delivers administrative notifications about the server's
// operation: routine events, recoverable anomalies and fatal errors.
package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cyberinferno/tradeserver/logger"
)

// Level classifies a notification.
type Level int

const (
	Informal Level = iota
	Unexpected
	Unrecoverable
)

func (l Level) String() string {
	switch l {
	case Informal:
		return "informal"
	case Unexpected:
		return "unexpected"
	case Unrecoverable:
		return "unrecoverable"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Notifier informs the administrator about events of the server.
type Notifier interface {
	// InformalEvent reports a normal event that is expected during operation,
	// e.g. a client connecting.
	InformalEvent(msg string)

	// UnexpectedEvent reports an anomaly that was corrected automatically.
	// cause may be nil.
	UnexpectedEvent(msg string, cause error)

	// UnrecoverableError reports a failure the server can't recover from.
	UnrecoverableError(msg string, cause error)
}

// Event is the serialized form of a notification.
type Event struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Cause   string    `json:"cause,omitempty"`
	Time    time.Time `json:"time"`
}

func newEvent(level Level, msg string, cause error) Event {
	e := Event{Level: level, Message: msg, Time: time.Now().UTC()}
	if cause != nil {
		e.Cause = cause.Error()
	}

	return e
}

func (e Event) encode() []byte {
	// Event has no field json can fail on.
	b, _ := json.Marshal(e)
	return b
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	log logger.Logger
}

// NewLogNotifier returns a Notifier logging informal events at info, unexpected
// events at warn and unrecoverable errors at error level.
func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) InformalEvent(msg string) {
	n.log.Info(msg)
}

func (n *LogNotifier) UnexpectedEvent(msg string, cause error) {
	if cause == nil {
		n.log.Warn(msg)
		return
	}

	n.log.Warn(msg, logger.Err(cause))
}

func (n *LogNotifier) UnrecoverableError(msg string, cause error) {
	n.log.Error(msg, logger.Err(cause))
}

// Combining forwards every notification to all of its notifiers in order.
type Combining []Notifier

func (c Combining) InformalEvent(msg string) {
	for _, n := range c {
		n.InformalEvent(msg)
	}
}

func (c Combining) UnexpectedEvent(msg string, cause error) {
	for _, n := range c {
		n.UnexpectedEvent(msg, cause)
	}
}

func (c Combining) UnrecoverableError(msg string, cause error) {
	for _, n := range c {
		n.UnrecoverableError(msg, cause)
	}
}

// Memory keeps notifications in memory. The zero value is ready to use.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) InformalEvent(msg string) {
	m.add(newEvent(Informal, msg, nil))
}

func (m *Memory) UnexpectedEvent(msg string, cause error) {
	m.add(newEvent(Unexpected, msg, cause))
}

func (m *Memory) UnrecoverableError(msg string, cause error) {
	m.add(newEvent(Unrecoverable, msg, cause))
}

func (m *Memory) add(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

// Events returns a copy of the recorded notifications.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Filter returns the recorded notifications of one level.
func (m *Memory) Filter(level Level) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Level == level {
			out = append(out, e)
		}
	}

	return out
}
