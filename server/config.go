package server

import (
	"time"

	"github.com/cyberinferno/tradeserver/wire"
)

const (
	// DefaultAddr is the address trading terminals connect to.
	DefaultAddr = ":6474"

	// DefaultPriority is the nice value of worker threads. Lower is more
	// favourable; trading decisions are latency sensitive.
	DefaultPriority = -1

	defaultMaxAcceptBackoff = time.Second
)

// WorkerOptions control the goroutine serving one client.
type WorkerOptions struct {
	// Priority is the nice value applied to the worker's OS thread on Linux.
	// Zero leaves the thread untouched. Only effective with LockOSThread.
	Priority int

	// Detached workers are not awaited by Shutdown.
	Detached bool

	// LockOSThread pins the worker goroutine to its own OS thread.
	LockOSThread bool
}

// DefaultWorkerOptions returns detached workers on dedicated threads with
// elevated priority.
func DefaultWorkerOptions() WorkerOptions {
	return WorkerOptions{
		Priority:     DefaultPriority,
		Detached:     true,
		LockOSThread: true,
	}
}

// Config configures an Acceptor.
type Config struct {
	// Addr is the TCP address to listen on.
	Addr string

	// Worker describes the goroutine spawned per client.
	Worker WorkerOptions

	// WriteBufferSize is the per-connection write buffer capacity. Zero
	// means wire.DefaultWriteBufferSize.
	WriteBufferSize int

	// MaxAcceptBackoff caps the pause after temporary accept failures.
	MaxAcceptBackoff time.Duration
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Addr:             DefaultAddr,
		Worker:           DefaultWorkerOptions(),
		WriteBufferSize:  wire.DefaultWriteBufferSize,
		MaxAcceptBackoff: defaultMaxAcceptBackoff,
	}
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}

	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = wire.DefaultWriteBufferSize
	}

	if c.MaxAcceptBackoff <= 0 {
		c.MaxAcceptBackoff = defaultMaxAcceptBackoff
	}

	return c
}
