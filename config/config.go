// Package config holds the settings of the trade server. Values start from
// Default, are overridden by TRADESERVER_* environment variables (optionally
// loaded from a .env file) and finally by command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/cyberinferno/tradeserver/domain"
	"github.com/cyberinferno/tradeserver/logger"
	"github.com/cyberinferno/tradeserver/notify"
	"github.com/cyberinferno/tradeserver/server"
	"github.com/cyberinferno/tradeserver/wire"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "TRADESERVER_"

// Allocation policies.
const (
	PolicyRisk  = "risk"
	PolicyFixed = "fixed"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Addr            string
	WriteBufferSize int
	WorkerPriority  int
	LockOSThread    bool
	DetachedWorkers bool
	ReclaimOnExit   bool

	Policy          string
	AccountCurrency string
	RiskPercent     float64
	FixedVolume     int64
	RateTTL         time.Duration

	LogLevel string
	LogDir   string

	DiscordWebhook string
	RedisAddr      string
	RedisChannel   string
}

// Default returns the built-in settings.
func Default() Config {
	worker := server.DefaultWorkerOptions()
	return Config{
		Addr:            server.DefaultAddr,
		WriteBufferSize: wire.DefaultWriteBufferSize,
		WorkerPriority:  worker.Priority,
		LockOSThread:    worker.LockOSThread,
		DetachedWorkers: worker.Detached,
		ReclaimOnExit:   true,
		Policy:          PolicyRisk,
		AccountCurrency: "EUR",
		RiskPercent:     1,
		FixedVolume:     int64(domain.MicroLot),
		LogLevel:        "info",
		RedisChannel:    notify.DefaultRedisChannel,
	}
}

// LoadDotEnv copies the variables of the given .env files, or ./.env when
// none is given, into the process environment. Variables already set are
// kept. A missing default file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}

	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

// FromEnv overrides c with the TRADESERVER_* variables found by lookup,
// typically os.LookupEnv.
//
// Returns:
//   - The joined errors of all variables that could not be parsed
func (c *Config) FromEnv(lookup func(string) (string, bool)) error {
	p := envParser{lookup: lookup}

	p.text("ADDR", &c.Addr)
	p.integer("WRITE_BUFFER", &c.WriteBufferSize)
	p.integer("WORKER_PRIORITY", &c.WorkerPriority)
	p.flag("LOCK_OS_THREAD", &c.LockOSThread)
	p.flag("DETACHED_WORKERS", &c.DetachedWorkers)
	p.flag("RECLAIM_ON_EXIT", &c.ReclaimOnExit)
	p.text("POLICY", &c.Policy)
	p.text("ACCOUNT_CURRENCY", &c.AccountCurrency)
	p.float("RISK_PERCENT", &c.RiskPercent)
	p.integer64("FIXED_VOLUME", &c.FixedVolume)
	p.duration("RATE_TTL", &c.RateTTL)
	p.text("LOG_LEVEL", &c.LogLevel)
	p.text("LOG_DIR", &c.LogDir)
	p.text("DISCORD_WEBHOOK", &c.DiscordWebhook)
	p.text("REDIS_ADDR", &c.RedisAddr)
	p.text("REDIS_CHANNEL", &c.RedisChannel)

	return errors.Join(p.errs...)
}

// BindFlags registers one flag per setting on fs, defaulting to the current
// values of c. Parsing fs then writes into c.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "TCP address to accept terminals on")
	fs.IntVar(&c.WriteBufferSize, "write-buffer", c.WriteBufferSize, "per-connection write buffer in bytes")
	fs.IntVar(&c.WorkerPriority, "worker-priority", c.WorkerPriority, "nice value of worker threads (linux, 0 keeps the default)")
	fs.BoolVar(&c.LockOSThread, "lock-os-thread", c.LockOSThread, "run every worker on its own OS thread")
	fs.BoolVar(&c.DetachedWorkers, "detached-workers", c.DetachedWorkers, "do not wait for workers on shutdown")
	fs.BoolVar(&c.ReclaimOnExit, "reclaim-on-exit", c.ReclaimOnExit, "return volume still held by a disconnected terminal")
	fs.StringVar(&c.Policy, "policy", c.Policy, "allocation policy: risk or fixed")
	fs.StringVar(&c.AccountCurrency, "account-currency", c.AccountCurrency, "ISO code of the account currency")
	fs.Float64Var(&c.RiskPercent, "risk-percent", c.RiskPercent, "percent of the balance risked per trade")
	fs.Int64Var(&c.FixedVolume, "fixed-volume", c.FixedVolume, "volume in base units granted by the fixed policy")
	fs.DurationVar(&c.RateTTL, "rate-ttl", c.RateTTL, "how long an exchange rate stays valid, 0 for forever")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.StringVar(&c.LogDir, "log-dir", c.LogDir, "directory for daily log files, empty logs to stderr")
	fs.StringVar(&c.DiscordWebhook, "discord-webhook", c.DiscordWebhook, "Discord webhook URL for notifications")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "Redis address to publish notifications to")
	fs.StringVar(&c.RedisChannel, "redis-channel", c.RedisChannel, "Redis pub/sub channel for notifications")
}

// Validate reports every setting that is out of range.
func (c Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Addr == "" {
		fail("addr must not be empty")
	}

	if c.WriteBufferSize <= 0 {
		fail("write buffer must be positive, got %d", c.WriteBufferSize)
	}

	if c.WorkerPriority < -20 || c.WorkerPriority > 19 {
		fail("worker priority must be within [-20, 19], got %d", c.WorkerPriority)
	}

	switch c.Policy {
	case PolicyRisk:
		if c.RiskPercent < 0 || c.RiskPercent > 100 {
			fail("risk percent must be within [0, 100], got %v", c.RiskPercent)
		}
	case PolicyFixed:
		if c.FixedVolume <= 0 {
			fail("fixed volume must be positive, got %d", c.FixedVolume)
		}
	default:
		fail("unknown policy %q", c.Policy)
	}

	if _, err := domain.ParseCurrency(c.AccountCurrency); err != nil {
		fail("account currency: %v", err)
	}

	if c.RateTTL < 0 {
		fail("rate ttl must not be negative, got %s", c.RateTTL)
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		fail("log level: %v", err)
	}

	if c.RedisAddr != "" && c.RedisChannel == "" {
		fail("redis channel must not be empty when redis is enabled")
	}

	return errors.Join(errs...)
}

// Server returns the acceptor settings.
func (c Config) Server() server.Config {
	cfg := server.DefaultConfig()
	cfg.Addr = c.Addr
	cfg.WriteBufferSize = c.WriteBufferSize
	cfg.Worker = server.WorkerOptions{
		Priority:     c.WorkerPriority,
		Detached:     c.DetachedWorkers,
		LockOSThread: c.LockOSThread,
	}
	return cfg
}

type envParser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *envParser) get(name string) (string, string, bool) {
	key := EnvPrefix + name
	v, ok := p.lookup(key)
	return key, v, ok && v != ""
}

func (p *envParser) text(name string, dst *string) {
	if _, v, ok := p.get(name); ok {
		*dst = v
	}
}

func (p *envParser) integer(name string, dst *int) {
	key, v, ok := p.get(name)
	if !ok {
		return
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return
	}

	*dst = n
}

func (p *envParser) integer64(name string, dst *int64) {
	key, v, ok := p.get(name)
	if !ok {
		return
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return
	}

	*dst = n
}

func (p *envParser) float(name string, dst *float64) {
	key, v, ok := p.get(name)
	if !ok {
		return
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return
	}

	*dst = f
}

func (p *envParser) flag(name string, dst *bool) {
	key, v, ok := p.get(name)
	if !ok {
		return
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return
	}

	*dst = b
}

func (p *envParser) duration(name string, dst *time.Duration) {
	key, v, ok := p.get(name)
	if !ok {
		return
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return
	}

	*dst = d
}
