package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cyberinferno/tradeserver/config"
	"github.com/cyberinferno/tradeserver/domain"
	"github.com/cyberinferno/tradeserver/lease"
	"github.com/cyberinferno/tradeserver/logger"
	"github.com/cyberinferno/tradeserver/money"
	"github.com/cyberinferno/tradeserver/notify"
	"github.com/cyberinferno/tradeserver/server"
	"github.com/cyberinferno/tradeserver/session"
)

const (
	serviceName     = "tradeserver"
	shutdownTimeout = 5 * time.Second
)

func run(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	notifier, closeNotifier := newNotifier(cfg, log)
	defer closeNotifier()

	account, err := domain.ParseCurrency(cfg.AccountCurrency)
	if err != nil {
		return err
	}

	alloc, err := newAllocator(cfg, account)
	if err != nil {
		return err
	}

	supervisor := server.NewSupervisor(
		lease.NewSynchronized(alloc),
		session.Serve(account, log),
		cfg.ReclaimOnExit,
		notifier,
		log,
	)
	acceptor := server.NewAcceptor(cfg.Server(), supervisor, notifier, log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting", logger.F("addr", cfg.Addr), logger.F("policy", cfg.Policy), logger.F("account", account.String()))
	serveErr := acceptor.ListenAndServe(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(serveErr, acceptor.Shutdown(shutdownCtx))
}

func newLogger(cfg config.Config) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	if cfg.LogDir == "" {
		return logger.NewZerologLogger(os.Stdout, serviceName, level), nil
	}

	return logger.NewZerologFileLogger(serviceName, cfg.LogDir, level)
}

// newNotifier always logs notifications and additionally forwards them to
// Discord and Redis when configured. The remote notifiers deliver from their
// own goroutine so the accept loop never waits on the network.
func newNotifier(cfg config.Config, log logger.Logger) (notify.Notifier, func()) {
	notifiers := notify.Combining{notify.NewLogNotifier(log)}
	closers := []func() error{}

	if cfg.DiscordWebhook != "" {
		discord := notify.NewBackground(notify.NewDiscordNotifier(cfg.DiscordWebhook, log), notify.DefaultQueueSize, log)
		notifiers = append(notifiers, discord)
		closers = append(closers, discord.Close)
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		rn := notify.NewRedisNotifier(client, cfg.RedisChannel, log)
		published := notify.NewBackground(rn, notify.DefaultQueueSize, log)
		notifiers = append(notifiers, published)
		// Drain before the client goes away.
		closers = append(closers, published.Close, rn.Close)
	}

	return notifiers, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn("closing notifier failed", logger.Err(err))
			}
		}
	}
}

func newAllocator(cfg config.Config, account domain.Currency) (lease.Allocator, error) {
	switch cfg.Policy {
	case config.PolicyFixed:
		return money.NewFixedPolicy(domain.Volume(cfg.FixedVolume)), nil
	case config.PolicyRisk:
		policy, err := money.NewRiskPolicy(domain.Percent(cfg.RiskPercent), account, money.NewRateStore(cfg.RateTTL), nil)
		if err != nil {
			return nil, err
		}
		return policy, nil
	default:
		return nil, fmt.Errorf("%w: unknown policy %q", config.ErrInvalidConfig, cfg.Policy)
	}
}
