package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/economy-ledger/internal/config"
	"github.com/example/economy-ledger/internal/economy"
	"github.com/example/economy-ledger/internal/events/kafka"
	"github.com/example/economy-ledger/internal/hooks"
	"github.com/example/economy-ledger/internal/store/postgres"
	"github.com/example/economy-ledger/internal/store/sqlite"
	"github.com/example/economy-ledger/pkg/audit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("economyd stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var engineHooks []economy.Hook
	if cfg.AuditLogPath != "" {
		chain, closer, err := openAuditChain(cfg.AuditLogPath)
		if err != nil {
			return err
		}
		defer closer.Close()
		engineHooks = append(engineHooks, hooks.Audit{Chain: chain})
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		engineHooks = append(engineHooks, hooks.Publish{Publisher: publisher, Timeout: 5 * time.Second})
	}
	if cfg.NewcomerBonusPoints > 0 {
		granter := kafka.NewExperiencePublisher(cfg.KafkaBrokers, cfg.KafkaExperienceTopic, "newcomer_bonus")
		defer granter.Close()
		engineHooks = append(engineHooks, hooks.NewcomerBonus{
			Granter:    granter,
			MaxBalance: cfg.NewcomerBonusMaxBalance,
			Points:     cfg.NewcomerBonusPoints,
		})
	}

	engine := economy.New(store, config.EnvParams{},
		economy.WithLogger(logger),
		economy.WithHooks(engineHooks...),
		economy.WithDefaultCurrency(cfg.DefaultCurrency),
		economy.WithRealMoneyCurrency(cfg.RealMoneyCurrency),
	)

	for _, r := range cfg.ExchangeRates {
		if err := engine.SetExchangeRate(ctx, r.Base, r.Target, r.Rate); err != nil {
			return fmt.Errorf("seed exchange rate: %w", err)
		}
	}

	logger.Info("economy engine started",
		"environment", cfg.Environment,
		"store", cfg.StoreDriver,
		"hooks", len(engineHooks),
		"interest_interval", cfg.InterestInterval.String(),
	)

	ticker := time.NewTicker(cfg.InterestInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-ticker.C:
			if _, err := engine.AccrueDailyInterest(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("interest run failed", "error", err)
			}
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config) (economy.Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		store, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "sqlite":
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// openAuditChain opens the audit log for appending, verifying and resuming
// any chain already in it.
func openAuditChain(path string) (*audit.ChainLogger, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}
	entries, err := audit.ReadEntries(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("read audit log: %w", err)
	}
	if err := audit.VerifyChain(entries); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("audit log %s is corrupt: %w", path, err)
	}

	var last *audit.LogEntry
	if len(entries) > 0 {
		last = entries[len(entries)-1]
	}
	return audit.Resume(f, last), f, nil
}
