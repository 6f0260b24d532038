package main

import (
	"context"
	"fmt"

	"github.com/fabriguespe/xmtp-faucet-bot/internal/bot"
	"github.com/fabriguespe/xmtp-faucet-bot/internal/catalog"
	"github.com/fabriguespe/xmtp-faucet-bot/internal/config"
	"github.com/fabriguespe/xmtp-faucet-bot/internal/kv"
	"github.com/fabriguespe/xmtp-faucet-bot/internal/learnweb3"
	"github.com/fabriguespe/xmtp-faucet-bot/internal/metrics"
	"github.com/fabriguespe/xmtp-faucet-bot/internal/session"
	"github.com/fabriguespe/xmtp-faucet-bot/internal/transport"
	"github.com/rs/zerolog/log"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	metrics  *metrics.Metrics
	catalog  *catalog.Cache
	sessions *session.MemoryStore
	runner   *transport.Runner
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Failed to close resource")
		}
	}
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openStore connects to Redis when configured and falls back to process memory otherwise.
func openStore(ctx context.Context, cfg *config.Config) (kv.Store, func() error, error) {
	if cfg.RedisURL == "" {
		log.Warn().Msg("No Redis configured, network catalog is cached in memory")
		return kv.NewMemoryStore(), func() error { return nil }, nil
	}
	store, err := kv.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info().Msg("Connected to Redis")
	return store, store.Close, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	client := learnweb3.NewClient(learnweb3.Config{
		BaseURL: cfg.LearnWeb3BaseURL,
		APIKey:  cfg.LearnWeb3APIKey,
		Timeout: cfg.HTTPTimeout,
	})

	a.catalog = catalog.New(store, client, catalog.WithMetrics(a.metrics))
	a.sessions = session.NewMemoryStore(cfg.SessionTTL, session.WithOnEvicted(func(sender string) {
		log.Debug().Str("sender", sender).Msg("Session expired")
	}))

	orch := bot.New(
		bot.Config{BotAddress: cfg.BotAddress, FrameBaseURL: cfg.FrameBaseURL},
		a.sessions,
		a.catalog,
		client,
		bot.WithMetrics(a.metrics),
	)
	a.runner = transport.NewRunner(orch)
	return a, nil
}
