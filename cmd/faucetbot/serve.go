package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fabriguespe/xmtp-faucet-bot/internal/config"
	"github.com/fabriguespe/xmtp-faucet-bot/internal/transport"
	"github.com/fabriguespe/xmtp-faucet-bot/internal/watcher"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// errRestart ends serve after the settings file changed.
var errRestart = errors.New("settings changed, restart required")

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.EnsureAll(); err != nil {
			log.Warn().Err(err).Msg("Failed to ensure data directory")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if listenAddr != "" {
			cfg.ListenAddr = listenAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		server := transport.NewServer(a.runner, a.catalog, a.metrics, Version)

		g, gctx := errgroup.WithContext(ctx)
		restart := make(chan struct{}, 1)

		g.Go(func() error { return server.ListenAndServe(gctx, cfg.ListenAddr) })
		g.Go(func() error { return a.sessions.Run(gctx) })
		g.Go(func() error {
			w, err := watcher.New(config.SettingsPath(), func() {
				select {
				case restart <- struct{}{}:
				default:
				}
			})
			if err != nil {
				log.Warn().Err(err).Msg("Failed to create settings watcher")
				<-gctx.Done()
				return nil
			}
			return w.Run(gctx)
		})
		g.Go(func() error {
			select {
			case <-restart:
				log.Warn().Str("path", config.SettingsPath()).Msg("Settings changed, exiting for restart")
				return errRestart
			case <-gctx.Done():
				return nil
			}
		})

		log.Info().Str("addr", cfg.ListenAddr).Str("version", Version).Msg("Faucet bot started")
		err = g.Wait()
		log.Info().Msg("Faucet bot stopped")
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides "+config.KeyListenAddr+")")
}
