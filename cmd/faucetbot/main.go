// Package main provides the faucet bot entry point.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fabriguespe/xmtp-faucet-bot/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var debug bool

var rootCmd = &cobra.Command{
	Use:   "faucetbot",
	Short: "Testnet faucet conversation bot",
	Long: `A conversation bot that hands out testnet tokens.

Senders are greeted with the list of supported networks, reply with the
network they want, and receive a transaction receipt link once the
faucet has dripped tokens to their address.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(config.Get().LogLevel, debug)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.AddCommand(serveCmd, chatCmd, networksCmd, versionCmd)
}

// setupLogging writes human-readable logs to stderr; stdout belongs to the chat transport.
func setupLogging(level string, debug bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errRestart) {
			// A supervisor restarts the process with the new settings.
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
