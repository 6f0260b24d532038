package main

import (
	"os"
	"os/signal"

	"github.com/fabriguespe/xmtp-faucet-bot/internal/transport"
	"github.com/spf13/cobra"
)

var chatSender string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the bot from the terminal",
	Long: `Reads one message per line from stdin as the given sender and prints
the bot's replies. Uses the same faucet API and cache as serve.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		return transport.NewConsole(a.runner, cmd.InOrStdin(), cmd.OutOrStdout(), chatSender).Run(ctx)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatSender, "sender", "", "Sender address to chat as")
	_ = chatCmd.MarkFlagRequired("sender")
}
