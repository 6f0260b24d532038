package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/fabriguespe/xmtp-faucet-bot/internal/bot"
	"github.com/fabriguespe/xmtp-faucet-bot/pkg/models"
)

// Console reads one message per input line from a single sender and prints replies.
type Console struct {
	runner *Runner
	in     io.Reader
	out    io.Writer
	sender string
}

// NewConsole creates a console transport for sender.
func NewConsole(runner *Runner, in io.Reader, out io.Writer, sender string) *Console {
	return &Console{runner: runner, in: in, out: out, sender: sender}
}

// Run processes lines until input ends or ctx is cancelled.
// Message failures are printed and do not stop the loop.
func (c *Console) Run(ctx context.Context) error {
	replier := bot.ReplierFunc(func(_ context.Context, text string) error {
		_, err := fmt.Fprintf(c.out, "bot> %s\n", text)
		return err
	})

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		msg := models.Message{Content: scanner.Text(), SenderAddress: c.sender}
		if err := c.runner.Run(ctx, msg, replier); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}
