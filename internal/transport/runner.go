// Package transport connects message sources to the conversation orchestrator.
package transport

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/fabriguespe/xmtp-faucet-bot/internal/bot"
	"github.com/fabriguespe/xmtp-faucet-bot/internal/reqid"
	"github.com/fabriguespe/xmtp-faucet-bot/pkg/models"
)

// Handler handles one inbound message.
type Handler interface {
	Handle(ctx context.Context, msg models.Message, r bot.Replier) error
}

// Runner invokes the handler once per message and keeps a failing message,
// including a panicking one, from taking the process down.
type Runner struct {
	handler Handler
}

// NewRunner creates a Runner.
func NewRunner(h Handler) *Runner {
	return &Runner{handler: h}
}

// Run handles msg under a fresh request id. The returned error is already logged.
func (r *Runner) Run(ctx context.Context, msg models.Message, replier bot.Replier) (err error) {
	ctx, id := reqid.New(ctx)
	logger := reqid.Logger(ctx)

	defer func() {
		if p := recover(); p != nil {
			logger.Error().
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Str("sender", msg.SenderAddress).
				Msg("Message handler panicked")
			err = fmt.Errorf("message %s: panic: %v", id, p)
		}
	}()

	if err := r.handler.Handle(ctx, msg, replier); err != nil {
		logger.Error().Err(err).Str("sender", msg.SenderAddress).Msg("Failed to handle message")
		return fmt.Errorf("message %s: %w", id, err)
	}
	return nil
}

// BufferReplier collects replies in memory, for transports that answer in one response.
type BufferReplier struct {
	replies []string
	mu      sync.Mutex
}

// Reply implements bot.Replier.
func (b *BufferReplier) Reply(_ context.Context, text string) error {
	b.mu.Lock()
	b.replies = append(b.replies, text)
	b.mu.Unlock()
	return nil
}

// Replies returns a copy of the collected replies in send order.
func (b *BufferReplier) Replies() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.replies))
	copy(out, b.replies)
	return out
}
