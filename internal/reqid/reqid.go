// Package reqid carries a per-message request id through contexts and logs.
package reqid

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Header is the HTTP header used to forward the id to upstream services.
const Header = "X-Request-ID"

type ctxKey struct{}

// New returns a context carrying a fresh id and a logger tagged with it.
func New(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	ctx = context.WithValue(ctx, ctxKey{}, id)
	logger := log.With().Str("requestId", id).Logger()
	return logger.WithContext(ctx), id
}

// FromContext returns the id stored by New, or "".
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Logger returns the request-scoped logger, falling back to the global one.
func Logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
