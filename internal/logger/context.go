package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// nop is the shared fallback so callers without a request-scoped logger do
// not allocate one per lookup.
var nop = zap.NewNop()

// ContextWithLogger stores a request-scoped logger in the context.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext extracts the request-scoped logger, or a no-op logger if none
// was stored.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return nop
}
