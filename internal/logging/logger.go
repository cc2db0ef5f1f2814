// Package logging is the structured logger of the GophChat client: a small
// context-aware interface and its log/slog implementation.
package logging

import "context"

// Logger takes a message plus alternating keys and values:
//
//	logger.Info(ctx, "user logged in", "username", name)
//
// Services log state transitions at Info and background failures at Warn.
// Debug is for per-change detail of the cross-instance sync.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that adds args to every record, e.g. the
	// instance id.
	With(args ...any) Logger
}
