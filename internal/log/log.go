package log

import (
	"context"
	"log/slog"
	"os"
)

type attrsKeyT struct{}

var attrsKey attrsKeyT

// ContextHandler folds attributes stored in the context into every
// record, so job or request scoped attributes follow the call chain.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(handler slog.Handler) ContextHandler {
	return ContextHandler{Handler: handler}
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if a, ok := ctx.Value(attrsKey).([]slog.Attr); ok {
		r.AddAttrs(a...)
	}
	return h.Handler.Handle(ctx, r)
}

// ContextAttrs returns a context carrying attrs in addition to any
// already present.
func ContextAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	a, ok := ctx.Value(attrsKey).([]slog.Attr)
	if !ok || a == nil {
		a = make([]slog.Attr, 0, len(attrs))
	}
	a = append(a, attrs...)
	return context.WithValue(ctx, attrsKey, a)
}

// New builds a JSON logger writing to stderr.
func New(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	base := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: false,
		Level:     level,
	})
	return slog.New(NewContextHandler(base))
}
