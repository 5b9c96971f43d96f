// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package ctxt

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all
// log records. Enabled returns false so callers skip message
// formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var logger atomic.Pointer[slog.Logger]

func init() { logger.Store(slog.New(nopHandler{})) }

// SetLogger configures the logger used by the engine.
// By default no output is produced. Pass nil to restore the
// silent default.
// It is safe for concurrent use.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	logger.Store(l)
}

// Log returns the active logger.
func Log() *slog.Logger { return logger.Load() }
