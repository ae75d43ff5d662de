package build

import (
	"context"
	"errors"
	"log/slog"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// fanout sends every record to each sink that accepts its level. The
// console and the log file are its sinks.
type fanout struct {
	sinks []slog.Handler
}

// newFanout pins every btclog sink to level and joins them into one
// handler.
func newFanout(level btclog.Level, sinks ...btclogv2.Handler) *fanout {
	f := &fanout{sinks: make([]slog.Handler, len(sinks))}
	for i, sink := range sinks {
		sink.SetLevel(level)
		f.sinks[i] = sink
	}

	return f
}

// Enabled reports whether any sink wants records at level.
//
// NOTE: This implements the slog.Handler interface.
func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, sink := range f.sinks {
		if sink.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

// Handle writes record to every sink that accepts it. A failing sink does
// not keep the record from the others.
//
// NOTE: This implements the slog.Handler interface.
func (f *fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, sink := range f.sinks {
		if !sink.Enabled(ctx, record.Level) {
			continue
		}

		if err := sink.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// WithAttrs applies attrs to every sink.
//
// NOTE: This implements the slog.Handler interface.
func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler {
		return h.WithAttrs(attrs)
	})
}

// WithGroup opens group name on every sink.
//
// NOTE: This implements the slog.Handler interface.
func (f *fanout) WithGroup(name string) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler {
		return h.WithGroup(name)
	})
}

// derive returns a fanout whose sinks are mapped through fn.
func (f *fanout) derive(fn func(slog.Handler) slog.Handler) *fanout {
	next := &fanout{sinks: make([]slog.Handler, len(f.sinks))}
	for i, sink := range f.sinks {
		next.sinks[i] = fn(sink)
	}

	return next
}

var _ slog.Handler = (*fanout)(nil)
