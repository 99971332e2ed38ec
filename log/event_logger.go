package log

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Sampler decides whether a finished event is written.
type Sampler interface {
	ShouldSample(ctx context.Context, e *Event) bool
}

// SamplerFunc is a function adapter for Sampler.
type SamplerFunc func(ctx context.Context, e *Event) bool

// ShouldSample implements Sampler.
func (f SamplerFunc) ShouldSample(ctx context.Context, e *Event) bool {
	return f(ctx, e)
}

// DefaultSampler keeps failed events, events that applied or reverted
// migrations, and events slower than a threshold.
type DefaultSampler struct {
	slowThreshold time.Duration
}

// NewDefaultSampler creates a rule-based sampler.
func NewDefaultSampler(slowThreshold time.Duration) *DefaultSampler {
	return &DefaultSampler{slowThreshold: slowThreshold}
}

// ShouldSample decides if event should be logged.
func (s *DefaultSampler) ShouldSample(_ context.Context, e *Event) bool {
	if e.Failed() || e.Migrations() > 0 {
		return true
	}

	return s.slowThreshold > 0 && e.Duration() >= s.slowThreshold
}

// EventLogger writes command events through a sampler.
type EventLogger struct {
	sampler Sampler
	logger  *slog.Logger
}

// NewEventLogger creates an event logger writing json or text records to w.
// Context keys are lifted into attributes the same way as for New.
func NewEventLogger(w io.Writer, s Sampler, loggerType string) *EventLogger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.MessageKey {
				return slog.Attr{}
			}
			return a
		},
	}

	var handler slog.Handler
	if loggerType == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &EventLogger{
		sampler: s,
		logger:  slog.New(&contextHandler{handler, nil}),
	}
}

// Write finishes e and writes it when the sampler keeps it.
func (l *EventLogger) Write(ctx context.Context, e *Event) {
	e.Finish()

	if l.sampler.ShouldSample(ctx, e) {
		l.logger.LogAttrs(ctx, e.Level(), "", e.Attrs()...)
	}
}
