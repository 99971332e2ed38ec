package log

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"
)

const (
	// DirectionUp marks a migration step that applied a migration.
	DirectionUp = "up"
	// DirectionDown marks a migration step that reverted a migration.
	DirectionDown = "down"

	// EventKey is the context key for the command event.
	EventKey contextKey = "event"
)

// Event collects what happened during one command run.
// It is written as a single record once the command finishes.
type Event struct {
	mu sync.Mutex

	command    string
	started    time.Time
	level      slog.Level
	duration   time.Duration
	attrs      map[string]any
	migrations []migrationRecord
	errors     []string
}

type migrationRecord struct {
	ID        string
	Direction string
	Elapsed   time.Duration
	Error     string
}

// NewEvent creates an event for command.
func NewEvent(command string) *Event {
	return &Event{
		command: command,
		started: time.Now(),
		level:   slog.LevelInfo,
		attrs:   map[string]any{},
	}
}

// WithEvent returns a copy of ctx carrying e.
func WithEvent(ctx context.Context, e *Event) context.Context {
	return context.WithValue(ctx, EventKey, e)
}

// EventFromContext returns the event stored in ctx or nil.
func EventFromContext(ctx context.Context) *Event {
	event, ok := ctx.Value(EventKey).(*Event)
	if !ok {
		return nil
	}

	return event
}

// Set stores an attribute. Keys used by the event itself are ignored on output.
func (e *Event) Set(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.attrs[key] = value
}

// AddMigration records a migration step. A non-nil err escalates the event to error.
func (e *Event) AddMigration(id, direction string, err error, elapsed time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec := migrationRecord{ID: id, Direction: direction, Elapsed: elapsed}
	if err != nil {
		rec.Error = err.Error()
		e.level = slog.LevelError
	}
	e.migrations = append(e.migrations, rec)
}

// AddError records a command error and escalates the event to error.
func (e *Event) AddError(err error) {
	if err == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.level = slog.LevelError
	e.errors = append(e.errors, err.Error())
}

// Finish stores the time elapsed since the event was created.
func (e *Event) Finish() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.duration = time.Since(e.started)
}

// Failed reports whether any error or failed migration was recorded.
func (e *Event) Failed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.level >= slog.LevelError
}

// Migrations returns the number of recorded migration steps.
func (e *Event) Migrations() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.migrations)
}

// Duration returns the duration stored by Finish.
func (e *Event) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.duration
}

// Level returns the event level.
func (e *Event) Level() slog.Level {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.level
}

// Attrs converts the event to slog attributes. Custom attributes follow in key order.
func (e *Event) Attrs() []slog.Attr {
	e.mu.Lock()
	defer e.mu.Unlock()

	migrations := make([]map[string]any, 0, len(e.migrations))
	for _, m := range e.migrations {
		rec := map[string]any{
			"id":        m.ID,
			"direction": m.Direction,
			"elapsed":   m.Elapsed.String(),
		}
		if m.Error != "" {
			rec["error"] = m.Error
		}
		migrations = append(migrations, rec)
	}

	attrs := []slog.Attr{
		slog.String("event", e.command),
		slog.Time("started", e.started),
		slog.Duration("duration", e.duration),
		slog.Any("migrations", migrations),
		slog.Any("errors", slices.Clone(e.errors)),
	}

	for _, key := range slices.Sorted(maps.Keys(e.attrs)) {
		if slices.Contains(reservedEventKeys, key) {
			continue
		}
		attrs = append(attrs, slog.Any(key, e.attrs[key]))
	}

	return attrs
}

var reservedEventKeys = []string{"event", "started", "duration", "migrations", "errors"} //nolint:gochecknoglobals
