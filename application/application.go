// Package application runs the migration commands against a database session.
package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/platforma-dev/nexus/database"
	"github.com/platforma-dev/nexus/log"
	"github.com/platforma-dev/nexus/migration"
	"github.com/platforma-dev/nexus/schema"
)

const (
	CommandMigrate  = "migrate"
	CommandRollback = "rollback"
	CommandStatus   = "status"
	CommandGenerate = "generate"
)

var (
	// ErrUnknownCommand is returned when an unknown command is provided.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMissingArgument is returned when a command is called without a required argument.
	ErrMissingArgument = errors.New("missing command argument")
)

// ErrDatabaseMigrationFailed is an error type that represents a failed database migration.
type ErrDatabaseMigrationFailed struct {
	MigrationID string
	err         error
}

// Error returns the formatted error message for ErrDatabaseMigrationFailed.
func (e *ErrDatabaseMigrationFailed) Error() string {
	return fmt.Sprintf("failed to migrate database: %s: %v", e.MigrationID, e.err)
}

// Unwrap returns the underlying error for ErrDatabaseMigrationFailed.
func (e *ErrDatabaseMigrationFailed) Unwrap() error {
	return e.err
}

// Status is the ledger state together with the catalog migrations not applied yet.
type Status struct {
	migration.State
	Pending []string
}

// Application wires a migration catalog to a database session.
type Application struct {
	runner    *migration.Runner
	catalog   []migration.Migration
	generator *migration.Generator
	events    *log.EventLogger
	out       io.Writer
}

// Option configures an Application.
type Option func(*Application)

// WithOutput sets where command reports are written. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(a *Application) { a.out = w }
}

// WithGenerator sets the generator used by Generate.
func WithGenerator(g *migration.Generator) Option {
	return func(a *Application) { a.generator = g }
}

// WithEventLogger writes one event per Run call summarizing the command.
func WithEventLogger(l *log.EventLogger) Option {
	return func(a *Application) { a.events = l }
}

// New creates and returns a new Application instance.
func New(session database.Session, catalog []migration.Migration, opts ...Option) *Application {
	a := &Application{
		runner:    migration.NewRunner(session),
		catalog:   catalog,
		generator: migration.NewGenerator(),
		out:       os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Migrate applies every pending catalog migration in order.
// It returns *ErrDatabaseMigrationFailed when a migration fails.
func (a *Application) Migrate(ctx context.Context) ([]migration.Result, error) {
	if err := a.runner.Initialize(ctx); err != nil {
		return nil, err
	}

	results, err := a.runner.RunPending(ctx, a.catalog)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		log.InfoContext(ctx, "database is up to date")
	}

	return results, firstFailure(results)
}

// Rollback reverts every migration applied after target, most recent first.
func (a *Application) Rollback(ctx context.Context, target string) ([]migration.Result, error) {
	if err := a.runner.Initialize(ctx); err != nil {
		return nil, err
	}

	results, err := a.runner.RollbackTo(ctx, target, a.catalog)
	if err != nil {
		return nil, err
	}

	return results, firstFailure(results)
}

// Status reports the ledger state and pending migrations.
func (a *Application) Status(ctx context.Context) (Status, error) {
	if err := a.runner.Initialize(ctx); err != nil {
		return Status{}, err
	}

	state, err := a.runner.State(ctx)
	if err != nil {
		return Status{}, err
	}

	pending, err := a.runner.Pending(ctx, a.catalog)
	if err != nil {
		return Status{}, err
	}

	status := Status{State: state, Pending: make([]string, 0, len(pending))}
	for _, m := range pending {
		status.Pending = append(status.Pending, m.ID)
	}
	return status, nil
}

// Generate builds a migration from diff and writes it to dir.
func (a *Application) Generate(ctx context.Context, diff schema.SchemaDiff, name, dir string) (migration.Migration, string, error) {
	m := a.generator.FromDiff(diff, name)

	path, err := migration.WriteMigration(dir, m)
	if err != nil {
		return migration.Migration{}, "", err
	}

	log.InfoContext(log.WithMigrationID(ctx, m.ID), "migration generated", "path", path, "up", len(m.Up), "down", len(m.Down))
	return m, path, nil
}

// Run executes a command and writes its report.
// Supported commands: migrate, rollback <id>, status, generate <name> <diff file> <dir>.
func (a *Application) Run(ctx context.Context, command string, args ...string) error {
	ctx = log.WithTraceID(ctx)
	ctx = context.WithValue(ctx, log.CommandKey, command)

	event := log.NewEvent(command)
	event.Set("args", args)
	ctx = log.WithEvent(ctx, event)

	err := a.dispatch(ctx, command, args...)
	event.AddError(err)
	if a.events != nil {
		a.events.Write(ctx, event)
	}
	return err
}

func (a *Application) dispatch(ctx context.Context, command string, args ...string) error {
	switch command {
	case CommandMigrate:
		results, err := a.Migrate(ctx)
		a.printResults("applied", results)
		return err

	case CommandRollback:
		if len(args) < 1 {
			return fmt.Errorf("%w: rollback requires target migration id", ErrMissingArgument)
		}
		results, err := a.Rollback(ctx, args[0])
		a.printResults("rolled back", results)
		return err

	case CommandStatus:
		status, err := a.Status(ctx)
		if err != nil {
			return err
		}
		log.EventFromContext(ctx).Set("pending", len(status.Pending))
		a.printStatus(status)
		return nil

	case CommandGenerate:
		if len(args) < 3 {
			return fmt.Errorf("%w: generate requires name, diff file and directory", ErrMissingArgument)
		}
		diff, err := readDiff(args[1])
		if err != nil {
			return err
		}
		m, path, err := a.Generate(ctx, diff, args[0], args[2])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "generated %s (%d up, %d down) in %s\n", m.ID, len(m.Up), len(m.Down), path)
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

func (a *Application) printResults(verb string, results []migration.Result) {
	if len(results) == 0 {
		fmt.Fprintln(a.out, "nothing to do")
		return
	}

	for _, r := range results {
		if r.Success {
			fmt.Fprintf(a.out, "%s %s (%s)\n", verb, r.MigrationID, r.ExecutionTime.Round(time.Millisecond))
		} else {
			fmt.Fprintf(a.out, "failed %s: %s\n", r.MigrationID, r.Error)
		}
	}
}

func (a *Application) printStatus(status Status) {
	fmt.Fprintf(a.out, "current version: %s\n", status.CurrentVersion)
	if !status.LastMigrationDate.IsZero() {
		fmt.Fprintf(a.out, "last migration: %s\n", status.LastMigrationDate.Format(time.RFC3339))
	}
	fmt.Fprintf(a.out, "applied: %d\n", len(status.AppliedMigrations))
	for _, id := range status.AppliedMigrations {
		fmt.Fprintf(a.out, "  %s\n", id)
	}
	fmt.Fprintf(a.out, "pending: %d\n", len(status.Pending))
	for _, id := range status.Pending {
		fmt.Fprintf(a.out, "  %s\n", id)
	}
}

func readDiff(path string) (schema.SchemaDiff, error) {
	file, err := os.Open(path) //nolint:gosec
	if err != nil {
		return schema.SchemaDiff{}, fmt.Errorf("failed to open diff file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return schema.DecodeDiff(file)
}

func firstFailure(results []migration.Result) error {
	for _, r := range results {
		if !r.Success {
			return &ErrDatabaseMigrationFailed{MigrationID: r.MigrationID, err: r.Err}
		}
	}
	return nil
}
