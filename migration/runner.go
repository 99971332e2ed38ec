package migration

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/platforma-dev/nexus/database"
	"github.com/platforma-dev/nexus/log"
)

// Runner applies and rolls back migrations against a session and keeps the ledger.
//
// Runner does not serialize concurrent calls. Migrations against one ledger
// must be executed by a single flow at a time.
type Runner struct {
	session database.Session
	ledger  ledger
}

// NewRunner creates a Runner using the given session.
func NewRunner(session database.Session) *Runner {
	return &Runner{session: session, ledger: newLedger()}
}

// Initialize creates the ledger table if it does not exist.
func (r *Runner) Initialize(ctx context.Context) error {
	return r.ledger.ensureTable(ctx, r.session)
}

// AppliedMigrations returns applied migration ids ordered by apply time.
func (r *Runner) AppliedMigrations(ctx context.Context) ([]string, error) {
	return r.ledger.appliedIDs(ctx, r.session)
}

// State returns the applied ids, the current version and the time of the last apply.
func (r *Runner) State(ctx context.Context) (State, error) {
	applied, err := r.AppliedMigrations(ctx)
	if err != nil {
		return State{}, err
	}

	state := State{AppliedMigrations: applied, CurrentVersion: InitialVersion}
	if len(applied) == 0 {
		return state, nil
	}

	state.CurrentVersion = applied[len(applied)-1]
	state.LastMigrationDate, err = r.ledger.appliedAt(ctx, r.session, state.CurrentVersion)
	if err != nil {
		return State{}, err
	}
	return state, nil
}

// Pending returns the migrations of catalog that are not applied, in catalog order.
func (r *Runner) Pending(ctx context.Context, catalog []Migration) ([]Migration, error) {
	applied, err := r.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, m := range catalog {
		if !slices.Contains(applied, m.ID) {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// Run applies m. An already applied migration is a successful no-op with zero execution time.
// Every Up statement and the ledger insert run in one transaction; any failure
// rolls all of them back and is reported in the result.
func (r *Runner) Run(ctx context.Context, m Migration) Result {
	ctx = log.WithMigrationID(ctx, m.ID)
	start := time.Now()

	applied, err := r.ledger.contains(ctx, r.session, m.ID)
	if err != nil {
		return failed(m.ID, err, time.Since(start))
	}
	if applied {
		log.InfoContext(ctx, "migration skipped", "name", m.Name)
		return Result{Success: true, MigrationID: m.ID}
	}

	err = r.apply(ctx, m.Up, func(ctx context.Context, tx database.Executor) error {
		return r.ledger.insert(ctx, tx, m, time.Now().UTC(), time.Since(start))
	})
	elapsed := time.Since(start)
	if err != nil {
		log.ErrorContext(ctx, "migration failed", "name", m.Name, "error", err)
		return record(ctx, log.DirectionUp, failed(m.ID, err, elapsed))
	}

	log.InfoContext(ctx, "migration applied", "name", m.Name, "executionTime", elapsed)
	return record(ctx, log.DirectionUp, Result{Success: true, MigrationID: m.ID, ExecutionTime: elapsed})
}

// Rollback reverts m. A migration that is not applied is a successful no-op with zero execution time.
// Every Down statement and the ledger delete run in one transaction.
func (r *Runner) Rollback(ctx context.Context, m Migration) Result {
	ctx = log.WithMigrationID(ctx, m.ID)
	start := time.Now()

	applied, err := r.ledger.contains(ctx, r.session, m.ID)
	if err != nil {
		return failed(m.ID, err, time.Since(start))
	}
	if !applied {
		log.InfoContext(ctx, "rollback skipped, migration not applied", "name", m.Name)
		return Result{Success: true, MigrationID: m.ID}
	}

	err = r.apply(ctx, m.Down, func(ctx context.Context, tx database.Executor) error {
		return r.ledger.remove(ctx, tx, m.ID)
	})
	elapsed := time.Since(start)
	if err != nil {
		log.ErrorContext(ctx, "rollback failed", "name", m.Name, "error", err)
		return record(ctx, log.DirectionDown, failed(m.ID, err, elapsed))
	}

	log.InfoContext(ctx, "migration rolled back", "name", m.Name, "executionTime", elapsed)
	return record(ctx, log.DirectionDown, Result{Success: true, MigrationID: m.ID, ExecutionTime: elapsed})
}

// record adds the outcome to the command event carried by ctx, if any.
func record(ctx context.Context, direction string, result Result) Result {
	if event := log.EventFromContext(ctx); event != nil {
		event.AddMigration(result.MigrationID, direction, result.Err, result.ExecutionTime)
	}
	return result
}

// RunPending applies every migration that is not applied yet, in the given order.
// It stops at the first failure and returns the results collected so far.
func (r *Runner) RunPending(ctx context.Context, migrations []Migration) ([]Result, error) {
	pending, err := r.Pending(ctx, migrations)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(pending))
	for _, m := range pending {
		result := r.Run(ctx, m)
		results = append(results, result)

		if !result.Success {
			break
		}
	}
	return results, nil
}

// RollbackTo reverts every migration applied after targetID, most recent first.
// It fails before touching the schema when targetID is not applied or when a
// migration to revert has no definition in catalog. It stops at the first
// failed rollback and returns the results collected so far.
func (r *Runner) RollbackTo(ctx context.Context, targetID string, catalog []Migration) ([]Result, error) {
	applied, err := r.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	targetIndex := slices.Index(applied, targetID)
	if targetIndex == -1 {
		return nil, fmt.Errorf("%w: %s", ErrMigrationNotApplied, targetID)
	}

	ids := slices.Clone(applied[targetIndex+1:])
	slices.Reverse(ids)

	toRollback := make([]Migration, 0, len(ids))
	for _, id := range ids {
		i := slices.IndexFunc(catalog, func(m Migration) bool { return m.ID == id })
		if i == -1 {
			return nil, fmt.Errorf("%w: %s", ErrMigrationDefinitionNotFound, id)
		}
		toRollback = append(toRollback, catalog[i])
	}

	results := make([]Result, 0, len(toRollback))
	for _, m := range toRollback {
		result := r.Rollback(ctx, m)
		results = append(results, result)

		if !result.Success {
			break
		}
	}
	return results, nil
}

// apply renders ops up front, then executes the statements and record in one transaction.
func (r *Runner) apply(ctx context.Context, ops []Operation, record func(context.Context, database.Executor) error) error {
	statements, err := RenderAll(ops)
	if err != nil {
		return err
	}

	err = r.session.WithTransaction(ctx, func(ctx context.Context, tx database.Executor) error {
		for _, statement := range statements {
			if _, err := tx.Execute(ctx, statement); err != nil {
				return err
			}
		}
		return record(ctx, tx)
	})
	if err != nil {
		return fmt.Errorf("transaction rolled back: %w", err)
	}
	return nil
}

func failed(id string, err error, elapsed time.Duration) Result {
	return Result{
		Success:       false,
		MigrationID:   id,
		Error:         err.Error(),
		Err:           err,
		ExecutionTime: elapsed,
	}
}
