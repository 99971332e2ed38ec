package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/platforma-dev/nexus/database"
)

// LedgerTable is the table recording applied migrations.
// Its columns are part of the on-disk contract and must not change.
const LedgerTable = "nexus_migrations"

type ledger struct {
	table string
}

func newLedger() ledger {
	return ledger{table: LedgerTable}
}

func (l ledger) ensureTable(ctx context.Context, exec database.Executor) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id VARCHAR(255) PRIMARY KEY,
  name VARCHAR(255) NOT NULL,
  applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
  execution_time INTEGER NOT NULL
);`, l.table)

	if _, err := exec.Execute(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// appliedIDs returns ledger ids in apply order.
func (l ledger) appliedIDs(ctx context.Context, exec database.Executor) ([]string, error) {
	rows, err := exec.Execute(ctx, fmt.Sprintf("SELECT id FROM %s ORDER BY applied_at ASC, id ASC", l.table))
	if err != nil {
		return nil, fmt.Errorf("failed to select applied migrations: %w", err)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		id, err := stringColumn(row, "id")
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (l ledger) contains(ctx context.Context, exec database.Executor, id string) (bool, error) {
	rows, err := exec.Execute(ctx, fmt.Sprintf("SELECT id FROM %s WHERE id = $1", l.table), id)
	if err != nil {
		return false, fmt.Errorf("failed to look up migration %s: %w", id, err)
	}
	return len(rows) > 0, nil
}

func (l ledger) appliedAt(ctx context.Context, exec database.Executor, id string) (time.Time, error) {
	rows, err := exec.Execute(ctx, fmt.Sprintf("SELECT applied_at FROM %s WHERE id = $1", l.table), id)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to select applied_at of %s: %w", id, err)
	}
	if len(rows) == 0 {
		return time.Time{}, nil
	}

	appliedAt, ok := rows[0]["applied_at"].(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("unexpected applied_at value %T for %s", rows[0]["applied_at"], id)
	}
	return appliedAt, nil
}

func (l ledger) insert(ctx context.Context, exec database.Executor, m Migration, appliedAt time.Time, elapsed time.Duration) error {
	query := fmt.Sprintf("INSERT INTO %s (id, name, applied_at, execution_time) VALUES ($1, $2, $3, $4)", l.table)
	if _, err := exec.Execute(ctx, query, m.ID, m.Name, appliedAt, elapsed.Milliseconds()); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.ID, err)
	}
	return nil
}

func (l ledger) remove(ctx context.Context, exec database.Executor, id string) error {
	if _, err := exec.Execute(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", l.table), id); err != nil {
		return fmt.Errorf("failed to remove migration %s: %w", id, err)
	}
	return nil
}

func stringColumn(row database.Row, column string) (string, error) {
	switch v := row[column].(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("unexpected %s value %T", column, row[column])
	}
}
