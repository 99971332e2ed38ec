package migration_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/platforma-dev/nexus/database"
)

var errStatementFailed = errors.New("statement failed")

type ledgerRow struct {
	id        string
	name      string
	appliedAt time.Time
	elapsedMS int64
}

type sessionState struct {
	ledgerReady bool
	ledger      []ledgerRow
	schema      []string
}

func (s sessionState) clone() sessionState {
	return sessionState{
		ledgerReady: s.ledgerReady,
		ledger:      slices.Clone(s.ledger),
		schema:      slices.Clone(s.schema),
	}
}

// fakeSession keeps the ledger in memory and records schema statements.
// Changes made inside WithTransaction are only kept when fn succeeds.
type fakeSession struct {
	mu        sync.Mutex
	committed sessionState
	sent      []string
	failOn    string
}

func (s *fakeSession) Execute(ctx context.Context, query string, args ...any) ([]database.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.execute(&s.committed, query, args)
}

func (s *fakeSession) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx database.Executor) error) error {
	s.mu.Lock()
	tx := &fakeTx{session: s, state: s.committed.clone()}
	s.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.committed = tx.state
	s.mu.Unlock()
	return nil
}

// schemaStatements returns committed statements other than ledger bookkeeping.
// seedLedger stores rows as already applied, in the given slice order.
func (s *fakeSession) seedLedger(rows ...ledgerRow) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.committed.ledgerReady = true
	s.committed.ledger = append(s.committed.ledger, rows...)
}

func (s *fakeSession) schemaStatements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.committed.schema)
}

// sentStatements returns every schema statement sent, including rolled back ones.
func (s *fakeSession) sentStatements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.sent)
}

func (s *fakeSession) ledgerIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.committed.ledger))
	for _, row := range s.committed.ledger {
		ids = append(ids, row.id)
	}
	return ids
}

func (s *fakeSession) ledgerRow(id string) (ledgerRow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.committed.ledger, func(row ledgerRow) bool { return row.id == id })
	if i == -1 {
		return ledgerRow{}, false
	}
	return s.committed.ledger[i], true
}

func (s *fakeSession) execute(state *sessionState, query string, args []any) ([]database.Row, error) {
	switch {
	case strings.HasPrefix(query, "CREATE TABLE IF NOT EXISTS nexus_migrations"):
		state.ledgerReady = true
		return nil, nil

	case strings.HasPrefix(query, "SELECT id FROM nexus_migrations ORDER BY"):
		ordered, err := orderLedger(state.ledger, strings.TrimPrefix(query, "SELECT id FROM nexus_migrations ORDER BY "))
		if err != nil {
			return nil, err
		}
		rows := make([]database.Row, 0, len(ordered))
		for _, row := range ordered {
			rows = append(rows, database.Row{"id": row.id})
		}
		return rows, nil

	case strings.HasPrefix(query, "SELECT id FROM nexus_migrations WHERE id = $1"):
		for _, row := range state.ledger {
			if row.id == args[0] {
				return []database.Row{{"id": row.id}}, nil
			}
		}
		return nil, nil

	case strings.HasPrefix(query, "SELECT applied_at FROM nexus_migrations WHERE id = $1"):
		for _, row := range state.ledger {
			if row.id == args[0] {
				return []database.Row{{"applied_at": row.appliedAt}}, nil
			}
		}
		return nil, nil

	case strings.HasPrefix(query, "INSERT INTO nexus_migrations"):
		state.ledger = append(state.ledger, ledgerRow{
			id:        args[0].(string),
			name:      args[1].(string),
			appliedAt: args[2].(time.Time),
			elapsedMS: args[3].(int64),
		})
		return nil, nil

	case strings.HasPrefix(query, "DELETE FROM nexus_migrations WHERE id = $1"):
		state.ledger = slices.DeleteFunc(state.ledger, func(row ledgerRow) bool { return row.id == args[0] })
		return nil, nil
	}

	s.sent = append(s.sent, query)
	if s.failOn != "" && strings.Contains(query, s.failOn) {
		return nil, &database.QueryError{Query: query, Err: errStatementFailed}
	}

	state.schema = append(state.schema, query)
	return nil, nil
}

// orderLedger sorts rows by the ORDER BY clause the ledger sends.
func orderLedger(rows []ledgerRow, orderBy string) ([]ledgerRow, error) {
	ordered := slices.Clone(rows)
	switch orderBy {
	case "applied_at ASC, id ASC":
		slices.SortStableFunc(ordered, func(a, b ledgerRow) int {
			if c := a.appliedAt.Compare(b.appliedAt); c != 0 {
				return c
			}
			return strings.Compare(a.id, b.id)
		})
	case "id ASC", "id":
		slices.SortStableFunc(ordered, func(a, b ledgerRow) int { return strings.Compare(a.id, b.id) })
	default:
		return nil, fmt.Errorf("unsupported ledger order %q", orderBy)
	}
	return ordered, nil
}

type fakeTx struct {
	session *fakeSession
	state   sessionState
}

func (t *fakeTx) Execute(ctx context.Context, query string, args ...any) ([]database.Row, error) {
	t.session.mu.Lock()
	defer t.session.mu.Unlock()

	return t.session.execute(&t.state, query, args)
}
