package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execCall struct {
	query string
	args  []any
}

type fakeExecutor struct {
	execs   []execCall
	execErr error
	rows    *runRows
}

func (f *fakeExecutor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{query: query, args: args})
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeExecutor) QueryRow(context.Context, string, ...any) pgx.Row {
	return simpleRow{}
}

func (f *fakeExecutor) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	f.execs = append(f.execs, execCall{query: query, args: args})
	if f.rows == nil {
		return &runRows{}, nil
	}
	return f.rows, nil
}

type simpleRow struct {
	scan func(dest ...any) error
}

func (r simpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type testRowsBase struct{}

func (testRowsBase) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (testRowsBase) Conn() *pgx.Conn { return nil }

func (testRowsBase) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (testRowsBase) Values() ([]any, error) {
	return nil, fmt.Errorf("values not supported in test rows")
}

func (testRowsBase) RawValues() [][]byte { return nil }

type runRows struct {
	testRowsBase
	data   []RunSummary
	idx    int
	closed bool
}

func (r *runRows) Close() { r.closed = true }

func (r *runRows) Err() error { return nil }

func (r *runRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *runRows) Scan(dest ...any) error {
	s := r.data[r.idx-1]
	*dest[0].(*string) = s.ID
	*dest[1].(*time.Time) = s.StartedAt
	*dest[2].(**time.Time) = s.FinishedAt
	for i, v := range []int{s.Total, s.Submitted, s.Attempts, s.Completed, s.Failed, s.TimedOut} {
		*dest[3+i].(*int) = v
	}
	return nil
}
