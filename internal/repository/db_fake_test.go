package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type sqlCall struct {
	sql  string
	args []any
	inTx bool
}

type execResult struct {
	affected int64
	err      error
}

// fakeDB records every statement and answers Exec from a queue and
// QueryRow with one canned row.
type fakeDB struct {
	calls   []sqlCall
	results []execResult
	row     []any
	rowErr  error

	began      int
	committed  bool
	rolledBack bool
}

func (f *fakeDB) exec(sql string, args []any, inTx bool) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, sqlCall{sql: sql, args: args, inTx: inTx})
	if len(f.results) == 0 {
		return pgconn.NewCommandTag("UPDATE 0"), nil
	}
	res := f.results[0]
	f.results = f.results[1:]
	if res.err != nil {
		return pgconn.CommandTag{}, res.err
	}
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", res.affected)), nil
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return f.exec(sql, args, false)
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.calls = append(f.calls, sqlCall{sql: sql, args: args})
	return nil, errors.New("fakeDB: Query not supported")
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.calls = append(f.calls, sqlCall{sql: sql, args: args})
	return fakeRow{vals: f.row, err: f.rowErr}
}

func (f *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	f.began++
	return &fakeTx{db: f}, nil
}

// fakeTx implements the Tx methods the repositories call. Anything else
// hits the nil embedded interface and panics.
type fakeTx struct {
	pgx.Tx
	db *fakeDB
}

func (t *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.exec(sql, args, true)
}

func (t *fakeTx) Commit(context.Context) error {
	t.db.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.db.committed {
		return pgx.ErrTxClosed
	}
	t.db.rolledBack = true
	return nil
}

// fakeRow copies vals into the scan targets. A nil entry leaves the target
// at its zero value.
type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return fmt.Errorf("fakeRow: %d targets for %d values", len(dest), len(r.vals))
	}
	for i, d := range dest {
		if r.vals[i] == nil {
			continue
		}
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.vals[i]))
	}
	return nil
}
