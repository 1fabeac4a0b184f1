package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/easyframework/easymodel/dialect"
)

// resetTimeout bounds the statements restoring a pinned connection.
const resetTimeout = 5 * time.Second

type (
	// Result is the outcome of Execute.
	Result = sql.Result
	// Rows is the result of Select. Close releases the connection the
	// statement ran on.
	Rows struct {
		*sql.Rows
		release func() error
	}
)

// Close closes the rows and releases their connection.
func (r *Rows) Close() error {
	err := r.Rows.Close()
	if r.release != nil {
		err = errors.Join(err, r.release())
		r.release = nil
	}
	return err
}

// ColumnScanner scans the current row of a result.
type ColumnScanner interface {
	Scan(dest ...any) error
}

// session prepares a connection for the datasource before its statements run
// and restores it before the connection goes back to the pool.
type session struct {
	setup, reset []string
}

func (s session) empty() bool { return len(s.setup) == 0 }

// conn returns what the next statement runs on and the function releasing
// it, which is nil when there is nothing to release. Inside a transaction
// that is the transaction, prepared by BeginTransaction. Otherwise it is the
// pool, or a connection pinned for the session of the datasource.
func (d *Driver) conn(ctx context.Context) (dialect.ExecQuerier, func() error, error) {
	if err := d.Connect(ctx); err != nil {
		return nil, nil, err
	}
	d.mu.Lock()
	tx, db := d.tx, d.db
	d.mu.Unlock()
	if tx != nil {
		return tx, nil, nil
	}
	s := d.session()
	if s.empty() {
		return db, nil, nil
	}
	c, err := db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("dialect/sql: pin connection: %w", err)
	}
	if err := runAll(ctx, c, s.setup); err != nil {
		return nil, nil, errors.Join(err, c.Close())
	}
	release := func() error {
		// A canceled request still restores the connection.
		ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
		defer cancel()
		return errors.Join(runAll(ctx, c, s.reset), c.Close())
	}
	return c, release, nil
}

func (d *Driver) session() session {
	setup, reset := d.adapter.Session(d.config)
	return session{setup: setup, reset: reset}
}

// runAll executes stmts in order on ex and stops at the first failure.
func runAll(ctx context.Context, ex dialect.ExecQuerier, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := ex.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("dialect/sql: session %q: %w", stmt, err)
		}
	}
	return nil
}
