package dialect

import (
	"context"
	"database/sql"
)

// Dialect names for supported databases.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// ExecQuerier runs statements. *sql.DB, *sql.Conn and *sql.Tx implement it.
type ExecQuerier interface {
	// ExecContext executes a statement that returns no rows, e.g. INSERT or UPDATE.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	// QueryContext executes a statement that returns rows, typically a SELECT.
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Tx wraps the Exec and Query operations in transaction.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

var (
	_ ExecQuerier = (*sql.DB)(nil)
	_ ExecQuerier = (*sql.Conn)(nil)
	_ Tx          = (*sql.Tx)(nil)
)

// Valid reports whether name is one of the supported dialects.
func Valid(name string) bool {
	switch name {
	case MySQL, SQLite, Postgres:
		return true
	}
	return false
}
