// Package dialect provides database dialect abstraction for easymodel.
//
// This package defines the names and the low-level execution contract shared
// by the dialect adapters, allowing the entity manager to run against
// MySQL, PostgreSQL and SQLite through one API.
//
// # Supported Dialects
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// # ExecQuerier Interface
//
// A dialect/sql.Driver runs each statement on an ExecQuerier: the pool, a
// connection pinned for session settings, or the active Tx.
//
//	type ExecQuerier interface {
//	    ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
//	    QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
//	}
//
// # Sub-packages
//
//   - dialect/sql: driver, dialect adapters, query builder and conditions parser
//   - dialect/sql/schema: cached table metadata (columns and primary key)
package dialect
