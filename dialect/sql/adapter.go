package sql

import (
	"database/sql"
	"strings"

	"github.com/easyframework/easymodel"
	"github.com/easyframework/easymodel/dialect"
)

// Column describes one column of a table, normalized across dialects.
// Key is "PRI" for primary key columns.
type Column struct {
	Field   string `msgpack:"field"`
	Type    string `msgpack:"type"`
	Null    bool   `msgpack:"null"`
	Key     string `msgpack:"key"`
	Default string `msgpack:"default"`
	Extra   string `msgpack:"extra"`
}

// Primary reports whether the column is part of the primary key.
func (c Column) Primary() bool { return c.Key == "PRI" }

// Adapter holds what differs between the supported dialects.
type Adapter interface {
	// Dialect returns the dialect name, one of the dialect package constants.
	Dialect() string
	// DriverName returns the database/sql driver name.
	DriverName() string
	// DSN builds the data source name of a datasource.
	DSN(cfg easymodel.DatasourceConfig) (string, error)
	// Configure applies connection flags to a freshly opened pool.
	Configure(db *sql.DB, cfg easymodel.DatasourceConfig)
	// Session returns the statements preparing a connection for the datasource
	// and the statements restoring it before it goes back to the pool.
	Session(cfg easymodel.DatasourceConfig) (setup, reset []string)
	// Rebind rewrites '?' placeholders to the dialect's form.
	Rebind(query string) string
	// Quote quotes an identifier.
	Quote(ident string) string
	// UpdateLimit reports whether UPDATE and DELETE accept ORDER BY and LIMIT.
	UpdateLimit() bool
	// Returning reports whether generated keys are read with INSERT ... RETURNING.
	Returning() bool
	// ListTables returns the statement listing the tables of the current database.
	ListTables(cfg easymodel.DatasourceConfig) (string, []any)
	// Describe returns the statement describing the columns of table.
	Describe(cfg easymodel.DatasourceConfig, table string) (string, []any)
	// ScanColumn scans one row of the Describe statement.
	ScanColumn(rows ColumnScanner) (Column, error)
}

// AdapterFor returns the adapter of the named dialect. Common aliases such as
// "pgsql" or "sqlite3" are accepted.
func AdapterFor(name string) (Adapter, error) {
	switch strings.ToLower(name) {
	case dialect.MySQL, "mysqli", "mariadb":
		return mysqlAdapter{}, nil
	case dialect.Postgres, "postgresql", "pgsql", "pg":
		return postgresAdapter{}, nil
	case dialect.SQLite, "sqlite3":
		return sqliteAdapter{}, nil
	}
	return nil, easymodel.NewMissingDriverError(name)
}

// base holds the behavior shared by the adapters.
type base struct{}

func (base) Session(easymodel.DatasourceConfig) (setup, reset []string) { return nil, nil }

func (base) Rebind(query string) string { return query }

func (base) UpdateLimit() bool { return false }

func (base) Returning() bool { return false }

func (base) Configure(db *sql.DB, cfg easymodel.DatasourceConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if !cfg.Persistent {
		db.SetConnMaxIdleTime(idleTimeout)
	}
}

// quoteWith quotes ident with q, doubling any q inside it.
func quoteWith(ident string, q string) string {
	return q + strings.ReplaceAll(ident, q, q+q) + q
}
