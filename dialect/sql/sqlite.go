package sql

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/easyframework/easymodel"
	"github.com/easyframework/easymodel/dialect"
)

type sqliteAdapter struct{ base }

func (sqliteAdapter) Dialect() string { return dialect.SQLite }

func (sqliteAdapter) DriverName() string { return "sqlite" }

// DSN is the database file path. An empty path opens an in-memory database.
func (sqliteAdapter) DSN(cfg easymodel.DatasourceConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.Database == "" {
		return ":memory:", nil
	}
	return cfg.Database, nil
}

// Configure pins in-memory databases to one connection, since every new
// connection would see its own empty database.
func (a sqliteAdapter) Configure(db *sql.DB, cfg easymodel.DatasourceConfig) {
	if dsn, _ := a.DSN(cfg); isMemory(dsn) {
		db.SetMaxOpenConns(1)
		db.SetConnMaxIdleTime(0)
		return
	}
	a.base.Configure(db, cfg)
}

func isMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func (sqliteAdapter) Quote(ident string) string { return quoteWith(ident, `"`) }

func (sqliteAdapter) ListTables(easymodel.DatasourceConfig) (string, []any) {
	return "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name", []any{}
}

func (a sqliteAdapter) Describe(_ easymodel.DatasourceConfig, table string) (string, []any) {
	return "PRAGMA table_info(" + a.Quote(table) + ")", []any{}
}

// ScanColumn scans a row of PRAGMA table_info: cid, name, type, notnull, dflt_value, pk.
func (sqliteAdapter) ScanColumn(rows ColumnScanner) (Column, error) {
	var (
		c       Column
		cid     int64
		notnull int64
		def     sql.NullString
		pk      int64
	)
	if err := rows.Scan(&cid, &c.Field, &c.Type, &notnull, &def, &pk); err != nil {
		return Column{}, err
	}
	c.Null = notnull == 0
	c.Default = def.String
	if pk > 0 {
		c.Key = "PRI"
		if strings.EqualFold(c.Type, "INTEGER") {
			c.Extra = "auto_increment"
		}
	}
	return c, nil
}

var _ Adapter = sqliteAdapter{}
