// Package sql provides the SQL driver, dialect adapters, statement builder
// and conditions parser of easymodel.
//
// # Driver
//
// A Driver wraps a database/sql pool for one datasource and one scope. It
// connects lazily, normalizes bind values, rewrites placeholders for the
// dialect and tracks the transaction of its scope:
//
//	drv, err := sql.Open(cfg.Datasources["default"])
//	if err != nil {
//	    return err
//	}
//	defer drv.Disconnect()
//	records, err := drv.Read(ctx, sql.Select("id", "name").From("users", ""))
//
// # Dialect Support
//
// MySQL (go-sql-driver/mysql), PostgreSQL (lib/pq) and SQLite
// (modernc.org/sqlite) are supported. Statements are always built with '?'
// placeholders; the PostgreSQL adapter rewrites them to $1, $2, ... before
// execution.
//
// # Query
//
// Query is a mutable statement builder. It caches its rendered text until
// the next mutation:
//
//	q := sql.Select("a", "b").From("t", "")
//	q.SQL() // SELECT a, b FROM t
//
//	q = sql.Insert("users").Values(sql.Map{{"name", "x"}, {"age", 1}})
//	q.SQL()  // INSERT INTO users (name,age) VALUES(?,?)
//	q.Args() // [x 1]
//
// # Conditions
//
// Conditions are parsed from ordered maps into a tree of nodes and rendered
// with positional placeholders:
//
//	c := sql.MustConditions(sql.Map{
//	    {"status", "active"},
//	    {"age", sql.Map{{">", 18}}},
//	})
//	c.Keys()   // status = ? AND age > ?
//	c.Values() // [active 18]
package sql
