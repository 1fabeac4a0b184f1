package sql

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/easyframework/easymodel"
	"github.com/easyframework/easymodel/dialect"
)

const postgresDefaultPort = 5432

type postgresAdapter struct{ base }

func (postgresAdapter) Dialect() string { return dialect.Postgres }

func (postgresAdapter) DriverName() string { return "postgres" }

// DSN builds a lib/pq key/value connection string from host/port/database.
func (postgresAdapter) DSN(cfg easymodel.DatasourceConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = postgresDefaultPort
	}
	kv := []struct{ k, v string }{
		{"host", host},
		{"port", strconv.Itoa(port)},
		{"user", cfg.User()},
		{"password", cfg.Password},
		{"dbname", cfg.Database},
		{"client_encoding", cfg.Encoding},
	}
	var b strings.Builder
	for _, p := range kv {
		if p.v == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p.k)
		b.WriteByte('=')
		b.WriteString(pqValue(p.v))
	}
	return b.String(), nil
}

// pqValue quotes a connection string value when it holds spaces, quotes or backslashes.
func pqValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Session points the search path at the configured schema. The schema is
// not part of the DSN, so pooled connections are restored with RESET.
func (postgresAdapter) Session(cfg easymodel.DatasourceConfig) (setup, reset []string) {
	if cfg.Schema == "" {
		return nil, nil
	}
	return []string{"SET search_path TO " + pq.QuoteIdentifier(cfg.Schema)}, []string{"RESET search_path"}
}

// Rebind rewrites '?' placeholders to $1, $2, ... outside quoted text.
func (postgresAdapter) Rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var (
		b     strings.Builder
		n     int
		quote rune
	)
	b.Grow(len(query) + 8)
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (postgresAdapter) Quote(ident string) string { return pq.QuoteIdentifier(ident) }

func (postgresAdapter) Returning() bool { return true }

func (postgresAdapter) ListTables(easymodel.DatasourceConfig) (string, []any) {
	return "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name", []any{}
}

func (postgresAdapter) Describe(_ easymodel.DatasourceConfig, table string) (string, []any) {
	return `SELECT c.column_name, c.data_type, c.is_nullable, ` +
		`CASE WHEN EXISTS (SELECT 1 FROM information_schema.table_constraints tc ` +
		`JOIN information_schema.key_column_usage k ON k.constraint_name = tc.constraint_name AND k.table_schema = tc.table_schema ` +
		`WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = c.table_schema AND tc.table_name = c.table_name AND k.column_name = c.column_name) ` +
		`THEN 'PRI' ELSE '' END, c.column_default ` +
		`FROM information_schema.columns c WHERE c.table_schema = current_schema() AND c.table_name = ? ORDER BY c.ordinal_position`, []any{table}
}

// ScanColumn scans a row of the information_schema describe statement.
func (postgresAdapter) ScanColumn(rows ColumnScanner) (Column, error) {
	var (
		c    Column
		null string
		def  sql.NullString
	)
	if err := rows.Scan(&c.Field, &c.Type, &null, &c.Key, &def); err != nil {
		return Column{}, err
	}
	c.Null = strings.EqualFold(null, "YES")
	c.Default = def.String
	if strings.HasPrefix(c.Default, "nextval(") {
		c.Extra = "auto_increment"
	}
	return c, nil
}

var _ Adapter = postgresAdapter{}
