package sql

import (
	"database/sql"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/easyframework/easymodel"
	"github.com/easyframework/easymodel/dialect"
)

const mysqlDefaultPort = 3306

type mysqlAdapter struct{ base }

func (mysqlAdapter) Dialect() string { return dialect.MySQL }

func (mysqlAdapter) DriverName() string { return "mysql" }

// DSN builds host/port/database/charset into a go-sql-driver DSN. Hosts that
// start with a slash are unix sockets. Affected rows count matched rows, so
// an update writing unchanged values still reports its row.
func (mysqlAdapter) DSN(cfg easymodel.DatasourceConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	c := mysql.NewConfig()
	c.User = cfg.User()
	c.Passwd = cfg.Password
	c.DBName = cfg.Database
	c.ParseTime = true
	c.ClientFoundRows = true
	switch host := cfg.Host; {
	case strings.HasPrefix(host, "/"):
		c.Net, c.Addr = "unix", host
	default:
		if host == "" {
			host = "127.0.0.1"
		}
		port := cfg.Port
		if port == 0 {
			port = mysqlDefaultPort
		}
		c.Net, c.Addr = "tcp", net.JoinHostPort(host, strconv.Itoa(port))
	}
	if cfg.Encoding != "" {
		c.Params = map[string]string{"charset": cfg.Encoding}
	}
	return c.FormatDSN(), nil
}

func (mysqlAdapter) Quote(ident string) string { return quoteWith(ident, "`") }

func (mysqlAdapter) UpdateLimit() bool { return true }

func (mysqlAdapter) ListTables(easymodel.DatasourceConfig) (string, []any) {
	return "SHOW TABLES", []any{}
}

func (a mysqlAdapter) Describe(_ easymodel.DatasourceConfig, table string) (string, []any) {
	return "SHOW COLUMNS FROM " + a.Quote(table), []any{}
}

// ScanColumn scans a row of SHOW COLUMNS: Field, Type, Null, Key, Default, Extra.
func (mysqlAdapter) ScanColumn(rows ColumnScanner) (Column, error) {
	var (
		c    Column
		null string
		def  sql.NullString
	)
	if err := rows.Scan(&c.Field, &c.Type, &null, &c.Key, &def, &c.Extra); err != nil {
		return Column{}, err
	}
	c.Null = strings.EqualFold(null, "YES")
	c.Default = def.String
	return c, nil
}

var _ Adapter = mysqlAdapter{}
