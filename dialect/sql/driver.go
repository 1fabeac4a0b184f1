package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/easyframework/easymodel"
	"github.com/easyframework/easymodel/dialect"
)

// idleTimeout is how long an idle connection of a non-persistent datasource is kept.
const idleTimeout = 30 * time.Second

// Driver is a connection to one datasource. It owns the transaction state of
// one logical scope, so a Driver must not be shared between requests; use
// Connections to hand out one Driver per scope over a shared pool.
type Driver struct {
	adapter Adapter
	config  easymodel.DatasourceConfig

	mu       sync.Mutex
	db       *sql.DB
	tx       dialect.Tx
	owned    bool // db was opened by Connect and is closed by Disconnect
	affected int64

	cache         easymodel.Cache
	stats         *QueryStats
	slowThreshold time.Duration
	slowHook      SlowQueryHook
	log           *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger of the driver.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		d.log = l
	}
}

// WithCache sets the store of the schema metadata of the datasource.
// Default is easymodel.DefaultCache.
func WithCache(c easymodel.Cache) Option {
	return func(d *Driver) {
		d.cache = c
	}
}

// WithStats records statement statistics into s.
func WithStats(s *QueryStats) Option {
	return func(d *Driver) {
		d.stats = s
	}
}

// WithSlowThreshold sets the threshold for slow query detection.
// Default is 100ms, or the slow_threshold of the datasource.
func WithSlowThreshold(t time.Duration) Option {
	return func(d *Driver) {
		d.slowThreshold = t
	}
}

// WithSlowQueryHook sets a callback function for slow queries.
// The default hook logs them at warn level.
func WithSlowQueryHook(hook SlowQueryHook) Option {
	return func(d *Driver) {
		d.slowHook = hook
	}
}

func newDriver(cfg easymodel.DatasourceConfig, opts []Option) (*Driver, error) {
	a, err := AdapterFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	d := &Driver{
		adapter:       a,
		config:        cfg,
		slowThreshold: cfg.SlowThreshold,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	d.log = d.log.With("datasource", cfg.Name, "dialect", a.Dialect())
	if d.cache == nil {
		d.cache = easymodel.DefaultCache()
	}
	if d.stats == nil {
		d.stats = &QueryStats{}
	}
	if d.slowThreshold <= 0 {
		d.slowThreshold = defaultSlowThreshold
	}
	if d.slowHook == nil {
		d.slowHook = logSlowQuery(d.log)
	}
	return d, nil
}

// Open returns a Driver for the datasource. The connection is established
// lazily by Connect or by the first statement.
func Open(cfg easymodel.DatasourceConfig, opts ...Option) (*Driver, error) {
	return newDriver(cfg, opts)
}

// OpenDB returns a Driver over an already opened pool. Disconnect does not
// close db.
func OpenDB(cfg easymodel.DatasourceConfig, db *sql.DB, opts ...Option) (*Driver, error) {
	d, err := newDriver(cfg, opts)
	if err != nil {
		return nil, err
	}
	d.db = db
	return d, nil
}

// Dialect returns the dialect name of the driver.
func (d *Driver) Dialect() string { return d.adapter.Dialect() }

// Adapter returns the dialect adapter.
func (d *Driver) Adapter() Adapter { return d.adapter }

// Config returns the datasource configuration.
func (d *Driver) Config() easymodel.DatasourceConfig { return d.config }

// Cache returns the store of the schema metadata of the datasource.
func (d *Driver) Cache() easymodel.Cache { return d.cache }

// QueryStats returns the statistics the driver records into.
func (d *Driver) QueryStats() *QueryStats { return d.stats }

// DB returns the underlying pool, or nil before Connect.
func (d *Driver) DB() *sql.DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db
}

// Connect establishes the connection if it is not established yet.
// Failures are returned as *easymodel.MissingConnectionError.
func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db != nil {
		return nil
	}
	dsn, err := d.adapter.DSN(d.config)
	if err != nil {
		return easymodel.NewMissingConnectionError(d.config.Name, err)
	}
	db, err := sql.Open(d.adapter.DriverName(), dsn)
	if err != nil {
		return easymodel.NewMissingConnectionError(d.config.Name, err)
	}
	d.adapter.Configure(db, d.config)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return easymodel.NewMissingConnectionError(d.config.Name, err)
	}
	d.db, d.owned = db, true
	d.log.InfoContext(ctx, "connected")
	return nil
}

// Disconnect rolls back a pending transaction and releases the connection.
func (d *Driver) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	if d.tx != nil {
		err = d.tx.Rollback()
		d.tx = nil
	}
	if d.db != nil && d.owned {
		err = errors.Join(err, d.db.Close())
		d.log.Info("disconnected")
	}
	d.db, d.owned = nil, false
	return err
}

// Execute runs a statement that returns no rows and records the number of
// affected rows. Placeholders are written as '?' for every dialect.
func (d *Driver) Execute(ctx context.Context, query string, args []any) (Result, error) {
	ex, release, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}
	query, args = d.adapter.Rebind(query), bindArgs(args)
	start := time.Now()
	res, err := ex.ExecContext(ctx, query, args...)
	if release != nil {
		err = errors.Join(err, release())
	}
	d.record(ctx, query, args, start, err, false)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: exec: %w", err)
	}
	d.mu.Lock()
	d.affected = 0
	if n, err := res.RowsAffected(); err == nil {
		d.affected = n
	}
	d.mu.Unlock()
	return res, nil
}

// Select runs a statement that returns rows. The caller must close the rows.
func (d *Driver) Select(ctx context.Context, query string, args []any) (*Rows, error) {
	ex, release, err := d.conn(ctx)
	if err != nil {
		return nil, err
	}
	query, args = d.adapter.Rebind(query), bindArgs(args)
	start := time.Now()
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil && release != nil {
		err = errors.Join(err, release())
	}
	d.record(ctx, query, args, start, err, true)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: query: %w", err)
	}
	return &Rows{Rows: rows, release: release}, nil
}

// AffectedRows returns the number of rows affected by the last Execute.
func (d *Driver) AffectedRows() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.affected
}

// Create inserts data into table. When pk is not empty, the generated key is
// returned: through RETURNING on dialects that support it, through
// LastInsertId otherwise. The returned key is nil when the dialect cannot
// report it.
func (d *Driver) Create(ctx context.Context, table string, data Map, pk string) (any, error) {
	q := Insert(table).Values(data)
	query := q.SQL()
	if len(data) == 0 && d.adapter.Dialect() == dialect.MySQL {
		// MySQL has no DEFAULT VALUES form.
		query = "INSERT INTO " + table + " () VALUES ()"
	}
	if pk != "" && d.adapter.Returning() {
		rows, err := d.Select(ctx, strings.TrimSuffix(query, " ")+" RETURNING "+pk, q.Args())
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var id any
		if rows.Next() {
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.affected = 1
		d.mu.Unlock()
		return normalize(id), nil
	}
	res, err := d.Execute(ctx, query, q.Args())
	if err != nil {
		return nil, err
	}
	if pk == "" {
		return nil, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, nil
	}
	return id, nil
}

// Read runs a SELECT query and fetches all rows as records.
func (d *Driver) Read(ctx context.Context, q *Query) ([]Record, error) {
	rows, err := d.Select(ctx, q.SQL(), q.Args())
	if err != nil {
		return nil, err
	}
	return FetchAll(rows)
}

// Update sets values on the rows of table matched by q and returns the
// number of affected rows. Column values bind before the where values.
// ORDER BY and LIMIT are dropped on dialects that do not support them.
func (d *Driver) Update(ctx context.Context, table string, values Map, q *Query) (int64, error) {
	q = q.Clone()
	q.Update(table).SetMap(values)
	if !d.adapter.UpdateLimit() {
		q.Reset(PartOrder).Reset(PartLimit)
	}
	if _, err := d.Execute(ctx, q.SQL(), q.Args()); err != nil {
		return 0, err
	}
	return d.AffectedRows(), nil
}

// Delete removes the rows of table matched by q and returns the number of
// affected rows.
func (d *Driver) Delete(ctx context.Context, table string, q *Query) (int64, error) {
	q = q.Clone()
	q.Delete(table)
	if !d.adapter.UpdateLimit() {
		q.Reset(PartOrder).Reset(PartLimit)
	}
	if _, err := d.Execute(ctx, q.SQL(), q.Args()); err != nil {
		return 0, err
	}
	return d.AffectedRows(), nil
}

// Count returns the number of rows matched by the SELECT query q, ignoring
// its order and limit. q is left untouched. Grouped and distinct queries are
// counted as a subquery.
func (d *Driver) Count(ctx context.Context, q *Query) (int64, error) {
	c := q.Clone().Reset(PartOrder).Reset(PartLimit)
	var query string
	if c.grouped() {
		query = "SELECT COUNT(*) AS count FROM (" + c.SQL() + ") t"
	} else {
		query = c.Select("COUNT(*) AS count").SQL()
	}
	rows, err := d.Select(ctx, query, c.Args())
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

// BeginTransaction starts a transaction. It is a no-op when a transaction
// is already active.
func (d *Driver) BeginTransaction(ctx context.Context) error {
	if err := d.Connect(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx != nil {
		return nil
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dialect/sql: begin transaction: %w", err)
	}
	if err := runAll(ctx, tx, d.session().setup); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	d.tx = tx
	d.log.DebugContext(ctx, "begin transaction")
	return nil
}

// InTransaction reports whether a transaction is active.
func (d *Driver) InTransaction() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tx != nil
}

// Commit commits the active transaction. It returns easymodel.ErrTxNotStarted
// when there is none.
func (d *Driver) Commit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx == nil {
		return easymodel.ErrTxNotStarted
	}
	tx := d.tx
	d.tx = nil
	d.log.Debug("commit transaction")
	// Settings made inside a committed transaction outlive it.
	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()
	if err := runAll(ctx, tx, d.session().reset); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}

// Rollback aborts the active transaction. It returns easymodel.ErrTxNotStarted
// when there is none.
func (d *Driver) Rollback() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx == nil {
		return easymodel.ErrTxNotStarted
	}
	tx := d.tx
	d.tx = nil
	d.log.Debug("rollback transaction")
	return tx.Rollback()
}

// validIdentifierRe matches plain and schema-qualified SQL identifiers.
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

func isValidIdentifier(s string) bool {
	return len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// ListTables returns the names of the tables of the datasource.
func (d *Driver) ListTables(ctx context.Context) ([]string, error) {
	query, args := d.adapter.ListTables(d.config)
	rows, err := d.Select(ctx, query, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// ListColumns describes the columns of table in declaration order.
func (d *Driver) ListColumns(ctx context.Context, table string) ([]Column, error) {
	if !isValidIdentifier(table) {
		return nil, fmt.Errorf("dialect/sql: invalid table name %q", table)
	}
	query, args := d.adapter.Describe(d.config, table)
	rows, err := d.Select(ctx, query, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var columns []Column
	for rows.Next() {
		c, err := d.adapter.ScanColumn(rows)
		if err != nil {
			return nil, err
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}
