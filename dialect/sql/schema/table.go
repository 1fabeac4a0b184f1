// Package schema resolves and caches table metadata: the tables of a
// datasource, the columns of a table and its primary key.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/easyframework/easymodel"
	"github.com/easyframework/easymodel/dialect/sql"
)

// Describer lists tables and describes their columns. *sql.Driver implements it.
type Describer interface {
	ListTables(ctx context.Context) ([]string, error)
	ListColumns(ctx context.Context, table string) ([]sql.Column, error)
}

var _ Describer = (*sql.Driver)(nil)

// Table holds the metadata of one table. It is loaded lazily on first use,
// read through the cache and kept for the life of the Table.
type Table struct {
	name       string
	datasource string
	describer  Describer
	cache      easymodel.Cache
	log        *slog.Logger
	group      singleflight.Group

	mu      sync.RWMutex
	loaded  bool
	columns []sql.Column
	primary string
}

// Option configures a Table.
type Option func(*Table)

// WithLogger sets the logger used for cache faults.
func WithLogger(l *slog.Logger) Option {
	return func(t *Table) {
		t.log = l
	}
}

// WithCache sets the cache store. Without it, metadata is kept only in the Table.
func WithCache(c easymodel.Cache) Option {
	return func(t *Table) {
		t.cache = c
	}
}

// NewTable returns the metadata of table in the named datasource.
func NewTable(name, datasource string, d Describer, opts ...Option) *Table {
	t := &Table{name: name, datasource: datasource, describer: d}
	for _, opt := range opts {
		opt(t)
	}
	if t.cache == nil {
		t.cache = easymodel.NopCache{}
	}
	if t.log == nil {
		t.log = slog.Default()
	}
	return t
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Datasource returns the name of the datasource of the table.
func (t *Table) Datasource() string { return t.datasource }

// Schema returns the columns of the table in declaration order. On first use
// it checks that the table exists and describes it; the result is reused
// afterwards. A missing table is reported as *easymodel.MissingTableError.
func (t *Table) Schema(ctx context.Context) ([]sql.Column, error) {
	t.mu.RLock()
	if t.loaded {
		defer t.mu.RUnlock()
		return slices.Clone(t.columns), nil
	}
	t.mu.RUnlock()
	// Concurrent first calls share one load.
	_, err, _ := t.group.Do(t.name, func() (any, error) {
		t.mu.RLock()
		loaded := t.loaded
		t.mu.RUnlock()
		if loaded {
			return nil, nil
		}
		columns, err := t.load(ctx)
		if err != nil {
			return nil, err
		}
		t.mu.Lock()
		t.columns, t.loaded = columns, true
		for _, c := range columns {
			if c.Primary() {
				t.primary = c.Field
				break
			}
		}
		t.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.columns), nil
}

// PrimaryKey returns the name of the primary key column, loading the schema
// if needed. It is empty when the table has no primary key.
func (t *Table) PrimaryKey(ctx context.Context) (string, error) {
	if _, err := t.Schema(ctx); err != nil {
		return "", err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.primary, nil
}

// Columns returns the column names in declaration order.
func (t *Table) Columns(ctx context.Context) ([]string, error) {
	columns, err := t.Schema(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Field
	}
	return names, nil
}

// Column returns the description of the named column.
func (t *Table) Column(ctx context.Context, name string) (sql.Column, bool, error) {
	columns, err := t.Schema(ctx)
	if err != nil {
		return sql.Column{}, false, err
	}
	for _, c := range columns {
		if c.Field == name {
			return c, true, nil
		}
	}
	return sql.Column{}, false, nil
}

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(ctx context.Context, name string) (bool, error) {
	_, ok, err := t.Column(ctx, name)
	return ok, err
}

func (t *Table) load(ctx context.Context) ([]sql.Column, error) {
	if err := t.checkSource(ctx); err != nil {
		return nil, err
	}
	key := DescribeKey(t.datasource, t.name)
	var columns []sql.Column
	if t.readCache(ctx, key, &columns) {
		return columns, nil
	}
	columns, err := t.describer.ListColumns(ctx, t.name)
	if err != nil {
		return nil, fmt.Errorf("schema: describe %s: %w", t.name, err)
	}
	t.writeCache(ctx, key, columns)
	return columns, nil
}

// checkSource verifies that the table is listed by the datasource. A cached
// list that lacks the table is refreshed once before failing.
func (t *Table) checkSource(ctx context.Context) error {
	key := SourcesKey(t.datasource)
	var sources []string
	if t.readCache(ctx, key, &sources) && slices.Contains(sources, t.name) {
		return nil
	}
	sources, err := t.describer.ListTables(ctx)
	if err != nil {
		return fmt.Errorf("schema: list tables: %w", err)
	}
	t.writeCache(ctx, key, sources)
	if !slices.Contains(sources, t.name) {
		return easymodel.NewMissingTableError(t.name, t.datasource)
	}
	return nil
}

// readCache decodes the cached value of key into v. Faults count as misses.
func (t *Table) readCache(ctx context.Context, key string, v any) bool {
	data, err := t.cache.Read(ctx, key, easymodel.CacheNamespace)
	if err != nil {
		t.log.DebugContext(ctx, "schema cache read failed", "key", key, "error", err)
		return false
	}
	if data == nil {
		return false
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		t.log.DebugContext(ctx, "schema cache entry is corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (t *Table) writeCache(ctx context.Context, key string, v any) {
	data, err := msgpack.Marshal(v)
	if err == nil {
		err = t.cache.Write(ctx, key, easymodel.CacheNamespace, data)
	}
	if err != nil {
		t.log.DebugContext(ctx, "schema cache write failed", "key", key, "error", err)
	}
}

// SourcesKey returns the cache key of the table list of a datasource.
func SourcesKey(datasource string) string {
	return easymodel.DatasourceKeyPrefix(datasource) + "sources"
}

// DescribeKey returns the cache key of the columns of a table.
func DescribeKey(datasource, table string) string {
	return easymodel.DatasourceKeyPrefix(datasource) + "describe." + table
}
