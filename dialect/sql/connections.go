package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/easyframework/easymodel"
)

// Connections hands out drivers by datasource name. Each datasource gets one
// pool, opened on first use and shared by every Driver of that datasource;
// each Driver keeps its own transaction state.
//
//	conns := sql.NewConnections(cfg)
//	defer conns.Close()
//	drv, err := conns.Driver(ctx, "default") // one per request
type Connections struct {
	config *easymodel.Config
	opts   []Option
	cache  easymodel.Cache

	mu    sync.Mutex
	pools map[string]*pool
}

type pool struct {
	db    *sql.DB
	stats *QueryStats
}

// NewConnections returns a registry over cfg. The options apply to every driver.
func NewConnections(cfg *easymodel.Config, opts ...Option) *Connections {
	var d Driver
	for _, opt := range opts {
		opt(&d)
	}
	if d.cache == nil {
		d.cache = easymodel.DefaultCache()
	}
	return &Connections{config: cfg, opts: opts, cache: d.cache, pools: make(map[string]*pool)}
}

// Driver returns a new Driver of the named datasource.
func (c *Connections) Driver(ctx context.Context, name string) (*Driver, error) {
	c.mu.Lock()
	ds, ok := c.config.Datasource(name)
	c.mu.Unlock()
	if !ok {
		return nil, easymodel.NewMissingConnectionError(name, fmt.Errorf("datasource is not configured"))
	}
	ds.Name = name
	p, err := c.pool(ctx, ds)
	if err != nil {
		return nil, err
	}
	return OpenDB(ds, p.db, append([]Option{WithStats(p.stats)}, c.opts...)...)
}

func (c *Connections) pool(ctx context.Context, ds easymodel.DatasourceConfig) (*pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pools[ds.Name]; ok {
		return p, nil
	}
	d, err := Open(ds, c.opts...)
	if err != nil {
		return nil, err
	}
	if err := d.Connect(ctx); err != nil {
		return nil, err
	}
	p := &pool{db: d.DB(), stats: d.QueryStats()}
	c.pools[ds.Name] = p
	return p, nil
}

// Stats returns the statistics of the named datasource, if it was opened.
func (c *Connections) Stats(name string) (StatsSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pools[name]
	if !ok {
		return StatsSnapshot{}, false
	}
	return p.stats.Stats(), true
}

// Reload replaces the configuration. Pools of datasources that were removed
// or changed are closed; drivers handed out before keep their closed pool
// and fail, so callers take new drivers per scope. The cached schema
// metadata of those datasources is purged when the cache is a Purger.
func (c *Connections) Reload(cfg *easymodel.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	names := append(c.config.Names(), cfg.Names()...)
	slices.Sort(names)
	for _, name := range slices.Compact(names) {
		old, _ := c.config.Datasource(name)
		ds, ok := cfg.Datasource(name)
		ds.Name, old.Name = name, name
		if ok && ds == old {
			continue
		}
		if p, ok := c.pools[name]; ok {
			err = errors.Join(err, p.db.Close())
			delete(c.pools, name)
		}
		if pc, ok := c.cache.(easymodel.Purger); ok {
			err = errors.Join(err, pc.Purge(context.Background(), easymodel.DatasourceKeyPrefix(name), easymodel.CacheNamespace))
		}
	}
	c.config = cfg
	return err
}

// Close closes every opened pool.
func (c *Connections) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	for name, p := range c.pools {
		err = errors.Join(err, p.db.Close())
		delete(c.pools, name)
	}
	return err
}
