package entity

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/easyframework/easymodel"
	"github.com/easyframework/easymodel/dialect/sql"
	"github.com/easyframework/easymodel/dialect/sql/schema"
)

// Manager finds, saves and deletes entities through one Driver. A Manager
// belongs to one logical scope, such as a request, like the Driver it wraps.
type Manager struct {
	driver *sql.Driver
	cache  easymodel.Cache
	policy Policy
	log    *slog.Logger
	scope  string

	mu    sync.RWMutex
	repos map[reflect.Type]*Repository
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The manager adds a scope attribute to it.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// WithCache sets the store of table metadata. Default is the cache of the
// driver.
func WithCache(c easymodel.Cache) Option {
	return func(m *Manager) {
		m.cache = c
	}
}

// WithPolicy sets the policy evaluated before every finder and write.
func WithPolicy(p Policy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// NewManager returns a Manager over drv.
func NewManager(drv *sql.Driver, opts ...Option) *Manager {
	m := &Manager{
		driver: drv,
		cache:  drv.Cache(),
		log:    slog.Default(),
		scope:  uuid.NewString(),
		repos:  make(map[reflect.Type]*Repository),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("scope", m.scope, "datasource", drv.Config().Name)
	return m
}

// Driver returns the driver of the manager.
func (m *Manager) Driver() *sql.Driver { return m.driver }

// Scope returns the identifier of the manager scope, as logged.
func (m *Manager) Scope() string { return m.scope }

// Repository returns the repository of an entity, given as a struct value,
// a pointer to one or a reflect.Type of either.
func (m *Manager) Repository(e any) (*Repository, error) {
	t, ok := e.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(e)
	}
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, easymodel.NewInvalidArgumentError("repository", e)
	}
	return m.repository(t), nil
}

func (m *Manager) repository(t reflect.Type) *Repository {
	m.mu.RLock()
	r, ok := m.repos[t]
	m.mu.RUnlock()
	if ok {
		return r
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.repos[t]; ok {
		return r
	}
	name := defaultTableName(t)
	zero := reflect.New(t).Interface()
	if mapper, ok := zero.(Mapper); ok {
		name = mapper.TableName()
	}
	cfg := m.driver.Config()
	r = &Repository{
		typ:   t,
		info:  typeInfoOf(t),
		table: schema.NewTable(cfg.Prefix+name, cfg.Name, m.driver, schema.WithCache(m.cache), schema.WithLogger(m.log)),
	}
	r.relations, _ = zero.(Relations)
	m.repos[t] = r
	return r
}

// SaveOption configures a call to Save.
type SaveOption func(*saveOptions)

type saveOptions struct {
	onSuccess func(any)
	onError   func(error)
}

// OnSuccess registers a function called with the entity after it is saved.
func OnSuccess(fn func(e any)) SaveOption {
	return func(o *saveOptions) {
		o.onSuccess = fn
	}
}

// OnError registers a function called with the error of a failed save.
func OnError(fn func(err error)) SaveOption {
	return func(o *saveOptions) {
		o.onError = fn
	}
}

// Save inserts or updates e, a pointer to an entity. Entities with a zero
// primary key, or whose table has none, are inserted and receive the
// generated key, or the one of their KeyGenerator. Others are updated by
// primary key, and Save returns false when no stored row matched. Only the
// fields mapped to columns of the table are written.
func (m *Manager) Save(ctx context.Context, e any, opts ...SaveOption) (bool, error) {
	v, err := entityValue("save", e)
	if err != nil {
		return false, err
	}
	var o saveOptions
	for _, opt := range opts {
		opt(&o)
	}
	if h, ok := e.(BeforeSaver); ok {
		h.BeforeSave()
	}
	ok, err := m.save(ctx, v, e)
	if err != nil {
		if o.onError != nil {
			o.onError(err)
		}
		return false, err
	}
	if ok && o.onSuccess != nil {
		o.onSuccess(e)
	}
	return ok, nil
}

func (m *Manager) save(ctx context.Context, v reflect.Value, e any) (bool, error) {
	r := m.repository(v.Type())
	columns, err := r.table.Columns(ctx)
	if err != nil {
		return false, easymodel.NewMutationError(r.Name(), "save", err)
	}
	pk, key, err := r.primary(ctx, v)
	if err != nil {
		return false, easymodel.NewMutationError(r.Name(), "save", err)
	}
	data := r.info.resolve(v, columns)
	if !key.IsValid() || key.IsZero() {
		return true, m.create(ctx, r, data, pk, key, e)
	}
	id := key.Interface()
	mu := &Mutation{
		Op:     OpUpdate,
		Entity: r.Name(),
		Table:  r.TableName(),
		Value:  e,
		Data:   without(data, pk),
		Query:  sql.NewQuery().Where(sql.Build(sql.Equals{Field: pk, Value: id})),
	}
	if err := m.evalMutation(ctx, mu); err != nil {
		return false, easymodel.NewMutationError(r.Name(), "update", err)
	}
	if len(mu.Data) == 0 {
		return true, nil
	}
	n, err := m.driver.Update(ctx, r.TableName(), mu.Data, rowQuery(mu, pk, id))
	if err != nil {
		return false, easymodel.NewMutationError(r.Name(), "update", err)
	}
	m.log.DebugContext(ctx, "entity updated", "entity", r.Name(), "id", id, "affected", n)
	return n > 0, nil
}

func (m *Manager) create(ctx context.Context, r *Repository, data sql.Map, pk string, key reflect.Value, e any) error {
	generated := false
	if key.IsValid() {
		data = without(data, pk)
		if g, ok := e.(KeyGenerator); ok {
			if err := assign(key, g.NewKey()); err != nil {
				return easymodel.NewMutationError(r.Name(), "create", fmt.Errorf("entity: set new key: %w", err))
			}
			data = append(sql.Map{{Key: pk, Value: key.Interface()}}, data...)
			generated = true
		}
	}
	mu := &Mutation{Op: OpCreate, Entity: r.Name(), Table: r.TableName(), Value: e, Data: data}
	if err := m.evalMutation(ctx, mu); err != nil {
		return easymodel.NewMutationError(r.Name(), "create", err)
	}
	id, err := m.driver.Create(ctx, r.TableName(), mu.Data, pk)
	if err != nil {
		return easymodel.NewMutationError(r.Name(), "create", err)
	}
	if generated {
		id = key.Interface()
	} else if key.IsValid() && id != nil {
		if err := assign(key, id); err != nil {
			return easymodel.NewMutationError(r.Name(), "create", fmt.Errorf("entity: set generated key: %w", err))
		}
	}
	m.log.DebugContext(ctx, "entity created", "entity", r.Name(), "id", id)
	return nil
}

// Delete removes the row of e, a pointer to an entity, by primary key. It
// returns false when no row matched.
func (m *Manager) Delete(ctx context.Context, e any) (bool, error) {
	v, err := entityValue("delete", e)
	if err != nil {
		return false, err
	}
	if h, ok := e.(BeforeDeleter); ok {
		h.BeforeDelete()
	}
	r := m.repository(v.Type())
	pk, key, err := r.primary(ctx, v)
	if err != nil {
		return false, easymodel.NewMutationError(r.Name(), "delete", err)
	}
	if !key.IsValid() {
		return false, easymodel.NewMutationError(r.Name(), "delete", fmt.Errorf("entity: table %s has no primary key mapped by %s", r.TableName(), r.Name()))
	}
	if key.IsZero() {
		return false, nil
	}
	id := key.Interface()
	mu := &Mutation{
		Op:     OpDelete,
		Entity: r.Name(),
		Table:  r.TableName(),
		Value:  e,
		Query:  sql.NewQuery().Where(sql.Build(sql.Equals{Field: pk, Value: id})),
	}
	if err := m.evalMutation(ctx, mu); err != nil {
		return false, easymodel.NewMutationError(r.Name(), "delete", err)
	}
	n, err := m.driver.Delete(ctx, r.TableName(), rowQuery(mu, pk, id))
	if err != nil {
		return false, easymodel.NewMutationError(r.Name(), "delete", err)
	}
	m.log.DebugContext(ctx, "entity deleted", "entity", r.Name(), "id", id, "affected", n)
	return n > 0, nil
}

// rowQuery returns the query of mu limited to one row. A policy dropping the
// query leaves the row selected by primary key only.
func rowQuery(mu *Mutation, pk string, id any) *sql.Query {
	q := mu.Query
	if q == nil {
		q = sql.NewQuery().Where(sql.Build(sql.Equals{Field: pk, Value: id}))
	}
	return q.Limit(1)
}

// BeginTransaction starts a transaction on the driver.
func (m *Manager) BeginTransaction(ctx context.Context) error {
	return m.driver.BeginTransaction(ctx)
}

// Commit commits the transaction of the driver.
func (m *Manager) Commit() error {
	return m.driver.Commit()
}

// Rollback aborts the transaction of the driver.
func (m *Manager) Rollback() error {
	return m.driver.Rollback()
}

func (m *Manager) evalQuery(ctx context.Context, r *Read) error {
	if m.policy == nil {
		return nil
	}
	return m.policy.EvalQuery(ctx, r)
}

func (m *Manager) evalMutation(ctx context.Context, mu *Mutation) error {
	if m.policy == nil {
		return nil
	}
	return m.policy.EvalMutation(ctx, mu)
}

// entityValue returns the struct e points to.
func entityValue(op string, e any) (reflect.Value, error) {
	v := reflect.ValueOf(e)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, easymodel.NewInvalidArgumentError(op, e)
	}
	return v.Elem(), nil
}

// without returns data with the pairs of column removed.
func without(data sql.Map, column string) sql.Map {
	out := make(sql.Map, 0, len(data))
	for _, p := range data {
		if p.Key != column {
			out = append(out, p)
		}
	}
	return out
}
