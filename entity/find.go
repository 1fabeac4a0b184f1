package entity

import (
	"context"
	"fmt"
	"reflect"

	"github.com/easyframework/easymodel"
	"github.com/easyframework/easymodel/dialect/sql"
)

// Find returns the entity of type T with the given primary key. It returns
// a *easymodel.NotFoundError when no row matches.
func Find[T any](ctx context.Context, m *Manager, id any) (*T, error) {
	r, err := repositoryOf[T](m, "find")
	if err != nil {
		return nil, err
	}
	pk, err := r.PrimaryKey(ctx)
	if err != nil {
		return nil, easymodel.NewQueryError(r.Name(), "find", err)
	}
	if pk == "" {
		return nil, easymodel.NewQueryError(r.Name(), "find", fmt.Errorf("entity: table %s has no primary key", r.TableName()))
	}
	q := sql.NewQuery().Where(sql.Build(sql.Equals{Field: pk, Value: id})).Limit(1)
	all, err := find[T](ctx, m, r, q, "find")
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, easymodel.NewNotFoundErrorWithID(r.Name(), id)
	}
	return all[0], nil
}

// First returns the first entity of type T matched by q, which may be nil.
// It returns a *easymodel.NotFoundError when no row matches.
func First[T any](ctx context.Context, m *Manager, q *sql.Query) (*T, error) {
	r, err := repositoryOf[T](m, "first")
	if err != nil {
		return nil, err
	}
	all, err := find[T](ctx, m, r, q.Clone().Limit(1), "first")
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, easymodel.NewNotFoundError(r.Name())
	}
	return all[0], nil
}

// All returns the entities of type T matched by q, which may be nil. Queries
// without a FROM part read the entity table.
func All[T any](ctx context.Context, m *Manager, q *sql.Query) ([]*T, error) {
	r, err := repositoryOf[T](m, "all")
	if err != nil {
		return nil, err
	}
	return find[T](ctx, m, r, q, "all")
}

// FindBy returns the entities of type T matching criteria, given in any form
// sql.NewConditions accepts.
func FindBy[T any](ctx context.Context, m *Manager, criteria any) ([]*T, error) {
	q, err := criteriaQuery[T]("find_by", criteria)
	if err != nil {
		return nil, err
	}
	return All[T](ctx, m, q)
}

// FindOneBy returns the first entity of type T matching criteria.
func FindOneBy[T any](ctx context.Context, m *Manager, criteria any) (*T, error) {
	q, err := criteriaQuery[T]("find_one_by", criteria)
	if err != nil {
		return nil, err
	}
	return First[T](ctx, m, q)
}

// Count returns the number of entities of type T matched by q.
func Count[T any](ctx context.Context, m *Manager, q *sql.Query) (int64, error) {
	r, err := repositoryOf[T](m, "count")
	if err != nil {
		return 0, err
	}
	if _, err := r.table.Schema(ctx); err != nil {
		return 0, easymodel.NewQueryError(r.Name(), "count", err)
	}
	q = m.prepare(r, q)
	if err := m.evalQuery(ctx, &Read{Entity: r.Name(), Table: r.TableName(), Query: q}); err != nil {
		return 0, easymodel.NewQueryError(r.Name(), "count", err)
	}
	n, err := m.driver.Count(ctx, q)
	if err != nil {
		return 0, easymodel.NewQueryError(r.Name(), "count", err)
	}
	return n, nil
}

// CountBy returns the number of entities of type T matching criteria.
func CountBy[T any](ctx context.Context, m *Manager, criteria any) (int64, error) {
	q, err := criteriaQuery[T]("count_by", criteria)
	if err != nil {
		return 0, err
	}
	return Count[T](ctx, m, q)
}

// FindByIDs returns the entities of type T with the given primary keys, in
// the order of ids. Keys with no row yield nil entries.
func FindByIDs[T any, K comparable](ctx context.Context, m *Manager, ids []K) ([]*T, error) {
	r, err := repositoryOf[T](m, "find_by_ids")
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*T{}, nil
	}
	pk, err := r.PrimaryKey(ctx)
	if err != nil {
		return nil, easymodel.NewQueryError(r.Name(), "find_by_ids", err)
	}
	f, ok := r.info.field(pk)
	if pk == "" || !ok {
		return nil, easymodel.NewQueryError(r.Name(), "find_by_ids", fmt.Errorf("entity: table %s has no primary key mapped by %s", r.TableName(), r.Name()))
	}
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	all, err := find[T](ctx, m, r, sql.NewQuery().Where(sql.Build(sql.In{Field: pk, Values: values})), "find_by_ids")
	if err != nil {
		return nil, err
	}
	return OrderByKeysNoError(ids, all, fieldKey[T, K](f)), nil
}

func find[T any](ctx context.Context, m *Manager, r *Repository, q *sql.Query, op string) ([]*T, error) {
	if _, err := r.table.Schema(ctx); err != nil {
		return nil, easymodel.NewQueryError(r.Name(), op, err)
	}
	q = m.prepare(r, q)
	if err := m.evalQuery(ctx, &Read{Entity: r.Name(), Table: r.TableName(), Query: q}); err != nil {
		return nil, easymodel.NewQueryError(r.Name(), op, err)
	}
	records, err := m.driver.Read(ctx, q)
	if err != nil {
		return nil, easymodel.NewQueryError(r.Name(), op, err)
	}
	h := newHydrator(r.info)
	all := make([]*T, 0, len(records))
	for _, rec := range records {
		e := new(T)
		if err := h.hydrate(reflect.ValueOf(e).Elem(), rec); err != nil {
			return nil, easymodel.NewQueryError(r.Name(), op, err)
		}
		if hook, ok := any(e).(AfterFinder); ok {
			hook.AfterFind()
		}
		all = append(all, e)
	}
	return all, nil
}

// prepare returns a copy of q, reading the entity table when q names no
// table. Policies narrow the copy.
func (m *Manager) prepare(r *Repository, q *sql.Query) *sql.Query {
	q = q.Clone()
	if q.Table() == "" {
		q.From(r.TableName(), "")
	}
	return q
}

func repositoryOf[T any](m *Manager, op string) (*Repository, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Struct {
		return nil, easymodel.NewInvalidArgumentError(op, new(T))
	}
	return m.repository(t), nil
}

func criteriaQuery[T any](op string, criteria any) (*sql.Query, error) {
	c, err := sql.NewConditions(criteria)
	if err != nil {
		name := reflect.TypeFor[T]().Name()
		return nil, easymodel.NewQueryError(name, op, err)
	}
	return sql.NewQuery().Where(c), nil
}
