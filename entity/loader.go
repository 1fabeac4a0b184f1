package entity

import (
	"context"
	"fmt"
	"reflect"

	"github.com/easyframework/easymodel"
	"github.com/easyframework/easymodel/dialect/sql"
)

// KeyFunc extracts a key from an entity.
type KeyFunc[K comparable, V any] func(V) K

// OrderByKeys reorders values to match keys. The result has one entry per
// key; keys with no value get the zero value and an ErrNotFound error.
//
//	users, _ := entity.All[User](ctx, m, q)
//	ordered, errs := entity.OrderByKeys(ids, users, func(u *User) int64 { return u.ID })
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = easymodel.ErrNotFound
		}
	}
	return result, errs
}

// OrderByKeysNoError is like OrderByKeys but drops the errors.
func OrderByKeysNoError[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) []V {
	result, _ := OrderByKeys(keys, values, keyFn)
	return result
}

// GroupByKey groups values by key, keeping their order within a group.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// OrderGroupsByKeys returns the group of every key, in the order of keys.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		result[i] = groups[key]
	}
	return result
}

// FindGroupedBy loads the entities of type T whose column holds one of keys,
// in one query, and returns them grouped in the order of keys. It serves
// batch loading of one-to-many associations, such as the posts of a list of
// users.
//
//	posts, err := entity.FindGroupedBy[Post](ctx, m, "user_id", userIDs)
//	// posts[i] holds the posts of userIDs[i]
func FindGroupedBy[T any, K comparable](ctx context.Context, m *Manager, column string, keys []K) ([][]*T, error) {
	r, err := repositoryOf[T](m, "find_grouped_by")
	if err != nil {
		return nil, err
	}
	f, ok := r.info.field(column)
	if !ok {
		return nil, easymodel.NewQueryError(r.Name(), "find_grouped_by", fmt.Errorf("entity: column %s is not mapped by %s", column, r.Name()))
	}
	if len(keys) == 0 {
		return [][]*T{}, nil
	}
	values := make([]any, len(keys))
	for i, k := range keys {
		values[i] = k
	}
	all, err := find[T](ctx, m, r, sql.NewQuery().Where(sql.Build(sql.In{Field: column, Values: values})), "find_grouped_by")
	if err != nil {
		return nil, err
	}
	groups := GroupByKey(all, fieldKey[T, K](f))
	return OrderGroupsByKeys(keys, groups), nil
}

// fieldKey returns a KeyFunc reading field f, converted to K when the field
// type differs.
func fieldKey[T any, K comparable](f field) KeyFunc[K, *T] {
	keyType := reflect.TypeFor[K]()
	return func(e *T) K {
		v := reflect.ValueOf(e).Elem().FieldByIndex(f.index)
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				var zero K
				return zero
			}
			v = v.Elem()
		}
		if v.Type() != keyType && v.Type().ConvertibleTo(keyType) {
			v = v.Convert(keyType)
		}
		k, _ := v.Interface().(K)
		return k
	}
}
