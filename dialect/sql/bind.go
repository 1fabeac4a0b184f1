package sql

import (
	"database/sql/driver"
	"math"
	"reflect"
	"time"
)

// bindArgs normalizes bind values by their inferred type. The first matching
// type wins: integers, booleans, nil and strings get their canonical driver
// form, and anything else is passed untouched for the driver to convert.
func bindArgs(args []any) []any {
	if len(args) == 0 {
		return []any{}
	}
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = bindValue(a)
	}
	return out
}

func bindValue(v any) any {
	switch v := v.(type) {
	case nil:
		return nil
	case int64, bool, string, []byte, float64, time.Time, driver.Valuer:
		return v
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if u := rv.Uint(); u <= math.MaxInt64 {
			return int64(u)
		}
		return v
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	case reflect.Float32:
		return rv.Float()
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return bindValue(rv.Elem().Interface())
	}
	return v
}
