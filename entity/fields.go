package entity

import (
	stdsql "database/sql"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"

	"github.com/easyframework/easymodel/dialect/sql"
)

// field maps one struct field to a column.
type field struct {
	name   string
	column string
	index  []int
}

// typeInfo is the column mapping of an entity type.
type typeInfo struct {
	name   string
	fields []field
	// columns indexes fields by case-folded column name.
	columns map[string]int
}

// typeInfos caches *typeInfo by reflect.Type.
var typeInfos sync.Map

// rules converts Go names to column and table names.
var rules = func() *inflect.Ruleset {
	r := inflect.NewDefaultRuleset()
	// Longer acronyms first, as they are replaced in order.
	for _, w := range []string{"UUID", "HTTP", "JSON", "URL", "API", "SQL", "ID", "IP"} {
		r.AddAcronym(w)
	}
	return r
}()

var (
	scannerType = reflect.TypeFor[stdsql.Scanner]()
	timeType    = reflect.TypeFor[time.Time]()
)

// typeInfoOf returns the column mapping of the struct type t, resolving it
// on first use.
func typeInfoOf(t reflect.Type) *typeInfo {
	if v, ok := typeInfos.Load(t); ok {
		return v.(*typeInfo)
	}
	info := &typeInfo{name: t.Name(), columns: make(map[string]int)}
	info.collect(t, nil)
	v, _ := typeInfos.LoadOrStore(t, info)
	return v.(*typeInfo)
}

// collect adds the mapped fields of t. Exported embedded structs without a
// tag are flattened; a column already mapped by an earlier field is kept.
func (info *typeInfo) collect(t reflect.Type, index []int) {
	for i := range t.NumField() {
		sf := t.Field(i)
		tag, tagged := sf.Tag.Lookup("db")
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" || !sf.IsExported() {
			continue
		}
		idx := append(slices.Clone(index), i)
		if sf.Anonymous && !tagged && sf.Type.Kind() == reflect.Struct && sf.Type != timeType {
			info.collect(sf.Type, idx)
			continue
		}
		if name == "" {
			name = rules.Underscore(sf.Name)
		}
		key := foldColumn(name)
		if _, ok := info.columns[key]; ok {
			continue
		}
		info.columns[key] = len(info.fields)
		info.fields = append(info.fields, field{name: sf.Name, column: name, index: idx})
	}
}

// field returns the field mapped to column, matched case-insensitively.
func (info *typeInfo) field(column string) (field, bool) {
	i, ok := info.columns[foldColumn(column)]
	if !ok {
		return field{}, false
	}
	return info.fields[i], true
}

// foldColumn returns the case-folded form of a column name. A Caser holds
// state, so one is created per call.
func foldColumn(s string) string {
	return cases.Fold().String(s)
}

// resolve returns the values of the fields of v that map to one of columns,
// keyed by the column name as the table reports it, in column order.
func (info *typeInfo) resolve(v reflect.Value, columns []string) sql.Map {
	data := make(sql.Map, 0, len(columns))
	for _, c := range columns {
		f, ok := info.field(c)
		if !ok {
			continue
		}
		fv := v.FieldByIndex(f.index)
		if fv.Kind() == reflect.Pointer && fv.IsNil() {
			data = append(data, sql.Pair{Key: c, Value: nil})
			continue
		}
		data = append(data, sql.Pair{Key: c, Value: fv.Interface()})
	}
	return data
}

// hydrator assigns records of one result set to entities of one type. The
// column to field mapping is resolved once per column name.
type hydrator struct {
	info    *typeInfo
	mapping map[string]int
}

func newHydrator(info *typeInfo) *hydrator {
	return &hydrator{info: info, mapping: make(map[string]int)}
}

// hydrate assigns the values of r to the mapped fields of v. Columns with no
// field are ignored.
func (h *hydrator) hydrate(v reflect.Value, r sql.Record) error {
	for column, value := range r {
		i, ok := h.mapping[column]
		if !ok {
			i = -1
			if j, found := h.info.columns[foldColumn(column)]; found {
				i = j
			}
			h.mapping[column] = i
		}
		if i < 0 {
			continue
		}
		f := h.info.fields[i]
		if err := assign(v.FieldByIndex(f.index), value); err != nil {
			return fmt.Errorf("entity: column %q into %s.%s: %w", column, h.info.name, f.name, err)
		}
	}
	return nil
}

// assign stores the database value src in dst, converting between the types
// drivers report and the field type.
func assign(dst reflect.Value, src any) error {
	if src == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if reflect.PointerTo(dst.Type()).Implements(scannerType) {
		return dst.Addr().Interface().(stdsql.Scanner).Scan(src)
	}
	if dst.Kind() == reflect.Pointer {
		p := reflect.New(dst.Type().Elem())
		if err := assign(p.Elem(), src); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}
	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}
	switch dst.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := asInt(src)
		if err != nil {
			return err
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("value %d overflows %s", n, dst.Type())
		}
		dst.SetInt(n)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := asInt(src)
		if err != nil {
			return err
		}
		if n < 0 || dst.OverflowUint(uint64(n)) {
			return fmt.Errorf("value %d overflows %s", n, dst.Type())
		}
		dst.SetUint(uint64(n))
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := asFloat(src)
		if err != nil {
			return err
		}
		dst.SetFloat(f)
		return nil
	case reflect.Bool:
		b, err := asBool(src)
		if err != nil {
			return err
		}
		dst.SetBool(b)
		return nil
	case reflect.String:
		switch s := src.(type) {
		case []byte:
			dst.SetString(string(s))
		case time.Time:
			dst.SetString(s.Format(time.RFC3339Nano))
		default:
			dst.SetString(fmt.Sprint(s))
		}
		return nil
	case reflect.Slice:
		if s, ok := src.(string); ok && dst.Type().Elem().Kind() == reflect.Uint8 {
			dst.SetBytes([]byte(s))
			return nil
		}
	case reflect.Struct:
		if dst.Type() == timeType {
			if s, ok := src.(string); ok {
				t, err := parseTime(s)
				if err != nil {
					return err
				}
				dst.Set(reflect.ValueOf(t))
				return nil
			}
		}
	}
	if sv.Type().ConvertibleTo(dst.Type()) && sv.Kind() == dst.Kind() {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", src, dst.Type())
}

func asInt(src any) (int64, error) {
	switch v := src.(type) {
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	rv := reflect.ValueOf(src)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return int64(rv.Float()), nil
	}
	return 0, fmt.Errorf("cannot convert %T to an integer", src)
}

func asFloat(src any) (float64, error) {
	switch v := src.(type) {
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	}
	n, err := asInt(src)
	return float64(n), err
}

func asBool(src any) (bool, error) {
	switch v := src.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	case []byte:
		return strconv.ParseBool(strings.TrimSpace(string(v)))
	}
	n, err := asInt(src)
	return n != 0, err
}

// timeLayouts are the textual forms drivers report timestamps in.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}

// defaultTableName returns the table name of an entity type without a Mapper.
func defaultTableName(t reflect.Type) string {
	return rules.Pluralize(rules.Underscore(t.Name()))
}
