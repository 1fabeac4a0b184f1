package sql

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/easyframework/easymodel"
)

// Pair is one entry of an ordered Map.
type Pair struct {
	Key   string
	Value any
}

// Map is an ordered field to value mapping. Conditions are rendered in the
// order of its pairs, so bind values follow that order too.
//
//	sql.Map{
//	    {"status", "active"},
//	    {"age", sql.Map{{">", 18}}},
//	    {"OR", sql.Map{{"role", "admin"}, {"role", "owner"}}},
//	}
type Map []Pair

// Get returns the value of the first pair with the given key.
func (m Map) Get(key string) (any, bool) {
	for _, p := range m {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys of the map in order.
func (m Map) Keys() []string {
	keys := make([]string, len(m))
	for i, p := range m {
		keys[i] = p.Key
	}
	return keys
}

// Node is a parsed predicate. The set of nodes is closed: Equals, Compare, In,
// IsNull, Between, And, Or and Not.
type Node interface {
	render(b *condBuilder, nested bool)
}

type (
	// Equals renders "field = ?", or "field IS NULL" for a nil value.
	Equals struct {
		Field string
		Value any
	}
	// Compare renders "field <op> ?".
	Compare struct {
		Field string
		Op    string
		Value any
	}
	// In renders "field IN (?, ?, ...)" with one placeholder per value.
	In struct {
		Field  string
		Values []any
		Not    bool
	}
	// IsNull renders "field IS NULL" or "field IS NOT NULL".
	IsNull struct {
		Field string
		Not   bool
	}
	// Between renders "field BETWEEN ? AND ?".
	Between struct {
		Field    string
		From, To any
	}
	// And joins its children with AND.
	And []Node
	// Or joins its children with OR.
	Or []Node
	// Not negates its child.
	Not struct{ Node Node }
)

// condBuilder accumulates the predicate text and its bind values.
type condBuilder struct {
	strings.Builder
	args []any
}

func (b *condBuilder) arg(v any) {
	b.WriteByte('?')
	b.args = append(b.args, v)
}

func (n Equals) render(b *condBuilder, _ bool) {
	if n.Value == nil {
		IsNull{Field: n.Field}.render(b, false)
		return
	}
	b.WriteString(n.Field)
	b.WriteString(" = ")
	b.arg(n.Value)
}

func (n Compare) render(b *condBuilder, _ bool) {
	b.WriteString(n.Field)
	b.WriteByte(' ')
	b.WriteString(n.Op)
	b.WriteByte(' ')
	b.arg(n.Value)
}

func (n In) render(b *condBuilder, _ bool) {
	if len(n.Values) == 0 {
		// An empty list matches nothing, and its negation matches everything.
		if n.Not {
			b.WriteString("1 = 1")
		} else {
			b.WriteString("1 = 0")
		}
		return
	}
	b.WriteString(n.Field)
	if n.Not {
		b.WriteString(" NOT IN (")
	} else {
		b.WriteString(" IN (")
	}
	for i, v := range n.Values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.arg(v)
	}
	b.WriteByte(')')
}

func (n IsNull) render(b *condBuilder, _ bool) {
	b.WriteString(n.Field)
	if n.Not {
		b.WriteString(" IS NOT NULL")
	} else {
		b.WriteString(" IS NULL")
	}
}

func (n Between) render(b *condBuilder, _ bool) {
	b.WriteString(n.Field)
	b.WriteString(" BETWEEN ")
	b.arg(n.From)
	b.WriteString(" AND ")
	b.arg(n.To)
}

func (n And) render(b *condBuilder, nested bool) { renderGroup(b, "AND", n, nested) }

func (n Or) render(b *condBuilder, nested bool) { renderGroup(b, "OR", n, nested) }

func (n Not) render(b *condBuilder, _ bool) {
	if n.Node == nil || isEmpty(n.Node) {
		return
	}
	b.WriteString("NOT (")
	n.Node.render(b, false)
	b.WriteByte(')')
}

func renderGroup(b *condBuilder, op string, nodes []Node, nested bool) {
	children := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n != nil && !isEmpty(n) {
			children = append(children, n)
		}
	}
	wrap := nested && len(children) > 1
	if wrap {
		b.WriteByte('(')
	}
	for i, n := range children {
		if i > 0 {
			b.WriteByte(' ')
			b.WriteString(op)
			b.WriteByte(' ')
		}
		// A group of the same operator needs no parentheses.
		_, and := n.(And)
		_, or := n.(Or)
		n.render(b, !(op == "AND" && and || op == "OR" && or))
	}
	if wrap {
		b.WriteByte(')')
	}
}

// isEmpty reports whether a node renders nothing.
func isEmpty(n Node) bool {
	switch n := n.(type) {
	case And:
		for _, c := range n {
			if c != nil && !isEmpty(c) {
				return false
			}
		}
		return true
	case Or:
		for _, c := range n {
			if c != nil && !isEmpty(c) {
				return false
			}
		}
		return true
	case Not:
		return n.Node == nil || isEmpty(n.Node)
	}
	return false
}

// Conditions is a rendered WHERE or HAVING predicate with its bind values.
// The number of placeholders in Keys always equals len(Values).
type Conditions struct {
	keys   string
	values []any
	root   Node
	// op is the operator joining the top-level terms of keys: "" for a
	// single term, opRaw when unknown.
	op string
}

// opRaw marks hand-written predicates, which are parenthesized whenever they
// are joined with another predicate.
const opRaw = "RAW"

// NewConditions parses input into a predicate. The input is a Map, a
// map[string]any (parsed in sorted key order), a Node, or nil.
//
// A scalar value is an equality, a Map value holds operator to value pairs,
// a slice value is an IN list and a nil value is an IS NULL check. Keys named
// AND, OR or NOT hold nested groups. A key may also carry its operator after
// the field name, as in {"age >", 18}.
func NewConditions(input any) (*Conditions, error) {
	root, err := Parse(input)
	if err != nil {
		return nil, err
	}
	return Build(root), nil
}

// MustConditions is like NewConditions but panics if the input is malformed.
func MustConditions(input any) *Conditions {
	c, err := NewConditions(input)
	if err != nil {
		panic(err)
	}
	return c
}

// Build renders a node tree into Conditions.
func Build(root Node) *Conditions {
	c := &Conditions{root: root}
	if root == nil {
		return c
	}
	var b condBuilder
	root.render(&b, false)
	c.keys, c.values, c.op = b.String(), b.args, topOp(root)
	return c
}

// topOp returns the operator left unparenthesized at the top of a rendered node.
func topOp(n Node) string {
	switch n := n.(type) {
	case And:
		return groupOp("AND", n)
	case Or:
		return groupOp("OR", n)
	}
	return ""
}

func groupOp(op string, nodes []Node) string {
	live := 0
	var last Node
	for _, n := range nodes {
		if n != nil && !isEmpty(n) {
			live, last = live+1, n
		}
	}
	switch {
	case live > 1:
		return op
	case live == 1 && topOp(last) == op:
		return op
	}
	// A lone group of the other operator renders in parentheses.
	return ""
}

// rawOp returns the operator of a hand-written predicate.
func rawOp(keys string) string {
	if keys == "" || enclosed(keys) {
		return ""
	}
	return opRaw
}

// Raw returns Conditions for a hand-written predicate. The caller is
// responsible for matching the placeholders with args.
func Raw(expr string, args ...any) *Conditions {
	return &Conditions{keys: expr, values: args, op: rawOp(expr)}
}

// Keys returns the predicate text.
func (c *Conditions) Keys() string {
	if c == nil {
		return ""
	}
	return c.keys
}

// Values returns the bind values in placeholder order.
func (c *Conditions) Values() []any {
	if c == nil {
		return nil
	}
	return c.values
}

// Empty reports whether the predicate renders nothing.
func (c *Conditions) Empty() bool {
	return c == nil || c.keys == ""
}

// SetKeys replaces the predicate text.
func (c *Conditions) SetKeys(keys string) *Conditions {
	c.keys, c.op = keys, rawOp(keys)
	c.root = nil
	return c
}

// AddValues appends bind values.
func (c *Conditions) AddValues(values ...any) *Conditions {
	c.values = append(c.values, values...)
	return c
}

// Merge combines c and other with op ("AND" or "OR") into new Conditions.
// Either side may be empty.
func (c *Conditions) Merge(op string, other *Conditions) *Conditions {
	switch {
	case other.Empty():
		return c.clone()
	case c.Empty():
		return other.clone()
	}
	op = strings.ToUpper(op)
	m := &Conditions{
		keys:   "(" + c.keys + ") " + op + " (" + other.keys + ")",
		values: append(append([]any{}, c.values...), other.values...),
		op:     op,
	}
	if c.root != nil && other.root != nil {
		if op == "OR" {
			m.root = Or{c.root, other.root}
		} else {
			m.root = And{c.root, other.root}
		}
	}
	return m
}

func (c *Conditions) clone() *Conditions {
	if c == nil {
		return &Conditions{}
	}
	return &Conditions{keys: c.keys, values: append([]any(nil), c.values...), root: c.root, op: c.op}
}

// Lookup returns the value compared for equality with field.
func (c *Conditions) Lookup(field string) (any, error) {
	if c != nil && c.root != nil {
		if v, ok := lookup(c.root, field); ok {
			return v, nil
		}
	}
	return nil, easymodel.NewKeyNotFoundError(field)
}

func lookup(n Node, field string) (any, bool) {
	switch n := n.(type) {
	case Equals:
		if n.Field == field {
			return n.Value, true
		}
	case Compare:
		if n.Field == field && n.Op == "=" {
			return n.Value, true
		}
	case And:
		for _, c := range n {
			if v, ok := lookup(c, field); ok {
				return v, true
			}
		}
	case Or:
		for _, c := range n {
			if v, ok := lookup(c, field); ok {
				return v, true
			}
		}
	}
	return nil, false
}

// operators maps accepted operator spellings to their SQL form.
var operators = map[string]string{
	"=":        "=",
	"==":       "=",
	"!=":       "<>",
	"<>":       "<>",
	">":        ">",
	"<":        "<",
	">=":       ">=",
	"<=":       "<=",
	"EQ":       "=",
	"NEQ":      "<>",
	"GT":       ">",
	"LT":       "<",
	"GTE":      ">=",
	"LTE":      "<=",
	"LIKE":     "LIKE",
	"NOT LIKE": "NOT LIKE",
	"IN":       "IN",
	"NOT IN":   "NOT IN",
	"BETWEEN":  "BETWEEN",
}

// Parse converts a conditions input into a node tree.
func Parse(input any) (Node, error) {
	switch in := input.(type) {
	case nil:
		return nil, nil
	case Node:
		return in, nil
	case *Conditions:
		if in == nil {
			return nil, nil
		}
		return in.root, nil
	}
	m, ok := toMap(input)
	if !ok {
		return nil, fmt.Errorf("dialect/sql: invalid conditions type %T", input)
	}
	return parseGroup(m, "AND")
}

func parseGroup(m Map, op string) (Node, error) {
	nodes := make([]Node, 0, len(m))
	for _, p := range m {
		n, err := parsePair(p)
		if err != nil {
			return nil, err
		}
		if n != nil {
			nodes = append(nodes, n)
		}
	}
	switch {
	case op == "OR":
		return Or(nodes), nil
	case op == "NOT":
		return Not{Node: And(nodes)}, nil
	case len(nodes) == 1:
		return nodes[0], nil
	default:
		return And(nodes), nil
	}
}

func parsePair(p Pair) (Node, error) {
	if op := strings.ToUpper(strings.TrimSpace(p.Key)); op == "AND" || op == "OR" || op == "NOT" {
		m, ok := toMap(p.Value)
		if !ok {
			return nil, fmt.Errorf("dialect/sql: %s group expects a map, got %T", op, p.Value)
		}
		return parseGroup(m, op)
	}
	field, op := splitOperator(p.Key)
	if field == "" {
		return nil, fmt.Errorf("dialect/sql: empty field name in conditions")
	}
	if op != "" {
		return compare(field, op, p.Value)
	}
	if m, ok := toMap(p.Value); ok {
		nodes := make(And, 0, len(m))
		for _, o := range m {
			n, err := compare(field, o.Key, o.Value)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
		if len(nodes) == 1 {
			return nodes[0], nil
		}
		return nodes, nil
	}
	if vs, ok := toSlice(p.Value); ok {
		return In{Field: field, Values: vs}, nil
	}
	return Equals{Field: field, Value: p.Value}, nil
}

// splitOperator splits keys like "age >=" or "name NOT LIKE" into field and operator.
func splitOperator(key string) (string, string) {
	key = strings.TrimSpace(key)
	i := strings.IndexByte(key, ' ')
	if i < 0 {
		return key, ""
	}
	if _, ok := operators[strings.ToUpper(strings.TrimSpace(key[i+1:]))]; ok {
		return key[:i], strings.TrimSpace(key[i+1:])
	}
	return key, ""
}

func compare(field, op string, v any) (Node, error) {
	sqlOp, ok := operators[strings.ToUpper(strings.TrimSpace(op))]
	if !ok {
		return nil, fmt.Errorf("dialect/sql: unknown operator %q for field %q", op, field)
	}
	switch sqlOp {
	case "IN", "NOT IN":
		vs, ok := toSlice(v)
		if !ok {
			vs = []any{v}
		}
		return In{Field: field, Values: vs, Not: sqlOp == "NOT IN"}, nil
	case "BETWEEN":
		vs, ok := toSlice(v)
		if !ok || len(vs) != 2 {
			return nil, fmt.Errorf("dialect/sql: BETWEEN on %q expects 2 values", field)
		}
		return Between{Field: field, From: vs[0], To: vs[1]}, nil
	case "=":
		return Equals{Field: field, Value: v}, nil
	case "<>":
		if v == nil {
			return IsNull{Field: field, Not: true}, nil
		}
	}
	return Compare{Field: field, Op: sqlOp, Value: v}, nil
}

// toMap converts the accepted map shapes into an ordered Map.
func toMap(v any) (Map, bool) {
	switch m := v.(type) {
	case Map:
		return m, true
	case []Pair:
		return Map(m), true
	case map[string]any:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Map, len(keys))
		for i, k := range keys {
			out[i] = Pair{Key: k, Value: m[k]}
		}
		return out, true
	}
	return nil, false
}

// toSlice converts any slice or array except []byte into []any.
func toSlice(v any) ([]any, bool) {
	switch vs := v.(type) {
	case []any:
		return vs, true
	case []byte, nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Field is a column name with typed predicate constructors.
//
//	sql.Build(sql.And{sql.Field("age").GT(18), sql.Field("status").EQ("active")})
type Field string

// EQ returns a predicate that checks if the field equals the given value.
func (f Field) EQ(v any) Node { return Equals{Field: string(f), Value: v} }

// NEQ returns a predicate that checks if the field does not equal the given value.
func (f Field) NEQ(v any) Node {
	if v == nil {
		return IsNull{Field: string(f), Not: true}
	}
	return Compare{Field: string(f), Op: "<>", Value: v}
}

// GT returns a predicate that checks if the field is greater than the given value.
func (f Field) GT(v any) Node { return Compare{Field: string(f), Op: ">", Value: v} }

// GTE returns a predicate that checks if the field is greater than or equal to the given value.
func (f Field) GTE(v any) Node { return Compare{Field: string(f), Op: ">=", Value: v} }

// LT returns a predicate that checks if the field is less than the given value.
func (f Field) LT(v any) Node { return Compare{Field: string(f), Op: "<", Value: v} }

// LTE returns a predicate that checks if the field is less than or equal to the given value.
func (f Field) LTE(v any) Node { return Compare{Field: string(f), Op: "<=", Value: v} }

// Like returns a predicate that matches the field against a LIKE pattern.
func (f Field) Like(pattern string) Node { return Compare{Field: string(f), Op: "LIKE", Value: pattern} }

// In returns a predicate that checks if the field value is in the given list.
func (f Field) In(vs ...any) Node { return In{Field: string(f), Values: vs} }

// NotIn returns a predicate that checks if the field value is not in the given list.
func (f Field) NotIn(vs ...any) Node { return In{Field: string(f), Values: vs, Not: true} }

// IsNull returns a predicate that checks if the field is NULL.
func (f Field) IsNull() Node { return IsNull{Field: string(f)} }

// NotNull returns a predicate that checks if the field is not NULL.
func (f Field) NotNull() Node { return IsNull{Field: string(f), Not: true} }
