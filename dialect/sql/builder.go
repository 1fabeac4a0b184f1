package sql

import (
	"strconv"
	"strings"
)

// Type is the kind of statement a Query renders.
type Type int

// Statement types.
const (
	TypeSelect Type = iota
	TypeInsert
	TypeUpdate
	TypeDelete
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case TypeInsert:
		return "INSERT"
	case TypeUpdate:
		return "UPDATE"
	case TypeDelete:
		return "DELETE"
	default:
		return "SELECT"
	}
}

// State tells whether the cached SQL of a Query is current.
type State int

// Query states.
const (
	StateDirty State = iota
	StateClean
)

// Part names a section of a statement.
type Part string

// Statement parts.
const (
	PartDistinct Part = "distinct"
	PartSelect   Part = "select"
	PartFrom     Part = "from"
	PartJoin     Part = "join"
	PartSet      Part = "set"
	PartValues   Part = "values"
	PartWhere    Part = "where"
	PartGroup    Part = "group"
	PartHaving   Part = "having"
	PartOrder    Part = "order"
	PartLimit    Part = "limit"
)

// Order directions.
const (
	OrderAsc  = "ASC"
	OrderDesc = "DESC"
)

type (
	// from is a table reference with an optional alias.
	from struct {
		table, alias string
	}
	// join is a join clause attached to the from alias it follows.
	join struct {
		kind, table, alias, on string
	}
	// composite is a where/having predicate built from and/or calls.
	composite struct {
		op    string
		parts []term
		args  []any
	}
	// term is one operand of a composite and the operator at its top level.
	term struct {
		expr, op string
	}
	// limit holds the row count and offset. Zero count means no limit.
	limit struct {
		count, offset int
	}
)

// parts holds the accumulated content of every statement part.
type parts struct {
	distinct bool
	selects  []string
	from     []from
	joins    []join
	set      Map
	values   Map
	where    *composite
	group    []string
	having   *composite
	order    []string
	limit    limit
}

// Query is a mutable SQL statement builder. Every mutator marks the query
// dirty; SQL re-renders a dirty query and caches the text until the next
// mutation.
//
//	q := sql.NewQuery().
//	    Select("id", "name").
//	    From("users", "").
//	    Where(sql.MustConditions(sql.Map{{"status", "active"}})).
//	    Order("name", sql.OrderAsc).
//	    Limit(10)
//	query, args := q.SQL(), q.Args()
type Query struct {
	typ   Type
	state State
	parts parts
	sql   string
	args  []any
}

// NewQuery returns an empty SELECT query.
func NewQuery() *Query {
	return &Query{typ: TypeSelect, state: StateDirty}
}

// Select returns a new SELECT query of the given columns.
func Select(columns ...string) *Query {
	return NewQuery().Select(columns...)
}

// Insert returns a new INSERT query into table.
func Insert(table string) *Query {
	return NewQuery().Insert(table)
}

// Update returns a new UPDATE query of table.
func Update(table string) *Query {
	return NewQuery().Update(table)
}

// Delete returns a new DELETE query from table.
func Delete(table string) *Query {
	return NewQuery().Delete(table)
}

// Type returns the statement type.
func (q *Query) Type() Type { return q.typ }

// State returns the cache state of the rendered SQL.
func (q *Query) State() State { return q.state }

// Add sets a part to value. If appendValue is true and the part holds a list,
// value is appended to it. Map values of list parts are appended pair by pair.
// Otherwise the part is replaced.
//
// Accepted values: bool for distinct; string or []string for select, group
// and order; from, []from for from; join for join; Map or Pair for set and
// values; *Conditions for where and having; [2]int for limit.
func (q *Query) Add(part Part, value any, appendValue bool) *Query {
	q.state = StateDirty
	p := &q.parts
	switch part {
	case PartDistinct:
		p.distinct, _ = value.(bool)
	case PartSelect:
		p.selects = addStrings(p.selects, value, appendValue)
	case PartGroup:
		p.group = addStrings(p.group, value, appendValue)
	case PartOrder:
		p.order = addStrings(p.order, value, appendValue)
	case PartFrom:
		var fs []from
		switch v := value.(type) {
		case from:
			fs = []from{v}
		case []from:
			fs = v
		case string:
			fs = []from{{table: v}}
		}
		if appendValue {
			p.from = append(p.from, fs...)
		} else {
			p.from = fs
		}
	case PartJoin:
		if j, ok := value.(join); ok {
			if appendValue {
				p.joins = append(p.joins, j)
			} else {
				p.joins = []join{j}
			}
		}
	case PartSet:
		p.set = addPairs(p.set, value, appendValue)
	case PartValues:
		p.values = addPairs(p.values, value, appendValue)
	case PartWhere:
		p.where = addComposite(p.where, value, appendValue)
	case PartHaving:
		p.having = addComposite(p.having, value, appendValue)
	case PartLimit:
		if l, ok := value.([2]int); ok {
			p.limit = limit{count: l[0], offset: l[1]}
		}
	}
	return q
}

// Reset clears a part.
func (q *Query) Reset(part Part) *Query {
	q.state = StateDirty
	p := &q.parts
	switch part {
	case PartDistinct:
		p.distinct = false
	case PartSelect:
		p.selects = nil
	case PartFrom:
		p.from = nil
	case PartJoin:
		p.joins = nil
	case PartSet:
		p.set = nil
	case PartValues:
		p.values = nil
	case PartWhere:
		p.where = nil
	case PartGroup:
		p.group = nil
	case PartHaving:
		p.having = nil
	case PartOrder:
		p.order = nil
	case PartLimit:
		p.limit = limit{}
	}
	return q
}

func addStrings(cur []string, value any, appendValue bool) []string {
	var vs []string
	switch v := value.(type) {
	case string:
		vs = []string{v}
	case []string:
		vs = v
	}
	if appendValue {
		return append(cur, vs...)
	}
	return append([]string(nil), vs...)
}

func addPairs(cur Map, value any, appendValue bool) Map {
	var vs Map
	switch v := value.(type) {
	case Pair:
		vs = Map{v}
	case Map:
		vs = v
	}
	if !appendValue {
		return append(Map(nil), vs...)
	}
	// An appended key replaces its previous value in place.
	out := append(Map(nil), cur...)
	for _, pv := range vs {
		replaced := false
		for i := range out {
			if out[i].Key == pv.Key {
				out[i].Value, replaced = pv.Value, true
				break
			}
		}
		if !replaced {
			out = append(out, pv)
		}
	}
	return out
}

func addComposite(cur *composite, value any, appendValue bool) *composite {
	c, _ := value.(*Conditions)
	if c.Empty() {
		if appendValue {
			return cur
		}
		return nil
	}
	if !appendValue || cur == nil {
		return &composite{op: "AND", parts: []term{termOf(c)}, args: append([]any(nil), c.Values()...)}
	}
	return cur.with("AND", c)
}

func termOf(c *Conditions) term {
	return term{expr: c.Keys(), op: c.op}
}

// with returns the composite extended by c under op. When op differs from the
// current operator, the current predicate is parenthesized as one operand.
func (c *composite) with(op string, cond *Conditions) *composite {
	if cond.Empty() {
		return c
	}
	if c == nil || len(c.parts) == 0 {
		return &composite{op: op, parts: []term{termOf(cond)}, args: append([]any(nil), cond.Values()...)}
	}
	args := append(append([]any(nil), c.args...), cond.Values()...)
	if c.op == op || len(c.parts) == 1 {
		return &composite{op: op, parts: append(append([]term(nil), c.parts...), termOf(cond)), args: args}
	}
	return &composite{op: op, parts: []term{{expr: "(" + c.String() + ")"}, termOf(cond)}, args: args}
}

// String renders the composite predicate. An operand whose own top-level
// operator differs from the composite's is parenthesized.
func (c *composite) String() string {
	if c == nil {
		return ""
	}
	if len(c.parts) == 1 {
		return c.parts[0].expr
	}
	parts := make([]string, len(c.parts))
	for i, p := range c.parts {
		parts[i] = p.expr
		if p.op != "" && p.op != c.op {
			parts[i] = "(" + p.expr + ")"
		}
	}
	return strings.Join(parts, " "+c.op+" ")
}

// conditions returns the composite as Conditions.
func (c *composite) conditions() *Conditions {
	if c == nil || len(c.parts) == 0 {
		return &Conditions{}
	}
	op := c.op
	if len(c.parts) == 1 {
		op = c.parts[0].op
	}
	return &Conditions{keys: c.String(), values: append([]any(nil), c.args...), op: op}
}

// enclosed reports whether p is wrapped in one pair of parentheses.
func enclosed(p string) bool {
	if !strings.HasPrefix(p, "(") || !strings.HasSuffix(p, ")") {
		return false
	}
	depth := 0
	for i, r := range p {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(p)-1 {
				return false
			}
		}
	}
	return true
}

// Distinct toggles SELECT DISTINCT.
func (q *Query) Distinct(on bool) *Query {
	return q.Add(PartDistinct, on, false)
}

// Select makes q a SELECT statement and replaces its column list.
func (q *Query) Select(columns ...string) *Query {
	q.typ = TypeSelect
	return q.Add(PartSelect, columns, false)
}

// AddSelect appends columns to the select list.
func (q *Query) AddSelect(columns ...string) *Query {
	q.typ = TypeSelect
	return q.Add(PartSelect, columns, true)
}

// Insert makes q an INSERT statement into table.
func (q *Query) Insert(table string) *Query {
	q.typ = TypeInsert
	return q.Add(PartFrom, from{table: table}, false)
}

// Update makes q an UPDATE statement of table.
func (q *Query) Update(table string) *Query {
	q.typ = TypeUpdate
	return q.Add(PartFrom, from{table: table}, false)
}

// Delete makes q a DELETE statement from table.
func (q *Query) Delete(table string) *Query {
	q.typ = TypeDelete
	return q.Add(PartFrom, from{table: table}, false)
}

// From appends a table with an optional alias to the from list.
func (q *Query) From(table, alias string) *Query {
	return q.Add(PartFrom, from{table: table, alias: alias}, true)
}

// Join adds an INNER JOIN.
func (q *Query) Join(table, alias, on string) *Query {
	return q.InnerJoin(table, alias, on)
}

// InnerJoin adds an INNER JOIN.
func (q *Query) InnerJoin(table, alias, on string) *Query {
	return q.Add(PartJoin, join{kind: "INNER", table: table, alias: alias, on: on}, true)
}

// LeftJoin adds a LEFT JOIN.
func (q *Query) LeftJoin(table, alias, on string) *Query {
	return q.Add(PartJoin, join{kind: "LEFT", table: table, alias: alias, on: on}, true)
}

// Set adds a column assignment to an UPDATE statement.
func (q *Query) Set(column string, value any) *Query {
	return q.Add(PartSet, Pair{Key: column, Value: value}, true)
}

// SetMap adds column assignments to an UPDATE statement.
func (q *Query) SetMap(values Map) *Query {
	return q.Add(PartSet, values, true)
}

// Values sets the column values of an INSERT statement.
func (q *Query) Values(values Map) *Query {
	return q.Add(PartValues, values, false)
}

// Where replaces the where predicate.
func (q *Query) Where(c *Conditions) *Query {
	return q.Add(PartWhere, c, false)
}

// SetWhere is an alias of Where.
func (q *Query) SetWhere(c *Conditions) *Query {
	return q.Where(c)
}

// GetWhere returns the current where predicate and its values.
func (q *Query) GetWhere() *Conditions {
	return q.parts.where.conditions()
}

// AndWhere combines the where predicate with c using AND.
func (q *Query) AndWhere(c *Conditions) *Query {
	q.state = StateDirty
	q.parts.where = q.parts.where.with("AND", c)
	return q
}

// OrWhere combines the where predicate with c using OR.
func (q *Query) OrWhere(c *Conditions) *Query {
	q.state = StateDirty
	q.parts.where = q.parts.where.with("OR", c)
	return q
}

// Group replaces the GROUP BY list.
func (q *Query) Group(columns ...string) *Query {
	return q.Add(PartGroup, columns, false)
}

// AddGroup appends to the GROUP BY list.
func (q *Query) AddGroup(columns ...string) *Query {
	return q.Add(PartGroup, columns, true)
}

// Having replaces the having predicate.
func (q *Query) Having(c *Conditions) *Query {
	return q.Add(PartHaving, c, false)
}

// GetHaving returns the current having predicate and its values.
func (q *Query) GetHaving() *Conditions {
	return q.parts.having.conditions()
}

// AndHaving combines the having predicate with c using AND.
func (q *Query) AndHaving(c *Conditions) *Query {
	q.state = StateDirty
	q.parts.having = q.parts.having.with("AND", c)
	return q
}

// OrHaving combines the having predicate with c using OR.
func (q *Query) OrHaving(c *Conditions) *Query {
	q.state = StateDirty
	q.parts.having = q.parts.having.with("OR", c)
	return q
}

// Order replaces the ORDER BY list with one column.
func (q *Query) Order(column, dir string) *Query {
	return q.Add(PartOrder, orderTerm(column, dir), false)
}

// AddOrder appends a column to the ORDER BY list.
func (q *Query) AddOrder(column, dir string) *Query {
	return q.Add(PartOrder, orderTerm(column, dir), true)
}

func orderTerm(column, dir string) string {
	if dir = strings.ToUpper(strings.TrimSpace(dir)); dir == OrderAsc || dir == OrderDesc {
		return column + " " + dir
	}
	return column
}

// Limit sets the maximum number of rows. Zero removes the limit.
func (q *Query) Limit(n int) *Query {
	return q.Add(PartLimit, [2]int{n, q.parts.limit.offset}, false)
}

// Offset sets the number of rows to skip. It is rendered only together with a limit.
func (q *Query) Offset(n int) *Query {
	return q.Add(PartLimit, [2]int{q.parts.limit.count, n}, false)
}

// Clone returns a copy of q that can be changed without affecting q.
func (q *Query) Clone() *Query {
	if q == nil {
		return NewQuery()
	}
	c := &Query{typ: q.typ, state: StateDirty, parts: q.parts}
	p := &c.parts
	p.selects = append([]string(nil), p.selects...)
	p.from = append([]from(nil), p.from...)
	p.joins = append([]join(nil), p.joins...)
	p.set = append(Map(nil), p.set...)
	p.values = append(Map(nil), p.values...)
	p.group = append([]string(nil), p.group...)
	p.order = append([]string(nil), p.order...)
	// Composites are replaced, never changed in place, by every mutator.
	return c
}

// grouped reports whether the rows of q are groups or distinct values.
func (q *Query) grouped() bool {
	return q.parts.distinct || len(q.parts.group) > 0
}

// Table returns the first table of the from list.
func (q *Query) Table() string {
	if len(q.parts.from) == 0 {
		return ""
	}
	return q.parts.from[0].table
}

// SQL renders the statement. A clean query returns its cached text.
func (q *Query) SQL() string {
	if q.state == StateClean {
		return q.sql
	}
	var b strings.Builder
	switch q.typ {
	case TypeInsert:
		q.args = q.sqlForInsert(&b)
	case TypeUpdate:
		q.args = q.sqlForUpdate(&b)
	case TypeDelete:
		q.args = q.sqlForDelete(&b)
	default:
		q.args = q.sqlForSelect(&b)
	}
	q.sql, q.state = b.String(), StateClean
	return q.sql
}

// Args returns the bind values of the rendered statement in placeholder order.
func (q *Query) Args() []any {
	q.SQL()
	return q.args
}

// String implements fmt.Stringer.
func (q *Query) String() string { return q.SQL() }

func (q *Query) sqlForSelect(b *strings.Builder) []any {
	var args []any
	b.WriteString("SELECT ")
	if q.parts.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(q.parts.selects) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(q.parts.selects, ", "))
	}
	if froms := q.renderFrom(); froms != "" {
		b.WriteString(" FROM ")
		b.WriteString(froms)
	}
	args = q.writeWhere(b, args)
	if len(q.parts.group) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(q.parts.group, ", "))
	}
	if h := q.parts.having.String(); h != "" {
		b.WriteString(" HAVING ")
		b.WriteString(h)
		args = append(args, q.parts.having.args...)
	}
	q.writeOrderLimit(b)
	return args
}

func (q *Query) sqlForInsert(b *strings.Builder) []any {
	if len(q.parts.values) == 0 {
		b.WriteString("INSERT INTO ")
		b.WriteString(q.Table())
		b.WriteString(" DEFAULT VALUES")
		return nil
	}
	columns := make([]string, len(q.parts.values))
	marks := make([]string, len(q.parts.values))
	args := make([]any, len(q.parts.values))
	for i, p := range q.parts.values {
		columns[i], marks[i], args[i] = p.Key, "?", p.Value
	}
	b.WriteString("INSERT INTO ")
	b.WriteString(q.Table())
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ","))
	b.WriteString(") VALUES(")
	b.WriteString(strings.Join(marks, ","))
	b.WriteString(") ")
	return args
}

func (q *Query) sqlForUpdate(b *strings.Builder) []any {
	sets := make([]string, len(q.parts.set))
	args := make([]any, 0, len(q.parts.set))
	for i, p := range q.parts.set {
		sets[i] = p.Key + " = ?"
		args = append(args, p.Value)
	}
	b.WriteString("UPDATE ")
	b.WriteString(q.Table())
	b.WriteString(" SET ")
	b.WriteString(strings.Join(sets, ", "))
	args = q.writeWhere(b, args)
	q.writeOrderLimit(b)
	return args
}

func (q *Query) sqlForDelete(b *strings.Builder) []any {
	b.WriteString("DELETE FROM ")
	b.WriteString(q.Table())
	args := q.writeWhere(b, nil)
	q.writeOrderLimit(b)
	return args
}

// renderFrom renders the from list, each table followed by its joins.
func (q *Query) renderFrom() string {
	if len(q.parts.from) == 0 {
		return ""
	}
	tables := make([]string, len(q.parts.from))
	for i, f := range q.parts.from {
		var b strings.Builder
		b.WriteString(f.table)
		if f.alias != "" {
			b.WriteByte(' ')
			b.WriteString(f.alias)
		}
		// Joins are attached to the last from entry.
		if i == len(q.parts.from)-1 {
			for _, j := range q.parts.joins {
				b.WriteByte(' ')
				b.WriteString(j.kind)
				b.WriteString(" JOIN ")
				b.WriteString(j.table)
				if j.alias != "" {
					b.WriteByte(' ')
					b.WriteString(j.alias)
				}
				if j.on != "" {
					b.WriteString(" ON ")
					b.WriteString(j.on)
				}
			}
		}
		tables[i] = b.String()
	}
	return strings.Join(tables, ", ")
}

func (q *Query) writeWhere(b *strings.Builder, args []any) []any {
	if w := q.parts.where.String(); w != "" {
		b.WriteString(" WHERE ")
		b.WriteString(w)
		args = append(args, q.parts.where.args...)
	}
	return args
}

func (q *Query) writeOrderLimit(b *strings.Builder) {
	if len(q.parts.order) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(q.parts.order, ", "))
	}
	if l := q.parts.limit; l.count > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(l.count))
		if l.offset > 0 {
			b.WriteString(" OFFSET ")
			b.WriteString(strconv.Itoa(l.offset))
		}
	}
}
