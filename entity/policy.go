package entity

import (
	"context"
	"strconv"

	"github.com/easyframework/easymodel/dialect/sql"
)

// Op is the kind of a mutation. Ops are bit flags and can be combined.
type Op uint

// Mutation operations.
const (
	OpCreate Op = 1 << iota
	OpUpdate
	OpDelete
)

// Is reports whether o matches any of the operations in op.
func (o Op) Is(op Op) bool { return o&op != 0 }

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "OpCreate"
	case OpUpdate:
		return "OpUpdate"
	case OpDelete:
		return "OpDelete"
	}
	return "Op(" + strconv.FormatUint(uint64(o), 10) + ")"
}

// Read describes a finder about to run. Policies may narrow Query.
type Read struct {
	Entity string
	Table  string
	Query  *sql.Query
}

// Mutation describes a write about to run.
type Mutation struct {
	Op     Op
	Entity string
	Table  string
	// Value is the entity being saved or deleted. Its fields are what the
	// caller holds, not what is stored.
	Value any
	// Data holds the column values written. Updates leave out the primary
	// key and deletes carry none.
	Data sql.Map
	// Query selects the stored row of updates and deletes by primary key.
	// Policies narrow it to the rows the viewer may change. It is nil for
	// creates.
	Query *sql.Query
}

// Field returns the value written to column.
func (m *Mutation) Field(column string) (any, bool) {
	return m.Data.Get(column)
}

// Policy decides whether finders and writes may run. A non-nil error aborts
// the operation and is returned to the caller.
type Policy interface {
	EvalQuery(context.Context, *Read) error
	EvalMutation(context.Context, *Mutation) error
}
