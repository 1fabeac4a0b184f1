package easymodel

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("easymodel: entity not found")

	// ErrMissingConnection is returned when a datasource cannot be reached.
	ErrMissingConnection = errors.New("easymodel: missing connection")

	// ErrMissingTable is returned when a table is not listed by its datasource.
	ErrMissingTable = errors.New("easymodel: missing table")

	// ErrMissingDriver is returned when a datasource names an unknown dialect.
	ErrMissingDriver = errors.New("easymodel: missing driver")

	// ErrInvalidArgument is returned when an operation receives a value it cannot work with,
	// e.g. saving something that is not a pointer to a struct.
	ErrInvalidArgument = errors.New("easymodel: invalid argument")

	// ErrKeyNotFound is returned when a conditions lookup does not find the requested field.
	ErrKeyNotFound = errors.New("easymodel: key not found")

	// ErrTxNotStarted is returned by commit or rollback when no transaction is active.
	ErrTxNotStarted = errors.New("easymodel: no transaction started")
)

// NotFoundError represents an error when an entity is not found.
type NotFoundError struct {
	label string
	id    any // Optional: the ID that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("easymodel: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("easymodel: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the ID that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given entity type.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithID returns a new NotFoundError with the ID that was searched for.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// MissingConnectionError is returned when the native connection of a datasource
// could not be established. It carries the underlying driver error.
type MissingConnectionError struct {
	Datasource string
	Err        error
}

// Error returns the error string.
func (e *MissingConnectionError) Error() string {
	return fmt.Sprintf("easymodel: missing connection for datasource %q: %v", e.Datasource, e.Err)
}

// Is reports whether the target error matches ErrMissingConnection.
func (e *MissingConnectionError) Is(err error) bool {
	return err == ErrMissingConnection
}

// Unwrap returns the underlying driver error.
func (e *MissingConnectionError) Unwrap() error {
	return e.Err
}

// NewMissingConnectionError returns a new MissingConnectionError.
func NewMissingConnectionError(datasource string, err error) *MissingConnectionError {
	return &MissingConnectionError{Datasource: datasource, Err: err}
}

// IsMissingConnection returns true if the error is a MissingConnectionError.
func IsMissingConnection(err error) bool {
	if err == nil {
		return false
	}
	var e *MissingConnectionError
	return errors.As(err, &e) || errors.Is(err, ErrMissingConnection)
}

// MissingTableError is returned when a table is not present in its datasource.
type MissingTableError struct {
	Table      string
	Datasource string
}

// Error returns the error string.
func (e *MissingTableError) Error() string {
	return fmt.Sprintf("easymodel: table %q for datasource %q was not found", e.Table, e.Datasource)
}

// Is reports whether the target error matches ErrMissingTable.
func (e *MissingTableError) Is(err error) bool {
	return err == ErrMissingTable
}

// NewMissingTableError returns a new MissingTableError.
func NewMissingTableError(table, datasource string) *MissingTableError {
	return &MissingTableError{Table: table, Datasource: datasource}
}

// IsMissingTable returns true if the error is a MissingTableError.
func IsMissingTable(err error) bool {
	if err == nil {
		return false
	}
	var e *MissingTableError
	return errors.As(err, &e) || errors.Is(err, ErrMissingTable)
}

// MissingDriverError is returned when a datasource configuration names a dialect
// that has no adapter.
type MissingDriverError struct {
	Driver string
}

// Error returns the error string.
func (e *MissingDriverError) Error() string {
	return fmt.Sprintf("easymodel: driver %q is not supported", e.Driver)
}

// Is reports whether the target error matches ErrMissingDriver.
func (e *MissingDriverError) Is(err error) bool {
	return err == ErrMissingDriver
}

// NewMissingDriverError returns a new MissingDriverError.
func NewMissingDriverError(driver string) *MissingDriverError {
	return &MissingDriverError{Driver: driver}
}

// InvalidArgumentError is returned synchronously, before any I/O, when an
// operation receives an argument of the wrong shape.
type InvalidArgumentError struct {
	Op  string
	Got any
}

// Error returns the error string.
func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("easymodel: %s: invalid argument of type %T, expect pointer to struct", e.Op, e.Got)
}

// Is reports whether the target error matches ErrInvalidArgument.
func (e *InvalidArgumentError) Is(err error) bool {
	return err == ErrInvalidArgument
}

// NewInvalidArgumentError returns a new InvalidArgumentError.
func NewInvalidArgumentError(op string, got any) *InvalidArgumentError {
	return &InvalidArgumentError{Op: op, Got: got}
}

// IsInvalidArgument returns true if the error is an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	if err == nil {
		return false
	}
	var e *InvalidArgumentError
	return errors.As(err, &e) || errors.Is(err, ErrInvalidArgument)
}

// KeyNotFoundError is returned when a conditions lookup does not find a field.
type KeyNotFoundError struct {
	Key string
}

// Error returns the error string.
func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("easymodel: key %q not found in conditions", e.Key)
}

// Is reports whether the target error matches ErrKeyNotFound.
func (e *KeyNotFoundError) Is(err error) bool {
	return err == ErrKeyNotFound
}

// NewKeyNotFoundError returns a new KeyNotFoundError.
func NewKeyNotFoundError(key string) *KeyNotFoundError {
	return &KeyNotFoundError{Key: key}
}

// QueryError wraps a query error with additional context.
type QueryError struct {
	Entity string // Entity type being queried
	Op     string // Operation (e.g., "find", "count")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("easymodel: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("easymodel: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(entity, op string, err error) *QueryError {
	return &QueryError{Entity: entity, Op: op, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// MutationError wraps a mutation error with additional context.
type MutationError struct {
	Entity string // Entity type being mutated
	Op     string // Operation (e.g., "insert", "update", "delete")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("easymodel: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(entity, op string, err error) *MutationError {
	return &MutationError{Entity: entity, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}
