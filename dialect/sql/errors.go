package sql

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
)

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
	mysqlNotNull                = 1048
)

// SQLite extended result codes for constraint violations. modernc.org/sqlite
// turns extended codes on for every connection.
const (
	sqliteConstraintCheck      = 275
	sqliteConstraintForeignKey = 787
	sqliteConstraintNotNull    = 1299
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

// constraint lists the native codes of one kind of violation.
type constraint struct {
	pg     []string
	mysql  []uint16
	sqlite []int
}

var (
	uniqueConstraint = constraint{
		pg:     []string{pgUniqueViolation},
		mysql:  []uint16{mysqlDuplicateEntry},
		sqlite: []int{sqliteConstraintUnique, sqliteConstraintPrimaryKey},
	}
	foreignKeyConstraint = constraint{
		pg:     []string{pgForeignKeyViolation},
		mysql:  []uint16{mysqlForeignKeyParent, mysqlForeignKeyChild},
		sqlite: []int{sqliteConstraintForeignKey},
	}
	checkConstraint = constraint{
		pg:     []string{pgCheckViolation},
		mysql:  []uint16{mysqlCheckConstraintViolate},
		sqlite: []int{sqliteConstraintCheck},
	}
	notNullConstraint = constraint{
		pg:     []string{pgNotNullViolation},
		mysql:  []uint16{mysqlNotNull},
		sqlite: []int{sqliteConstraintNotNull},
	}
)

// IsConstraintError returns true if the error resulted from a database constraint violation.
// Execution errors are returned unmodified by the driver, so these helpers
// look through any wrapping down to the native driver error.
func IsConstraintError(err error) bool {
	return IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err) ||
		IsNotNullConstraintError(err)
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
// e.g. duplicate value in unique index.
func IsUniqueConstraintError(err error) bool {
	return uniqueConstraint.matches(err)
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
// e.g. parent row does not exist.
func IsForeignKeyConstraintError(err error) bool {
	return foreignKeyConstraint.matches(err)
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool {
	return checkConstraint.matches(err)
}

// IsNotNullConstraintError reports if the error resulted from writing NULL into a NOT NULL column.
func IsNotNullConstraintError(err error) bool {
	return notNullConstraint.matches(err)
}

// matches checks the native error of each supported driver against the codes of c.
func (c constraint) matches(err error) bool {
	if err == nil {
		return false
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		for _, code := range c.pg {
			if string(pe.Code) == code {
				return true
			}
		}
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		for _, n := range c.mysql {
			if me.Number == n {
				return true
			}
		}
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		for _, code := range c.sqlite {
			if se.Code() == code {
				return true
			}
		}
	}
	return false
}
