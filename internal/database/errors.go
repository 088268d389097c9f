package database

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/localnerve/proposaldb/internal/types"
)

// MySQL/MariaDB server error numbers
const (
	mysqlErrDuplicateEntry       = 1062
	mysqlErrCheckConstraint      = 3819
	mysqlErrMariaCheckConstraint = 4025
)

// Classify maps a driver error onto the error taxonomy. Check constraint
// violations become validation errors; everything else is a retryable
// persistence error.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if types.Classified(err) {
		return err
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrCheckConstraint, mysqlErrMariaCheckConstraint:
			return checkViolation(myErr.Message)
		case mysqlErrDuplicateEntry:
			return &types.ValidationError{Message: "duplicate record", Fields: []types.FieldError{{Field: "id", Reason: myErr.Message}}}
		}
		return &types.PersistenceError{Op: op, Err: err}
	}

	msg := err.Error()
	if strings.Contains(msg, "CHECK constraint failed") || strings.Contains(msg, "violates check constraint") ||
		strings.Contains(msg, "conflicted with the CHECK constraint") {
		return checkViolation(msg)
	}

	return &types.PersistenceError{Op: op, Err: err}
}

func checkViolation(msg string) error {
	field := "record"
	switch {
	case strings.Contains(msg, "current_section"):
		field = "currentSection"
	case strings.Contains(msg, "completion"):
		field = "formCompletionPercentage"
	case strings.Contains(msg, "target"):
		field = "targetType"
	}
	return &types.ValidationError{
		Message: "constraint violated",
		Fields:  []types.FieldError{{Field: field, Reason: msg}},
	}
}
