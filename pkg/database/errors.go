package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

const codeUniqueViolation = "23505"

// IsNoRows reports whether err means a single-row query found nothing
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation reports whether err is a unique constraint violation, returning the name
// of the violated constraint
func IsUniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == codeUniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}
