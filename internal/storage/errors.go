package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateKey     = errors.New("employee key already registered")
	ErrAlreadyCheckedIn = errors.New("already checked in today")
)

const (
	uniqueViolation     = "23505"
	employeeKeyUnique   = "employees_employee_key_key"
	attendanceDayUnique = "attendance_employee_day_key"
)

// isUniqueViolation reports whether err is a unique constraint failure on
// constraint, or on any constraint when constraint is empty.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
