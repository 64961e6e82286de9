package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("already exists")

	// ErrInvalidCredentials is returned when a username/password pair does not
	// match. It never reveals whether the username exists.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidInput is returned when the database rejects a value
	// (SQLSTATE class 22 or a non-unique class 23 violation).
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable wraps failures of the database itself (connection loss,
	// timeouts, driver errors).
	ErrUnavailable = errors.New("store unavailable")
)

const (
	uniqueViolation = pq.ErrorCode("23505")

	classDataException      = pq.ErrorClass("22")
	classIntegrityViolation = pq.ErrorClass("23")
)

// classify maps a driver error onto the store's error kinds.
// sql.ErrNoRows is left to the caller since only some queries treat it as absence.
func classify(err error) error {
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == uniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
		case pqErr.Code.Class() == classDataException, pqErr.Code.Class() == classIntegrityViolation:
			return fmt.Errorf("%w: %s", ErrInvalidInput, pqErr.Message)
		}
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
