package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a lookup matches no rows.
	ErrNotFound = errors.New("store: record not found")

	// ErrDuplicate is returned on unique constraint violations.
	ErrDuplicate = errors.New("store: duplicate key")

	// ErrForeignKey is returned when a referenced row does not exist.
	ErrForeignKey = errors.New("store: foreign key violation")

	// ErrConflict is returned when an optimistic write loses to a
	// concurrent writer or the database aborts the transaction.
	ErrConflict = errors.New("store: concurrent modification")
)

// DBError keeps the driver error next to the sentinel it maps to so
// callers can use errors.Is and still log the cause.
type DBError struct {
	Sentinel   error
	Cause      error
	Constraint string
}

func (e *DBError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("%s on %s (cause: %v)", e.Sentinel, e.Constraint, e.Cause)
	}
	return fmt.Sprintf("%s (cause: %v)", e.Sentinel, e.Cause)
}

func (e *DBError) Is(target error) bool { return errors.Is(e.Sentinel, target) }
func (e *DBError) Unwrap() error        { return e.Cause }

// Field names the user-facing field behind a unique constraint, or "".
func (e *DBError) Field() string {
	switch {
	case strings.Contains(e.Constraint, "username"):
		return "username"
	case strings.Contains(e.Constraint, "email"):
		return "email"
	}
	return ""
}

// DuplicateField reports which field a duplicate-key error is about.
func DuplicateField(err error) string {
	var dbe *DBError
	if errors.As(err, &dbe) && errors.Is(dbe.Sentinel, ErrDuplicate) {
		return dbe.Field()
	}
	return ""
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &DBError{Sentinel: ErrNotFound, Cause: err}
	}
	var dbe *DBError
	if errors.As(err, &dbe) {
		return err
	}
	var pge *pgconn.PgError
	if !errors.As(err, &pge) {
		return err
	}
	switch pge.Code {
	case "23505": // unique_violation
		return &DBError{Sentinel: ErrDuplicate, Cause: err, Constraint: pge.ConstraintName}
	case "23503": // foreign_key_violation
		return &DBError{Sentinel: ErrForeignKey, Cause: err, Constraint: pge.ConstraintName}
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return &DBError{Sentinel: ErrConflict, Cause: err}
	}
	return err
}
