package db

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned for a lookup that matched no row.
	ErrNotFound = errors.New("db: not found")
	// ErrUniqueViolation is returned when an insert or update collides with a unique constraint.
	ErrUniqueViolation = errors.New("db: unique violation")
	// ErrConflict is returned for serialization failures and deadlocks.
	ErrConflict = errors.New("db: transaction conflict")
)

// UniqueViolation reports the constraint name when err is a unique violation.
func UniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// MapError maps pgx and Postgres errors onto the package sentinels, keeping the original
// as the wrapped cause. Unknown errors are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return errors.Join(ErrUniqueViolation, err)
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return errors.Join(ErrConflict, err)
	default:
		return err
	}
}
