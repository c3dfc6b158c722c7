package gorm

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrInvalidReference means a row points at a parent that does not exist.
	ErrInvalidReference = errors.New("referenced record does not exist")

	// ErrInvalidValue means a value was rejected by validation or a check constraint.
	ErrInvalidValue = errors.New("invalid value")

	// ErrNotFound means the row to modify does not exist.
	ErrNotFound = errors.New("record not found")
)

// PostgreSQL error codes mapped to sentinels.
const (
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
	pgInvalidTextRepr     = "22P02"
)

// mapError translates PostgreSQL constraint violations into package sentinels.
// Other errors are wrapped with op.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, ErrInvalidReference, pgErr.ConstraintName)
		case pgCheckViolation, pgNotNullViolation, pgInvalidTextRepr:
			return fmt.Errorf("%s: %w: %s", op, ErrInvalidValue, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// checkRowID rejects ids that cannot name a uuid row. Such a row cannot
// exist, so the lookup is reported as not found.
func checkRowID(op, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%s %q: %w", op, id, ErrNotFound)
	}
	return nil
}
