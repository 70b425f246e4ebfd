package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/docreview-api/internal/store"
)

// PostgreSQL error codes
const (
	uniqueViolationCode  = "23505"
	notNullViolationCode = "23502"
	undefinedTableCode   = "42P01"
)

// ErrSchemaMissing is returned when the reports table does not exist.
var ErrSchemaMissing = errors.New("reports table missing: run the migrate command")

// MapError maps a database error to a store error, wrapping the original
// error to preserve context.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrReportNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case undefinedTableCode:
			return fmt.Errorf("%w: %v", ErrSchemaMissing, err)
		case uniqueViolationCode:
			return fmt.Errorf("duplicate report key (%s): %w", pgErr.ConstraintName, err)
		case notNullViolationCode:
			return fmt.Errorf("not null violation (%s): %w", pgErr.ColumnName, err)
		}
	}

	return err
}

// IsUniqueViolation checks if the given error is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
