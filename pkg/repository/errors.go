package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL unique_violation.
const uniqueViolation = "23505"

// MapError rewrites driver-level errors into the domain sentinels the
// caller provides: sql.ErrNoRows becomes notFound, a unique-constraint
// violation becomes duplicate. Anything else passes through.
func MapError(err error, notFound, duplicate error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return notFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return duplicate
	}
	return err
}
