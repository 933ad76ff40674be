package database

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/nexstream/backend/internal/apperr"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// IsForeignKeyViolation reports whether err is a PostgreSQL foreign key failure,
// such as deleting a row that is still referenced.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

// Translate maps driver errors onto the application taxonomy: no rows → NotFound,
// unique violation → Duplicate, foreign key violation → InvalidState,
// anything else → RemoteUnavailable.
func Translate(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return apperr.NotFound("%s: not found", op)
	case IsUniqueViolation(err):
		return apperr.Duplicate("%s: already exists", op)
	case IsForeignKeyViolation(err):
		return apperr.InvalidState("%s: still referenced", op)
	}
	return apperr.Remote(err, op)
}
