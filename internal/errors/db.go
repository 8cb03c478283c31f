package errors

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapDBError maps archive database errors to AppError instances:
// - sql.ErrNoRows / pgx.ErrNoRows → NotFound
// - undefined table → Resource (migrations not applied)
// - connection failures → Resource
// - context timeouts/cancellations → Timeout/Canceled
//
// If the error is not a recognized database error, it returns the original error.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Code: ErrCodeTimeout, Message: "database request timed out", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{Code: ErrCodeCanceled, Message: "database request was canceled", Cause: err}
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return &AppError{Code: ErrCodeNotFound, Message: "record not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.UndefinedTable:
			return &AppError{Code: ErrCodeResource, Message: "job archive is not migrated", Cause: err}
		case pgerrcode.IsConnectionException(pgErr.Code):
			return &AppError{Code: ErrCodeResource, Message: "database connection failed", Cause: err}
		}
	}
	return err
}
