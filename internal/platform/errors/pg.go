package errors

// Postgres-specific helpers for mapping pgx errors to project ErrorCode and
// retry semantics. Used only by the run-history repo

import (
	stderrs "errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes we care about
const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrNotNullViolation    = "23502"
	pgErrCheckViolation      = "23514"

	pgErrSerializationFailure = "40001"
	pgErrDeadlockDetected     = "40P01"
	pgErrLockNotAvailable     = "55P03"
	pgErrCannotConnectNow     = "57P03" // i.e. startup in progress
)

// ExtractPgError returns (*pgconn.PgError, true) if the root cause is a PgError.
func ExtractPgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if stderrs.As(Root(err), &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// IsSQLState reports whether the error is a Postgres error with the given SQLSTATE code
func IsSQLState(err error, code string) bool {
	pgErr, ok := ExtractPgError(err)
	return ok && pgErr.Code == code
}

// IsDuplicateKey reports whether the error is a unique constraint violation
func IsDuplicateKey(err error) bool { return IsSQLState(err, pgErrUniqueViolation) }

// DBErrorCode maps a Postgres error to an ErrorCode with an ok flag
// !ok means err wasn't a PgError; caller may fall back to generic handling
func DBErrorCode(err error) (ErrorCode, bool) {
	pgErr, ok := ExtractPgError(err)
	if !ok {
		return ErrorCodeUnknown, false
	}
	switch pgErr.Code {
	case pgErrUniqueViolation:
		return ErrorCodeDuplicateKey, true
	case pgErrForeignKeyViolation, pgErrNotNullViolation, pgErrCheckViolation:
		return ErrorCodeInvalidArgument, true
	case pgErrCannotConnectNow:
		return ErrorCodeUnavailable, true
	default:
		return ErrorCodeDB, true
	}
}

// isRetryablePg reports whether the error is a transient Postgres condition
// (serialization failure, deadlock, lock contention, startup)
func isRetryablePg(err error) bool {
	pgErr, ok := ExtractPgError(err)
	if !ok {
		return false
	}
	switch pgErr.Code {
	case pgErrSerializationFailure, pgErrDeadlockDetected, pgErrLockNotAvailable, pgErrCannotConnectNow:
		return true
	}
	return false
}
