package database

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the stores inspect.
const (
	CodeUniqueViolation = "23505"
	CodeCheckViolation  = "23514"
)

// UniqueViolation returns the violated constraint name when err is a
// unique_violation, and ok=false otherwise.
func UniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == CodeUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// IsRetryable reports whether a PostgreSQL error is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03", // lock_not_available
			"53000", // insufficient_resources
			"53300", // too_many_connections
			"57P01", // admin_shutdown
			"57P03": // cannot_connect_now
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08") // connection_exception
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"unexpected eof",
		"server closed",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
