package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"
)

// Failure groups driver errors by how callers should react to them.
type Failure int

const (
	// FailureNone means err was nil.
	FailureNone Failure = iota
	// FailureUnavailable covers timeouts and lost connections; the caller may retry.
	FailureUnavailable
	// FailureConflict covers serialization failures, deadlocks and guard constraint violations.
	FailureConflict
	// FailureOther is any other driver or query error.
	FailureOther
)

const (
	pqClassConnection    = "08"
	pqClassResources     = "53"
	pqClassOperator      = "57"
	pqSerializationError = "40001"
	pqDeadlockDetected   = "40P01"
	pqCheckViolation     = "23514"
)

// Classify maps a store error onto a Failure.
func Classify(err error) Failure {
	if err == nil {
		return FailureNone
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return FailureUnavailable
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqSerializationError, pqDeadlockDetected, pqCheckViolation:
			return FailureConflict
		}
		switch string(pqErr.Code.Class()) {
		case pqClassConnection, pqClassResources, pqClassOperator:
			return FailureUnavailable
		}
		return FailureOther
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureUnavailable
	}
	return FailureOther
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
