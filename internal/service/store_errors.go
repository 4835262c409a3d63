package service

import (
	"database/sql"
	"errors"

	"github.com/noah-isme/points-ledger-api/pkg/database"
	appErrors "github.com/noah-isme/points-ledger-api/pkg/errors"
)

// storeError converts a repository error into a typed error: unreachable or timed out stores
// become STORE_UNAVAILABLE, guard violations CONCURRENT_CONFLICT, anything else INTERNAL_ERROR.
func storeError(err error, message string) *appErrors.Error {
	switch database.Classify(err) {
	case database.FailureUnavailable:
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	case database.FailureConflict:
		return appErrors.Wrap(err, appErrors.ErrConcurrentConflict.Code, appErrors.ErrConcurrentConflict.Status, appErrors.ErrConcurrentConflict.Message)
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
}

// lookupError maps sql.ErrNoRows to NOT_FOUND and defers everything else to storeError.
func lookupError(err error, notFound, message string) *appErrors.Error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return storeError(err, message)
}
