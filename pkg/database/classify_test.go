package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Failure
	}{
		{name: "nil", err: nil, want: FailureNone},
		{name: "deadline", err: fmt.Errorf("redeem: %w", context.DeadlineExceeded), want: FailureUnavailable},
		{name: "bad conn", err: driver.ErrBadConn, want: FailureUnavailable},
		{name: "conn done", err: sql.ErrConnDone, want: FailureUnavailable},
		{name: "dial", err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}, want: FailureUnavailable},
		{name: "admin shutdown", err: &pq.Error{Code: "57P01"}, want: FailureUnavailable},
		{name: "connection failure", err: &pq.Error{Code: "08006"}, want: FailureUnavailable},
		{name: "serialization", err: &pq.Error{Code: "40001"}, want: FailureConflict},
		{name: "deadlock", err: &pq.Error{Code: "40P01"}, want: FailureConflict},
		{name: "check violation", err: fmt.Errorf("debit: %w", &pq.Error{Code: "23514"}), want: FailureConflict},
		{name: "unique violation", err: &pq.Error{Code: "23505"}, want: FailureOther},
		{name: "no rows", err: sql.ErrNoRows, want: FailureOther},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("create prize: %w", &pq.Error{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23514"}))
	assert.False(t, IsUniqueViolation(sql.ErrNoRows))
}
