package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestUniqueViolation(t *testing.T) {
	err := fmt.Errorf("failed to insert ride: %w", &pgconn.PgError{
		Code:           CodeUniqueViolation,
		ConstraintName: "rides_one_active_per_passenger",
	})

	constraint, ok := UniqueViolation(err)
	assert.True(t, ok)
	assert.Equal(t, "rides_one_active_per_passenger", constraint)

	_, ok = UniqueViolation(&pgconn.PgError{Code: CodeCheckViolation})
	assert.False(t, ok)

	_, ok = UniqueViolation(errors.New("boom"))
	assert.False(t, ok)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"connection exception", &pgconn.PgError{Code: "08006"}, true},
		{"unique violation", &pgconn.PgError{Code: CodeUniqueViolation}, false},
		{"syntax error", &pgconn.PgError{Code: "42601"}, false},
		{"context cancelled", context.Canceled, false},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"plain error", errors.New("no rows"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
