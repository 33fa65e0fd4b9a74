package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	driverErr := errors.New("ERROR: duplicate key value violates unique constraint")

	tests := []struct {
		name       string
		err        error
		notFound   bool
		exists     bool
		validation bool
		conflict   bool
	}{
		{name: "student not found", err: ErrStudentNotFound, notFound: true},
		{name: "penalty not found wrapped", err: fmt.Errorf("waive: %w", ErrPenaltyNotFound), notFound: true},
		{name: "already exists with cause", err: WrapError("student", "Create", ErrAlreadyExists, "exists", driverErr), exists: true},
		{name: "invalid student id", err: ErrInvalidStudentID, validation: true},
		{name: "empty waive reason", err: ErrEmptyWaiveReason, validation: true},
		{name: "negative points", err: ErrNegativePoints, validation: true},
		{name: "bad period", err: ErrInvalidPeriod, validation: true},
		{name: "stale version", err: fmt.Errorf("apply_penalty: %w", ErrStudentVersionStale), conflict: true},
		{name: "timeout is not a conflict", err: context.DeadlineExceeded},
		{name: "driver error", err: driverErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
			assert.Equal(t, tt.exists, IsAlreadyExists(tt.err))
			assert.Equal(t, tt.validation, IsValidation(tt.err))
			assert.Equal(t, tt.conflict, IsConflict(tt.err))
		})
	}
}

func TestDomainError_MessageAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError("student", "Save", ErrValidation, "points must not be negative", cause)

	assert.Equal(t, "student.Save: points must not be negative: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrValidation)

	bare := NewDomainError("penalty", "Find", ErrNotFound, "penalty not found")
	assert.Equal(t, "penalty.Find: penalty not found", bare.Error())
	assert.Equal(t, ErrNotFound, errors.Unwrap(bare))
}
