package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Error(t *testing.T) {
	err := NewSpawnError("failed to start backend", fmt.Errorf("exec: not found"))
	assert.Equal(t, "spawn: failed to start backend: exec: not found", err.Error())

	err = NewHealthCheckTimeoutError("backend never answered", nil)
	assert.Equal(t, "health_check_timeout: backend never answered", err.Error())
}

func TestDomainError_WithContext(t *testing.T) {
	err := NewAllocationError("no free port", nil).
		WithContext("host", "127.0.0.1").
		WithContext("attempt", 1)

	assert.Equal(t, "127.0.0.1", err.Context["host"])
	assert.Equal(t, 1, err.Context["attempt"])
}

func TestTypeCheckers(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		checker func(error) bool
	}{
		{"allocation", NewAllocationError("x", nil), IsAllocationError},
		{"spawn", NewSpawnError("x", nil), IsSpawnError},
		{"health_check_timeout", NewHealthCheckTimeoutError("x", nil), IsHealthCheckTimeoutError},
		{"process_exited_early", NewProcessExitedEarlyError("x", nil), IsProcessExitedEarlyError},
		{"output_sink", NewOutputSinkError("x", nil), IsOutputSinkError},
		{"validation", NewValidationError("x", nil), IsValidationError},
		{"conflict", NewConflictError("x", nil), IsConflictError},
		{"cancelled", NewCancelledError("x", nil), IsCancelledError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.checker(tt.err))
			assert.True(t, tt.checker(fmt.Errorf("wrapped: %w", tt.err)))
			assert.False(t, tt.checker(errors.New("plain")))
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewProcessExitedEarlyError("exited", nil))

	assert.True(t, errors.Is(err, &DomainError{Type: ErrorTypeProcessExitedEarly}))
	assert.False(t, errors.Is(err, &DomainError{Type: ErrorTypeSpawn}))
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrorTypeSpawn, TypeOf(NewSpawnError("x", nil)))
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))
	assert.Equal(t, ErrorType(""), TypeOf(nil))
}

func TestErrorCollection(t *testing.T) {
	collection := NewErrorCollection()
	require.NoError(t, collection.ToError())

	collection.Add(nil)
	assert.False(t, collection.HasErrors())

	collection.Add(NewValidationError("first", nil))
	collection.Add(NewValidationError("second", nil))

	err := collection.ToError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")
	assert.True(t, IsValidationError(err))
}
