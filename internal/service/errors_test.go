package service_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shaharia-lab/taskrunner/internal/service"
)

func TestNotFoundError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *service.NotFoundError
		expected string
	}{
		{
			name:     "typical resource",
			err:      &service.NotFoundError{Resource: "task", ID: "t-123"},
			expected: `task "t-123" not found`,
		},
		{
			name:     "task group",
			err:      &service.NotFoundError{Resource: "task_group", ID: "g-1"},
			expected: `task_group "g-1" not found`,
		},
		{
			name:     "empty ID",
			err:      &service.NotFoundError{Resource: "task", ID: ""},
			expected: `task "" not found`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestNotFoundError_implements_error(t *testing.T) {
	var err error = &service.NotFoundError{Resource: "task", ID: "x"}
	assert.Error(t, err)
}

func TestConflictError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *service.ConflictError
		expected string
	}{
		{
			name:     "identifier collision falls back to already-exists",
			err:      &service.ConflictError{Resource: "task", ID: "t-123"},
			expected: `task with id "t-123" already exists`,
		},
		{
			name:     "arming an already-running task",
			err:      &service.ConflictError{Resource: "task", ID: "t-123", Reason: "already armed"},
			expected: `task "t-123": already armed`,
		},
		{
			name:     "disarming a task that isn't armed",
			err:      &service.ConflictError{Resource: "task", ID: "t-123", Reason: "not currently running"},
			expected: `task "t-123": not currently running`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestConflictError_implements_error(t *testing.T) {
	var err error = &service.ConflictError{Resource: "task", ID: "x"}
	assert.Error(t, err)
}

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *service.ValidationError
		expected string
	}{
		{
			name:     "with field and message",
			err:      &service.ValidationError{Field: "cron", Message: "not a valid cron expression"},
			expected: `validation error for "cron": not a valid cron expression`,
		},
		{
			name:     "without field - returns message only",
			err:      &service.ValidationError{Field: "", Message: "reordering must be a permutation of the current task ids"},
			expected: "reordering must be a permutation of the current task ids",
		},
		{
			name:     "unknown callable",
			err:      &service.ValidationError{Field: "function", Message: "unknown callable \"does_not_exist\""},
			expected: `validation error for "function": unknown callable "does_not_exist"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestValidationError_implements_error(t *testing.T) {
	var err error = &service.ValidationError{Field: "x", Message: "bad"}
	assert.Error(t, err)
}

func TestUpstreamFailureError_Error(t *testing.T) {
	err := &service.UpstreamFailureError{Message: "connection refused"}
	assert.Equal(t, "connection refused", err.Error())
}

func TestInternalError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &service.InternalError{Message: "step invocation panicked", Cause: cause}
	assert.Equal(t, "step invocation panicked: boom", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := &service.InternalError{Message: "no cause"}
	assert.Equal(t, "no cause", bare.Error())
}
