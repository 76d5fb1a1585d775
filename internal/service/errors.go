package service

import "fmt"

// NotFoundError is returned when a requested resource does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ConflictError is returned when a resource is in a state incompatible with
// the requested operation: arming an already-armed task, disarming one
// that isn't armed, reusing an identifier, and similar state conflicts.
// Reason describes the specific incompatibility; when empty, Error falls
// back to an "already exists" message for the identifier-collision case.
type ConflictError struct {
	Resource string
	ID       string
	Reason   string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %q: %s", e.Resource, e.ID, e.Reason)
	}
	return fmt.Sprintf("%s with id %q already exists", e.Resource, e.ID)
}

// ValidationError is returned when request data fails validation: an
// unparseable cron expression, a missing trigger, a non-permutation
// reorder, an unknown callable name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for %q: %s", e.Field, e.Message)
	}
	return e.Message
}

// UpstreamFailureError reports that a task's callable failed. TaskService.
// Execute returns it to the control plane, which maps it to 502. Inside a
// pipeline, HTTP action failures do not produce it: they surface as a
// {success:false, error} step result and do not halt the pipeline.
type UpstreamFailureError struct {
	Message string
}

func (e *UpstreamFailureError) Error() string { return e.Message }

// InternalError wraps an unexpected failure during task or pipeline
// execution. GroupService.ExecuteNow returns it when dispatching a run
// fails unexpectedly; the control plane maps it to 500.
type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *InternalError) Unwrap() error { return e.Cause }
