package session

import "fmt"

// NotFoundError is returned when an operation names a session id that
// does not exist in the manager.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session: no session with id %q", e.ID)
}

// AlreadyExistsError is returned by CreateSession when id is already
// registered (spec §4.8 "Creating a session with an existing id fails").
type AlreadyExistsError struct {
	ID string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("session: session %q already exists", e.ID)
}

// DefaultProtectedError is returned when a caller attempts to destroy
// the default session (spec §4.8 "always exists and cannot be
// destroyed").
type DefaultProtectedError struct{}

func (e *DefaultProtectedError) Error() string {
	return "session: the default session cannot be destroyed"
}

// InvalidNameError is returned by save/load when name is not
// filesystem-safe (spec §6 "names are filesystem-safe or rejected").
type InvalidNameError struct {
	Name string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("session: invalid session name %q", e.Name)
}

// VariableNotFoundError is returned by get/delete/transfer variable
// operations naming an undeclared variable.
type VariableNotFoundError struct {
	Name string
}

func (e *VariableNotFoundError) Error() string {
	return fmt.Sprintf("session: no variable named %q", e.Name)
}

// RewindOutOfRangeError is returned when rewind(n) names more entries
// back than the session's history actually holds.
type RewindOutOfRangeError struct {
	Requested int
	Available int
}

func (e *RewindOutOfRangeError) Error() string {
	return fmt.Sprintf("session: rewind(%d) requested but only %d history entries available", e.Requested, e.Available)
}

// UnsupportedTransferError is returned by TransferVariable when the
// source value's kind is bound to heap identity (classes, instances,
// functions, ...) and so cannot be re-materialized in a different
// heap — only "data" kinds cross session boundaries (spec §4.8
// transfer_variable's "no HeapId escapes" rule).
type UnsupportedTransferError struct {
	Kind string
}

func (e *UnsupportedTransferError) Error() string {
	return fmt.Sprintf("session: values of kind %s cannot cross a session boundary", e.Kind)
}
