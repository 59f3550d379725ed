package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidation is wrapped by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is wrapped by the entity specific not found errors.
	ErrNotFound = errors.New("not found")
	// ErrProjectNotFound is returned when a project cannot be located.
	ErrProjectNotFound = fmt.Errorf("project %w", ErrNotFound)
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = fmt.Errorf("activity %w", ErrNotFound)
	// ErrForbidden is returned when the caller may not perform the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict is returned when a transition is not allowed from the current state.
	ErrConflict = errors.New("conflict")
	// ErrStorage hides persistence failures from callers.
	ErrStorage = errors.New("storage failure")
)

// ValidationError lists the rejected input fields keyed by their wire name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	messages := make([]string, 0, len(keys))
	for _, k := range keys {
		messages = append(messages, e.Fields[k])
	}
	return strings.Join(messages, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// storageError carries the underlying cause until the operation boundary logs it.
type storageError struct {
	op    string
	cause error
}

func (e *storageError) Error() string { return fmt.Sprintf("%s: %v", e.op, e.cause) }

func (e *storageError) Unwrap() error { return e.cause }

func (e *storageError) Is(target error) bool { return target == ErrStorage }

// storeErr passes not found errors through and marks everything else as a storage failure.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrConflict) || errors.Is(err, ErrValidation) {
		return err
	}
	return &storageError{op: op, cause: err}
}
