package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
)

// ValidationError is malformed input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

// PersistenceError is a rejected remote write. The pipeline has already rolled
// the optimistic change back by the time a caller sees it.
type PersistenceError struct {
	Op  string
	IDs []string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s [%s]: %v", e.Op, strings.Join(e.IDs, ","), e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// TransportError is a lost change feed. Events missed while disconnected are
// not replayed.
type TransportError struct {
	Table string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("change feed %s: %v", e.Table, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
