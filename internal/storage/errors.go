package storage

import (
	"errors"
	"fmt"
)

// ErrHashConflict is returned when a block index is already stored with a
// different hash.
var ErrHashConflict = errors.New("stored block has a different hash")

// PersistenceError wraps a failed storage operation.
type PersistenceError struct {
	Op     string
	Target string
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func wrap(op, target string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Target: target, Err: err}
}
