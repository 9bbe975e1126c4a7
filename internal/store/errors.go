package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when a write breaks a uniqueness constraint.
	ErrDuplicateKey = errors.New("duplicate key violation")
	// ErrUnavailable matches every infrastructure failure of the store.
	// Callers may retry the whole operation after re-validating it.
	ErrUnavailable = errors.New("store unavailable")
)

// OpError wraps an unexpected failure of a store operation.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Is reports ErrUnavailable for every OpError so callers can tell
// infrastructure failures from domain conditions.
func (e *OpError) Is(target error) bool {
	return target == ErrUnavailable
}

// translate maps gorm and driver errors onto the store's error set.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey), isDuplicateMessage(err):
		return fmt.Errorf("%s: %w", op, ErrDuplicateKey)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	}

	return &OpError{Op: op, Err: err}
}

// isDuplicateMessage catches drivers that do not translate unique
// violations into gorm.ErrDuplicatedKey.
func isDuplicateMessage(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
