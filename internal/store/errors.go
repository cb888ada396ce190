package store

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicate          = errors.New("duplicate")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrOutOfStock         = errors.New("out of stock")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrConflict           = errors.New("conflicting concurrent update")
	ErrConstraint         = errors.New("violates constraint")
	ErrConversationClosed = errors.New("conversation is closed")
)

// Postgres SQLSTATE codes the store reacts to.
const (
	pqInvalidTextRepr      = "22P02"
	pqUniqueViolation      = "23505"
	pqForeignKeyViolation  = "23503"
	pqCheckViolation       = "23514"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// classify maps driver errors onto the store's sentinel errors, keeping the cause.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqInvalidTextRepr:
			// A malformed id cannot match any row.
			return &classifiedError{sentinel: ErrNotFound, cause: err}
		case pqUniqueViolation:
			return &classifiedError{sentinel: ErrDuplicate, cause: err}
		case pqForeignKeyViolation:
			return &classifiedError{sentinel: ErrNotFound, cause: err}
		case pqCheckViolation:
			return &classifiedError{sentinel: ErrConstraint, cause: err}
		case pqSerializationFailure, pqDeadlockDetected:
			return &classifiedError{sentinel: ErrConflict, cause: err}
		}
	}
	return err
}

type classifiedError struct {
	sentinel error
	cause    error
}

func (e *classifiedError) Error() string {
	return e.sentinel.Error() + ": " + e.cause.Error()
}

func (e *classifiedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

// IsRetryable reports whether a caller may safely re-run the failed operation.
func IsRetryable(err error) bool {
	return errors.Is(classify(err), ErrConflict)
}
