package store

import (
	"errors"

	"github.com/lib/pq"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicate         = errors.New("duplicate")
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

// ClassifyError decides whether a failed transaction may be retried.
func ClassifyError(err error) ErrorClass {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		}
	}
	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	switch ClassifyError(err) {
	case ErrorClassTransient, ErrorClassDeadlock, ErrorClassSerialization:
		return true
	}
	return false
}

// translate maps constraint violations onto the package sentinels.
func translate(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "23505":
		return &constraintError{sentinel: ErrDuplicate, err: pqErr}
	case "23514":
		if pqErr.Constraint == "product_stock_available_check" {
			return &constraintError{sentinel: ErrInsufficientStock, err: pqErr}
		}
	case "23503":
		return &constraintError{sentinel: ErrNotFound, err: pqErr}
	}
	return err
}

type constraintError struct {
	sentinel error
	err      *pq.Error
}

func (e *constraintError) Error() string {
	return e.sentinel.Error() + ": " + e.err.Message
}

func (e *constraintError) Is(target error) bool { return target == e.sentinel }

func (e *constraintError) Unwrap() error { return e.err }
