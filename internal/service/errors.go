package service

import (
	"errors"

	"polimarket/internal/store"
)

var (
	ErrNotFound          = store.ErrNotFound
	ErrInsufficientStock = store.ErrInsufficientStock
	ErrConflict          = store.ErrDuplicate

	ErrUnauthorized      = errors.New("vendor not authorized")
	ErrInvalidClient     = errors.New("invalid client")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidArgument   = errors.New("invalid argument")
)
