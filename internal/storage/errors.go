package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an item or upload reference does not exist.
var ErrNotFound = errors.New("not found")

// StoreError reports a failed durable operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
