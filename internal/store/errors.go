package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a write violates a unique index.
var ErrDuplicate = errors.New("duplicate")
