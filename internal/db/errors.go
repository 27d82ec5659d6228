package db

import "errors"

// ErrNotFound is returned when a requested record does not exist. Callers
// that need to distinguish a missing record from a store failure check it
// with errors.Is.
var ErrNotFound = errors.New("record not found")
