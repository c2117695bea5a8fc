package interfaces

import "errors"

// ErrNotFound is returned when a queried record does not exist. Callers
// match with errors.Is after the mongodb layer wraps it with context.
var ErrNotFound = errors.New("record not found")
