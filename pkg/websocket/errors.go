package websocket

import "errors"

var (
	// ErrDuplicateConnection is returned when a connection id is registered twice.
	ErrDuplicateConnection = errors.New("connection already registered")

	// ErrNotFound is returned by lookups on unknown connection ids.
	ErrNotFound = errors.New("connection not found")
)
