package services

import "errors"

// Operation-boundary errors. The dispatcher maps these to named denial
// events; they never crash the coordination loop.
var (
	ErrGroupBusy         = errors.New("group already has an active floor")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrDependencyFailure = errors.New("dependency failure")
)
