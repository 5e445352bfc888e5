package errors

import (
	"errors"
)

// Common error types for the app lock subsystem
var (
	ErrUserNotFound = errors.New("user not found")
)
