package service

import "errors"

// Error definitions for the service package.
var (
	ErrEmptyText     = errors.New("text is required")
	ErrInvalidEngine = errors.New("invalid engine")
)
