// Package apperr holds transport-neutral error kinds shared by the HTTP and MCP layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidInput  = errors.New("invalid input")
	ErrSessionClosed = errors.New("session closed")
)
