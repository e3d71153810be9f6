package server

import "errors"

// Server-specific errors
var (
	ErrServerClosed         = errors.New("server is closed")
	ErrServerNotRunning     = errors.New("server is not running")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrServerFull           = errors.New("server is full")
	ErrVersionMismatch      = errors.New("version mismatch")
	ErrNotAssociated        = errors.New("unreliable channel not associated")
	ErrInvalidConfig        = errors.New("invalid server configuration")
	ErrListenerFailed       = errors.New("failed to create listener")
)
