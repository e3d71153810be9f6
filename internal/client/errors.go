package client

import "errors"

var (
	ErrRejected       = errors.New("client: join rejected")
	ErrDisconnected   = errors.New("client: disconnected by server")
	ErrConnectionLost = errors.New("client: connection lost")
	ErrHandshake      = errors.New("client: handshake failed")
	ErrInvalidConfig  = errors.New("client: invalid configuration")
)
