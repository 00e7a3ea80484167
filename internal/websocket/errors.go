// internal/websocket/errors.go
package websocket

import "errors"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrHubBusy      = errors.New("websocket hub is busy")
)
