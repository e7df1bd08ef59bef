package ipc

import "errors"

// IPC error taxonomy. All are returned to callers; a queue exceeding
// its bound is a logic defect and panics instead.
var (
	ErrInvalidEndpoint  = errors.New("invalid endpoint")
	ErrNotConnected     = errors.New("endpoint not connected")
	ErrQueueFull        = errors.New("queue full")
	ErrQueueEmpty       = errors.New("queue empty")
	ErrInvalidMessage   = errors.New("invalid message")
	ErrInvalidTransfer  = errors.New("invalid capability transfer")
	ErrBufferTooSmall   = errors.New("buffer too small")
	ErrEndpointClosed   = errors.New("endpoint closed")
	ErrPermissionDenied = errors.New("permission denied")
	ErrTimeout          = errors.New("timeout")
)
