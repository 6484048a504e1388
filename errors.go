package voxsync

import "errors"

var (
	// ErrBodyNotFound means the handle is no longer in the registry. Tick-side callers drop
	// the stale reference and carry on.
	ErrBodyNotFound = errors.New("body not found")
	// ErrBackendInit is fatal: the physics backend could not start.
	ErrBackendInit = errors.New("physics backend init failed")
	// ErrDegenerateShape rejects shapes that enclose no volume.
	ErrDegenerateShape = errors.New("degenerate shape")
	ErrNotStarted      = errors.New("engine not started")
	ErrInvalidConfig   = errors.New("invalid config")
)
