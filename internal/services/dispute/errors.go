package dispute

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrDisputeNotFound     = errors.New("dispute not found")
	ErrDisputeAlreadyOpen  = errors.New("transaction already has an open dispute")
	ErrNotDisputable       = errors.New("transaction cannot be disputed in its current state")
	ErrInvalidAdvance      = errors.New("invalid dispute status advance")
	ErrConcurrentResolution = errors.New("dispute was modified concurrently")
	ErrResolutionRequired  = errors.New("resolution notes are required to close a dispute")
)
