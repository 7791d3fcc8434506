package renderer

import "errors"

var (
	ErrNoTracers        = errors.New("renderer: no tracers attached")
	ErrNoPipeline       = errors.New("renderer: no statistics pipeline attached")
	ErrInvalidFrameSize = errors.New("renderer: invalid frame dimensions")
	ErrTracerFailed     = errors.New("renderer: tracer failed while rendering")
)
