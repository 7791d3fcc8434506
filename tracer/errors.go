package tracer

import "errors"

var (
	ErrBusy          = errors.New("tracer: worker is busy")
	ErrNoHandles     = errors.New("tracer: block request has no statistics handles")
	ErrInvalidParams = errors.New("tracer: invalid scene parameters")
)
