package device

import "errors"

var (
	ErrNotInitialized       = errors.New("device: not initialized")
	ErrDeviceClosed         = errors.New("device: device has been closed")
	ErrOutOfMemory          = errors.New("device: out of memory")
	ErrBufferNotAllocated   = errors.New("device: buffer not allocated")
	ErrBufferNotHostVisible = errors.New("device: buffer is not host visible")
	ErrBufferAlreadyMapped  = errors.New("device: buffer is already mapped")
	ErrBufferNotMapped      = errors.New("device: buffer is not mapped")
	ErrUnknownKernel        = errors.New("device: unknown kernel")
	ErrUnknownFenceTarget   = errors.New("device: fence target was never recorded")
	ErrOpenCLUnavailable    = errors.New("device: built without opencl support (use -tags opencl)")
)
