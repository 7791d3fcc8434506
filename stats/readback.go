package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/achilleasa/polaris-cir/device"
)

// ReadbackChannel is a host-visible buffer written exclusively by device
// commands. Its contents can only be accessed through Read, which waits for
// the fence target recorded after the producing work was submitted.
type ReadbackChannel struct {
	device *device.Device
	buf    *device.Buffer
	fence  *device.Fence

	// Fence value that marks the completion of the latest submitted frame; 0 if none.
	target uint64
}

// Create a readback channel. Storage is allocated by Ensure.
func NewReadbackChannel(dev *device.Device, name string) *ReadbackChannel {
	return &ReadbackChannel{
		device: dev,
		buf:    dev.Buffer(name),
		fence:  dev.Fence(name),
	}
}

// Get the device buffer that commands should copy into.
func (r *ReadbackChannel) Buffer() *device.Buffer {
	return r.buf
}

// Make sure the channel can hold size bytes. The buffer is only reallocated
// when its size changes.
func (r *ReadbackChannel) Ensure(size int) error {
	if r.buf.Allocated() && r.buf.Size() == size {
		return nil
	}
	return r.buf.Allocate(size, device.MemHostVisible)
}

// Enqueue a fence signal after all previously submitted work.
func (r *ReadbackChannel) Signal() error {
	target, err := r.device.Signal(r.fence)
	if err != nil {
		return err
	}
	r.target = target
	return nil
}

// Check whether a signal is pending.
func (r *ReadbackChannel) Pending() bool {
	return r.target != 0 && r.fence.Completed() < r.target
}

// Block until the latest signal is reached or the timeout expires.
func (r *ReadbackChannel) Wait(ctx context.Context, timeout time.Duration) error {
	if r.target == 0 {
		return ErrReadbackNotReady
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.fence.Wait(waitCtx, r.target)
}

// Wait for the latest signal and invoke fn with a mapping of the channel
// buffer. The buffer is unmapped when fn returns, on every path.
func (r *ReadbackChannel) Read(ctx context.Context, timeout time.Duration, fn func(*device.Mapping) error) error {
	if err := r.Wait(ctx, timeout); err != nil {
		return fmt.Errorf("stats: readback wait: %w", err)
	}

	m, err := r.buf.Map()
	if err != nil {
		return err
	}
	defer func() {
		_ = r.buf.Unmap()
	}()

	return fn(m)
}

// Release the channel storage.
func (r *ReadbackChannel) Release() {
	r.buf.Release()
}
