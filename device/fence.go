package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// A Fence tracks device progress as a monotonically increasing counter.
// Device.Signal records a new target value after all previously submitted
// work; Wait blocks until the device reports reaching it.
type Fence struct {
	name string

	mu        sync.Mutex
	recorded  uint64
	completed uint64

	// Closed and replaced each time the completed value advances.
	changed chan struct{}
}

func newFence(name string) *Fence {
	return &Fence{
		name:    name,
		changed: make(chan struct{}),
	}
}

// Get fence name.
func (f *Fence) Name() string {
	return f.name
}

// Get the last value reached by the device.
func (f *Fence) Completed() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

// Get the last target value handed out by Device.Signal.
func (f *Fence) Recorded() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recorded
}

// Block until the fence reaches target or ctx is done.
func (f *Fence) Wait(ctx context.Context, target uint64) error {
	for {
		f.mu.Lock()
		if target > f.recorded {
			f.mu.Unlock()
			return fmt.Errorf("fence %s: wait for %d (last recorded %d): %w", f.name, target, f.recorded, ErrUnknownFenceTarget)
		}
		if f.completed >= target {
			f.mu.Unlock()
			return nil
		}
		changed := f.changed
		f.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return fmt.Errorf("fence %s: wait for %d: %w", f.name, target, ctx.Err())
		}
	}
}

// Block until the fence reaches target or the timeout expires.
func (f *Fence) WaitTimeout(target uint64, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return f.Wait(ctx, target)
}

func (f *Fence) record() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded++
	return f.recorded
}

func (f *Fence) advance(value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value <= f.completed {
		return
	}
	f.completed = value
	close(f.changed)
	f.changed = make(chan struct{})
}
