package device

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/achilleasa/polaris-cir/log"
)

type DeviceType uint8

// Supported device types.
const (
	CpuDevice   DeviceType = 1 << iota
	GpuDevice              = 1 << iota
	OtherDevice            = 1 << iota
	AllDevices             = 0xFF
)

func (dt DeviceType) String() string {
	switch dt {
	case CpuDevice:
		return "CPU"
	case GpuDevice:
		return "GPU"
	case OtherDevice:
		return "Other"
	}
	panic("device: unsupported device type")
}

// A set of named kernels that can be loaded into a device.
type Program map[string]KernelFunc

// A software compute device. Kernels are executed by a pool of goroutines
// while submitted command lists are processed strictly in submission order
// by a single queue worker.
type Device struct {
	Name string
	Type DeviceType

	// Number of work-groups that may execute concurrently.
	ComputeUnits uint32

	// Max bytes that can be allocated by device buffers. A zero value
	// disables the limit.
	MemoryBudget uint64

	// Speed estimate in GFlops.
	Speed uint32

	logger log.Logger

	mu        sync.Mutex
	program   Program
	allocated uint64

	// Queue state; populated when the device is initialized.
	pending   []*CommandList
	notify    chan struct{}
	closeChan chan struct{}
	wg        sync.WaitGroup
	running   bool
	closed    bool
}

// A list of devices.
type DeviceList []*Device

// Create a new software device.
func NewDevice(name string, computeUnits uint32, memoryBudget uint64) *Device {
	if computeUnits == 0 {
		computeUnits = uint32(runtime.NumCPU())
	}
	return &Device{
		Name:         name,
		Type:         CpuDevice,
		ComputeUnits: computeUnits,
		MemoryBudget: memoryBudget,
	}
}

// Implements Stringer.
func (d *Device) String() string {
	return fmt.Sprintf(
		"Name: %s\nType: %s\nSpecs: %d computation units, %d MiB memory budget, %d GFlops approximate speed",
		d.Name,
		d.Type.String(),
		d.ComputeUnits,
		d.MemoryBudget>>20,
		d.Speed,
	)
}

// Initialize device, load the supplied programs and start the queue worker.
func (d *Device) Init(programs ...Program) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}

	if d.program == nil {
		d.program = make(Program)
	}
	for _, p := range programs {
		for name, fn := range p {
			d.program[name] = fn
		}
	}

	// Already initialized
	if d.running {
		return nil
	}

	d.logger = log.New(fmt.Sprintf("device (%s)", d.Name))
	d.notify = make(chan struct{}, 1)
	d.closeChan = make(chan struct{})
	d.running = true

	readyChan := make(chan struct{})
	d.wg.Add(1)
	go d.queueWorker(readyChan)
	<-readyChan

	return nil
}

// Load additional kernels into an initialized device.
func (d *Device) LoadProgram(p Program) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return ErrNotInitialized
	}
	for name, fn := range p {
		d.program[name] = fn
	}
	return nil
}

// Shut down the device. Any already submitted work is executed before the
// queue worker exits.
func (d *Device) Close() {
	d.mu.Lock()
	if !d.running || d.closed {
		d.closed = true
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.closeChan)
	d.mu.Unlock()

	d.wg.Wait()

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Load kernel by name.
func (d *Device) Kernel(name string) (*Kernel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil, fmt.Errorf("device (%s): could not load kernel %s: %w", d.Name, name, ErrNotInitialized)
	}

	fn, exists := d.program[name]
	if !exists {
		return nil, fmt.Errorf("device (%s): could not load kernel %s: %w", d.Name, name, ErrUnknownKernel)
	}

	return &Kernel{
		device: d,
		fn:     fn,
		name:   name,
	}, nil
}

// Create an empty buffer.
func (d *Device) Buffer(name string) *Buffer {
	return &Buffer{
		device: d,
		name:   name,
	}
}

// Create a new fence for tracking the completion of submitted work.
func (d *Device) Fence(name string) *Fence {
	return newFence(name)
}

// Get the number of bytes currently allocated by device buffers.
func (d *Device) Allocated() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated
}

// Submit a command list for execution. Submit never waits for the
// submitted work to complete.
func (d *Device) Submit(list *CommandList) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.enqueueLocked(list)
}

// Enqueue a signal command for the given fence and return the fence value
// that will be reached once all previously submitted work has completed.
func (d *Device) Signal(f *Fence) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkRunningLocked(); err != nil {
		return 0, err
	}

	target := f.record()
	list := &CommandList{name: "signal " + f.name}
	list.cmds = append(list.cmds, command{kind: cmdSignal, fence: f, value: target})

	return target, d.enqueueLocked(list)
}

func (d *Device) checkRunningLocked() error {
	if d.closed {
		return ErrDeviceClosed
	}
	if !d.running {
		return ErrNotInitialized
	}
	return nil
}

func (d *Device) enqueueLocked(list *CommandList) error {
	if err := d.checkRunningLocked(); err != nil {
		return fmt.Errorf("device (%s): could not submit %q: %w", d.Name, list.name, err)
	}

	d.pending = append(d.pending, list)
	select {
	case d.notify <- struct{}{}:
	default:
	}

	return nil
}

// Run a host-side operation on the queue worker and wait for it to complete.
// This guarantees that fn observes the effects of all previously submitted
// work. If the device has not been initialized fn runs on the calling goroutine.
func (d *Device) runOnQueue(name string, fn func() error) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fn()
	}

	doneChan := make(chan error, 1)
	list := &CommandList{name: name}
	list.cmds = append(list.cmds, command{kind: cmdHost, hostFn: fn, done: doneChan})
	if err := d.enqueueLocked(list); err != nil {
		d.mu.Unlock()
		return err
	}
	d.mu.Unlock()

	return <-doneChan
}

func (d *Device) takePending() []*CommandList {
	d.mu.Lock()
	defer d.mu.Unlock()

	lists := d.pending
	d.pending = nil
	return lists
}

func (d *Device) queueWorker(readyChan chan struct{}) {
	defer d.wg.Done()
	close(readyChan)

	closing := false
	for {
		select {
		case <-d.notify:
		case <-d.closeChan:
			closing = true
		}

		for {
			lists := d.takePending()
			if len(lists) == 0 {
				break
			}
			for _, list := range lists {
				d.execute(list)
			}
		}

		if closing {
			return
		}
	}
}

func (d *Device) reserve(name string, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.MemoryBudget != 0 && d.allocated+size > d.MemoryBudget {
		return fmt.Errorf(
			"device (%s): could not allocate buffer %s of size %d (%d of %d bytes in use): %w",
			d.Name, name, size, d.allocated, d.MemoryBudget, ErrOutOfMemory,
		)
	}
	d.allocated += size
	return nil
}

func (d *Device) free(size uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allocated -= size
}
