package device

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/achilleasa/polaris-cir/types"
)

const (
	defaultLocalSize1D = 64
	defaultLocalSize2D = 8
)

// A KernelFunc is executed once per work-group of a dispatch. Work-groups of
// the same dispatch run concurrently on the device compute units so kernels
// must use the buffer atomics when multiple work items update the same element.
type KernelFunc func(group WorkGroup, args KernelArgs)

// A wrapper around a loaded device kernel.
type Kernel struct {
	device *Device
	fn     KernelFunc
	name   string

	mu   sync.Mutex
	args KernelArgs
}

// Get kernel name.
func (k *Kernel) Name() string {
	return k.name
}

// Free any bound arguments.
func (k *Kernel) Release() {
	k.mu.Lock()
	k.args = nil
	k.mu.Unlock()
}

// Bind arguments to kernel. The bound values are captured by any dispatch
// recorded afterwards; re-binding does not affect already recorded dispatches.
func (k *Kernel) SetArgs(args ...interface{}) error {
	for argIndex, arg := range args {
		switch arg.(type) {
		case *Buffer, int32, uint32, float32, types.Vec4, types.UVec4:
		default:
			return fmt.Errorf(
				"device (%s): could not set arg %d for kernel %s; unsupported arg type: %s",
				k.device.Name,
				argIndex,
				k.name,
				reflect.TypeOf(arg),
			)
		}
	}

	k.mu.Lock()
	k.args = append(k.args[:0], args...)
	k.mu.Unlock()
	return nil
}

func (k *Kernel) snapshotArgs() KernelArgs {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append(KernelArgs(nil), k.args...)
}

// Execute 1D kernel and wait for it to complete. If localWorkSize is equal
// to 0 then the device will pick the work-group size.
func (k *Kernel) Exec1D(offset, globalWorkSize, localWorkSize int) (time.Duration, error) {
	list := NewCommandList("exec " + k.name)
	if err := list.Dispatch1D(k, offset, globalWorkSize, localWorkSize); err != nil {
		return time.Duration(0), err
	}
	return k.device.submitAndWait(list)
}

// Execute 2D kernel and wait for it to complete. If both localWorkSizeX and
// localWorkSizeY are 0 then the device will pick the work-group size.
func (k *Kernel) Exec2D(offsetX, offsetY, globalWorkSizeX, globalWorkSizeY, localWorkSizeX, localWorkSizeY int) (time.Duration, error) {
	list := NewCommandList("exec " + k.name)
	if err := list.Dispatch2D(k, offsetX, offsetY, globalWorkSizeX, globalWorkSizeY, localWorkSizeX, localWorkSizeY); err != nil {
		return time.Duration(0), err
	}
	return k.device.submitAndWait(list)
}

// Submit a list whose last command is a dispatch and block until it completes.
func (d *Device) submitAndWait(list *CommandList) (time.Duration, error) {
	doneChan := make(chan error, 1)
	list.cmds[len(list.cmds)-1].done = doneChan

	tick := time.Now()
	if err := d.Submit(list); err != nil {
		return time.Duration(0), err
	}
	if err := <-doneChan; err != nil {
		return time.Duration(0), err
	}
	return time.Since(tick), nil
}

// The arguments captured by a recorded dispatch. The accessors panic if the
// argument at the given index has a different type; a kernel reading the
// wrong argument type is a programming error.
type KernelArgs []interface{}

func (a KernelArgs) Buffer(index int) *Buffer {
	return a[index].(*Buffer)
}

func (a KernelArgs) Uint32(index int) uint32 {
	return a[index].(uint32)
}

func (a KernelArgs) Int32(index int) int32 {
	return a[index].(int32)
}

func (a KernelArgs) Float32(index int) float32 {
	return a[index].(float32)
}

func (a KernelArgs) Vec4(index int) types.Vec4 {
	return a[index].(types.Vec4)
}

func (a KernelArgs) UVec4(index int) types.UVec4 {
	return a[index].(types.UVec4)
}

type ndRange struct {
	dims   int
	offset [2]int
	global [2]int
	local  [2]int
}

func newNDRange(dims int, offset, global, local [2]int) (ndRange, error) {
	for i := 0; i < dims; i++ {
		if global[i] <= 0 {
			return ndRange{}, fmt.Errorf("invalid global work size %v", global)
		}
		if offset[i] < 0 || local[i] < 0 {
			return ndRange{}, fmt.Errorf("invalid work offset %v or local work size %v", offset, local)
		}
	}

	switch dims {
	case 1:
		offset[1], global[1], local[1] = 0, 1, 1
		if local[0] == 0 {
			local[0] = defaultLocalSize1D
		}
	case 2:
		if local[0] == 0 && local[1] == 0 {
			local[0], local[1] = defaultLocalSize2D, defaultLocalSize2D
		} else if local[0] == 0 || local[1] == 0 {
			return ndRange{}, fmt.Errorf("invalid local work size %v", local)
		}
	default:
		return ndRange{}, fmt.Errorf("unsupported work dimension %d", dims)
	}

	for i := 0; i < 2; i++ {
		if local[i] > global[i] {
			local[i] = global[i]
		}
	}

	return ndRange{dims: dims, offset: offset, global: global, local: local}, nil
}

func (r ndRange) groups() [2]int {
	return [2]int{
		(r.global[0] + r.local[0] - 1) / r.local[0],
		(r.global[1] + r.local[1] - 1) / r.local[1],
	}
}

// A WorkGroup describes the slice of the NDRange processed by one kernel invocation.
type WorkGroup struct {
	// Group coordinates and the number of groups along each axis.
	ID        [2]int
	NumGroups [2]int

	ndr ndRange
}

// Get the linear index of this group within the dispatch.
func (g WorkGroup) Index() int {
	return g.ID[1]*g.NumGroups[0] + g.ID[0]
}

// Get the total number of groups in the dispatch.
func (g WorkGroup) Count() int {
	return g.NumGroups[0] * g.NumGroups[1]
}

// Get the local work size.
func (g WorkGroup) LocalSize() [2]int {
	return g.ndr.local
}

// Get the global work size.
func (g WorkGroup) GlobalSize() [2]int {
	return g.ndr.global
}

// Invoke fn for every work item of the group that lies inside the global
// range. The supplied coordinates include the dispatch offset.
func (g WorkGroup) ForEach(fn func(x, y int)) {
	x0 := g.ndr.offset[0] + g.ID[0]*g.ndr.local[0]
	y0 := g.ndr.offset[1] + g.ID[1]*g.ndr.local[1]
	xEnd := min(x0+g.ndr.local[0], g.ndr.offset[0]+g.ndr.global[0])
	yEnd := min(y0+g.ndr.local[1], g.ndr.offset[1]+g.ndr.global[1])

	for y := y0; y < yEnd; y++ {
		for x := x0; x < xEnd; x++ {
			fn(x, y)
		}
	}
}

// Run every work-group of a dispatch on the device compute units.
func (d *Device) dispatch(k *Kernel, args KernelArgs, ndr ndRange) error {
	numGroups := ndr.groups()
	total := numGroups[0] * numGroups[1]

	workers := int(d.ComputeUnits)
	if workers > total {
		workers = total
	}
	if workers < 1 {
		workers = 1
	}

	var (
		next     int64
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errOnce.Do(func() {
						firstErr = fmt.Errorf("device (%s): kernel %s aborted: %v", d.Name, k.name, r)
					})
				}
			}()

			for {
				g := int(atomic.AddInt64(&next, 1) - 1)
				if g >= total {
					return
				}
				k.fn(WorkGroup{
					ID:        [2]int{g % numGroups[0], g / numGroups[0]},
					NumGroups: numGroups,
					ndr:       ndr,
				}, args)
			}
		}()
	}
	wg.Wait()

	return firstErr
}

