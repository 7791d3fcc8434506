package stats

import (
	"fmt"
	"math"

	"github.com/achilleasa/polaris-cir/device"
	"github.com/achilleasa/polaris-cir/types"
)

// The number of 32-bit words in a reduction result slot.
const slotWords = 4

// Number of elements combined by a single work-group per reduction pass.
const reduceGroupSize = 256

// ReduceOp selects the associative operation applied by the reduction engine.
type ReduceOp uint8

const (
	OpSum ReduceOp = iota
	OpMin
	OpMax

	numReduceOps
)

func (op ReduceOp) String() string {
	if op < numReduceOps {
		return reduceOps[op].name
	}
	return fmt.Sprintf("ReduceOp(%d)", uint8(op))
}

type reduceFuncs struct {
	name   string
	uint   func(a, b uint64) uint64
	float  func(a, b float32) float32
	uintID uint64
	fltID  float32
}

var reduceOps = [numReduceOps]reduceFuncs{
	OpSum: {
		name:  "sum",
		uint:  func(a, b uint64) uint64 { return a + b },
		float: func(a, b float32) float32 { return a + b },
	},
	OpMin: {
		name: "min",
		uint: func(a, b uint64) uint64 {
			if b < a {
				return b
			}
			return a
		},
		float:  func(a, b float32) float32 { return float32(math.Min(float64(a), float64(b))) },
		uintID: math.MaxUint64,
		fltID:  float32(math.Inf(1)),
	},
	OpMax: {
		name: "max",
		uint: func(a, b uint64) uint64 {
			if b > a {
				return b
			}
			return a
		},
		float: func(a, b float32) float32 { return float32(math.Max(float64(a), float64(b))) },
		fltID: float32(math.Inf(-1)),
	},
}

// Tree-reduce vals in place by repeatedly folding the upper half onto the lower half.
func treeReduce[T any](vals []T, fn func(a, b T) T) T {
	for n := len(vals); n > 1; n = (n + 1) / 2 {
		stride := (n + 1) / 2
		for i := 0; i < n/2; i++ {
			vals[i] = fn(vals[i], vals[i+stride])
		}
	}
	return vals[0]
}

// The reduce kernel combines up to reduceGroupSize inputs per work-group and
// writes one result slot per group.
//
// Args: src, element type, input count, inputs are slots (0/1), op, dst, first dst slot.
func reduceKernel(group device.WorkGroup, args device.KernelArgs) {
	src := args.Buffer(0)
	elem := ElementType(args.Uint32(1))
	count := int(args.Uint32(2))
	fromSlots := args.Uint32(3) != 0
	fns := reduceOps[args.Uint32(4)]
	dst := args.Buffer(5)
	dstSlot := (int(args.Uint32(6)) + group.Index()) * slotWords

	base := group.ID[0] * group.LocalSize()[0]
	n := min(group.LocalSize()[0], count-base)
	if n <= 0 {
		return
	}

	switch elem {
	case Uint32Element:
		vals := make([]uint64, n)
		for i := range vals {
			if fromSlots {
				vals[i] = src.LoadUVec4((base + i) * slotWords).Uint64()
			} else {
				vals[i] = uint64(src.LoadUint32(base + i))
			}
		}
		dst.StoreUVec4(dstSlot, types.SplitUint64(treeReduce(vals, fns.uint)))
	case Float32Element:
		vals := make([]float32, n)
		for i := range vals {
			if fromSlots {
				vals[i] = src.LoadFloat32((base + i) * slotWords)
			} else {
				vals[i] = src.LoadFloat32(base + i)
			}
		}
		dst.StoreVec4(dstSlot, types.Vec4{treeReduce(vals, fns.float), 0, 0, 0})
	case Vec4Element:
		// Vec4 elements and result slots share the same layout
		vals := make([]types.Vec4, n)
		for i := range vals {
			vals[i] = src.LoadVec4((base + i) * slotWords)
		}
		dst.StoreVec4(dstSlot, treeReduce(vals, func(a, b types.Vec4) types.Vec4 {
			for c := 0; c < 4; c++ {
				a[c] = fns.float(a[c], b[c])
			}
			return a
		}))
	}
}

// ReductionEngine reduces counter surfaces into 4-wide result slots of a
// destination buffer. Reductions are recorded into a caller supplied command
// list; the engine performs no host synchronization.
type ReductionEngine struct {
	device *device.Device
	kernel *device.Kernel

	// Ping-pong buffers for intermediate partial results.
	scratch [2]*device.Buffer
}

// Create a reduction engine for the given device.
func NewReductionEngine(dev *device.Device) (*ReductionEngine, error) {
	if err := dev.LoadProgram(Program); err != nil {
		return nil, err
	}
	kernel, err := dev.Kernel(kernelReduce)
	if err != nil {
		return nil, err
	}

	return &ReductionEngine{
		device: dev,
		kernel: kernel,
		scratch: [2]*device.Buffer{
			dev.Buffer("reduce scratch 0"),
			dev.Buffer("reduce scratch 1"),
		},
	}, nil
}

// Release the engine's device resources.
func (e *ReductionEngine) Release() {
	for _, buf := range e.scratch {
		buf.Release()
	}
	e.kernel.Release()
}

// Record the passes needed to reduce src with op into slot dstSlot of dst.
// Multiple reductions into disjoint slots of the same destination can be
// recorded into one list. An unbound surface is reported as ErrSurfaceUnbound
// and nothing is recorded.
func (e *ReductionEngine) Reduce(list *device.CommandList, src *CounterSurface, op ReduceOp, dst *device.Buffer, dstSlot int) error {
	if op >= numReduceOps {
		return fmt.Errorf("%w: %d", ErrUnsupportedOp, op)
	}
	if src == nil || !src.Bound() || src.Elements() == 0 {
		name := "<nil>"
		if src != nil {
			name = src.name
		}
		return fmt.Errorf("%w: %s", ErrSurfaceUnbound, name)
	}
	if dstSlot < 0 || (dstSlot+1)*slotWords > dst.Len() {
		return fmt.Errorf("%w: slot %d of %s", ErrSlotOutOfRange, dstSlot, dst.Name())
	}

	count := src.Elements()
	partials := (count + reduceGroupSize - 1) / reduceGroupSize
	if partials > 1 {
		if err := e.ensureScratch(partials); err != nil {
			return err
		}
	}

	in, fromSlots := src.buf, uint32(0)
	for pass := 0; ; pass++ {
		groups := (count + reduceGroupSize - 1) / reduceGroupSize

		out, outSlot := dst, dstSlot
		if groups > 1 {
			out, outSlot = e.scratch[pass%2], 0
		}

		err := e.kernel.SetArgs(in, uint32(src.elem), uint32(count), fromSlots, uint32(op), out, uint32(outSlot))
		if err != nil {
			return err
		}
		if err = list.Dispatch1D(e.kernel, 0, count, reduceGroupSize); err != nil {
			return err
		}

		if groups == 1 {
			return nil
		}
		in, fromSlots, count = out, 1, groups
	}
}

// Make sure both scratch buffers can hold the given number of result slots.
func (e *ReductionEngine) ensureScratch(slots int) error {
	size := slots * slotWords * 4
	for _, buf := range e.scratch {
		if buf.Allocated() && buf.Size() >= size {
			continue
		}
		if err := buf.Allocate(size, device.MemReadWrite); err != nil {
			return err
		}
	}
	return nil
}
