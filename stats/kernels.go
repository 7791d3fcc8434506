package stats

import "github.com/achilleasa/polaris-cir/device"

// Kernel names.
const (
	kernelReduce   = "stats.reduce"
	kernelRayCount = "stats.rayCount"
)

// Program contains the kernels used by the statistics pipeline.
var Program = device.Program{
	kernelReduce:   reduceKernel,
	kernelRayCount: rayCountKernel,
}

// Combine the visibility and closest hit ray surfaces into a per-pixel total.
//
// Args: visibility rays, closest hit rays, ray count, width.
func rayCountKernel(group device.WorkGroup, args device.KernelArgs) {
	visibility := args.Buffer(0)
	closestHit := args.Buffer(1)
	out := args.Buffer(2)
	width := int(args.Uint32(3))

	group.ForEach(func(x, y int) {
		i := y*width + x
		out.StoreUint32(i, visibility.LoadUint32(i)+closestHit.LoadUint32(i))
	})
}
