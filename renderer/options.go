package renderer

type Options struct {
	// Frame dims.
	FrameW uint32
	FrameH uint32

	// Base seed for the tracers' random number generators.
	Seed uint32
}
