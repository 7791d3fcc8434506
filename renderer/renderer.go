package renderer

// A Renderer drives the statistics pipeline through complete frames using
// a set of tracers as path producers.
type Renderer interface {
	// Open a statistics frame, trace all of its rows and close it. The
	// frame data can be read back from the pipeline once Render returns.
	Render() error

	// Shutdown renderer and any attached tracer. The pipeline is owned by
	// the caller and is left open.
	Close()

	// Get the tracer block assignment and timings of the last rendered frame.
	Stats() FrameStats
}
