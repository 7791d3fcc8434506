package tracer

import (
	"time"

	"github.com/achilleasa/polaris-cir/stats"
)

// A unit of work that is processed by a tracer.
type BlockRequest struct {
	// The frame this block belongs to.
	Frame uint64

	// Block start row and height.
	BlockY uint32
	BlockH uint32

	// A random seed value for the tracer's random number generator.
	Seed uint32

	// The write-only statistics handles for the current frame.
	Handles *stats.FrameHandles

	// A channel to signal on block completion with the number of completed rows.
	DoneChan chan<- uint32

	// A channel to signal if an error occurs.
	ErrChan chan<- error
}

// Tracer statistics.
type Stats struct {
	// The traced block height.
	BlockH uint32

	// The time for tracing this block.
	RenderTime time.Duration

	// The number of generated paths and the number of paths that were
	// accepted by the statistics handles.
	Paths    uint64
	Accepted uint64
}

type Tracer interface {
	// Get tracer id.
	Id() string

	// Get the computation speed estimate relative to the other tracers.
	Speed() uint32

	// Enqueue block request.
	Enqueue(BlockRequest)

	// Retrieve last block statistics.
	Stats() *Stats

	// Shutdown and cleanup tracer.
	Close()
}
