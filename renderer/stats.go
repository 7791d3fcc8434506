package renderer

import "time"

type TracerStat struct {
	// The tracer id.
	Id string

	// The block height and the percentage of total frame area it represents.
	BlockH       uint32
	FramePercent float32

	// Render time for assigned block
	RenderTime time.Duration

	// Generated paths and the paths accepted by the statistics pipeline.
	Paths    uint64
	Accepted uint64
}

type FrameStats struct {
	// The frame sequence number assigned by the statistics pipeline.
	Frame uint64

	// Individual tracer stats.
	Tracers []TracerStat

	// Total render time for entire frame.
	RenderTime time.Duration
}
