package renderer

import (
	"fmt"
	"time"

	"github.com/achilleasa/polaris-cir/log"
	"github.com/achilleasa/polaris-cir/stats"
	"github.com/achilleasa/polaris-cir/tracer"
)

// A renderer that drives the statistics pipeline through a frame: it opens
// the frame, splits it into blocks that are traced in parallel by the
// attached tracers and closes the frame once all blocks complete.
type defaultRenderer struct {
	logger log.Logger

	options   Options
	pipeline  *stats.Pipeline
	scheduler tracer.BlockScheduler
	tracers   []tracer.Tracer

	frameStats FrameStats
}

// Create a new default renderer using the specified block scheduler and tracers.
func NewDefault(pipeline *stats.Pipeline, scheduler tracer.BlockScheduler, tracers []tracer.Tracer, opts Options) (Renderer, error) {
	if pipeline == nil {
		return nil, ErrNoPipeline
	}
	if len(tracers) == 0 {
		return nil, ErrNoTracers
	}
	if opts.FrameW == 0 || opts.FrameH == 0 {
		return nil, fmt.Errorf("%w %dx%d", ErrInvalidFrameSize, opts.FrameW, opts.FrameH)
	}
	if scheduler == nil {
		scheduler = tracer.PerfectScheduler()
	}

	return &defaultRenderer{
		logger:    log.New("renderer"),
		options:   opts,
		pipeline:  pipeline,
		scheduler: scheduler,
		tracers:   tracers,
		frameStats: FrameStats{
			Tracers: make([]TracerStat, len(tracers)),
		},
	}, nil
}

// Shutdown renderer and any attached tracer.
func (r *defaultRenderer) Close() {
	for _, tr := range r.tracers {
		tr.Close()
	}
	r.tracers = nil
}

// Get render statistics.
func (r *defaultRenderer) Stats() FrameStats {
	return r.frameStats
}

// Render frame. The frame is always closed, even if a tracer fails, so
// the pipeline is ready for the next frame.
func (r *defaultRenderer) Render() error {
	start := time.Now()

	handles, err := r.pipeline.BeginFrame(r.options.FrameW, r.options.FrameH)
	if err != nil {
		return err
	}
	frame := r.pipeline.Frame()

	blockAssignment := r.scheduler.Schedule(r.tracers, r.options.FrameH)

	doneChan := make(chan uint32, len(r.tracers))
	errChan := make(chan error, len(r.tracers))
	var blockY uint32
	pending := 0
	for idx, tr := range r.tracers {
		if blockAssignment[idx] == 0 {
			continue
		}
		tr.Enqueue(tracer.BlockRequest{
			Frame:    frame,
			BlockY:   blockY,
			BlockH:   blockAssignment[idx],
			Seed:     r.options.Seed,
			Handles:  handles,
			DoneChan: doneChan,
			ErrChan:  errChan,
		})
		blockY += blockAssignment[idx]
		pending++
	}

	// Producers write through the frame handles so every block must be
	// complete before the frame can be closed.
	var renderErr error
	for ; pending > 0; pending-- {
		select {
		case <-doneChan:
		case err = <-errChan:
			r.logger.Errorf("frame %d: %v", frame, err)
			if renderErr == nil {
				renderErr = fmt.Errorf("%w: %w", ErrTracerFailed, err)
			}
		}
	}

	if err = r.pipeline.EndFrame(); err != nil {
		return err
	}
	if renderErr != nil {
		return renderErr
	}

	r.frameStats.Frame = frame
	r.frameStats.RenderTime = time.Since(start)
	for idx, tr := range r.tracers {
		stat := tr.Stats()
		r.frameStats.Tracers[idx] = TracerStat{
			Id:           tr.Id(),
			BlockH:       blockAssignment[idx],
			FramePercent: 100.0 * float32(blockAssignment[idx]) / float32(r.options.FrameH),
			RenderTime:   stat.RenderTime,
			Paths:        stat.Paths,
			Accepted:     stat.Accepted,
		}
	}

	r.logger.Debugf("frame %d rendered in %s", frame, r.frameStats.RenderTime)
	return nil
}
