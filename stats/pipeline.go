package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/achilleasa/polaris-cir/device"
	"github.com/achilleasa/polaris-cir/log"
	"github.com/prometheus/client_golang/prometheus"
)

// FrameState tracks where the pipeline is in the frame lifecycle.
type FrameState uint8

const (
	// No frame data is pending or available.
	Idle FrameState = iota
	// Between BeginFrame and EndFrame; producers are writing.
	Running
	// EndFrame submitted the frame work; its data has not been read back yet.
	WaitingForData
	// The frame data has been read back and a snapshot is available.
	DataValid
)

func (s FrameState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case WaitingForData:
		return "waiting for data"
	case DataValid:
		return "data valid"
	}
	return fmt.Sprintf("FrameState(%d)", uint8(s))
}

// Word offsets of the readback regions for a frame.
type readbackLayout struct {
	histogram int
	raw       int
	size      int
}

// Pipeline collects per-frame statistics on a device. A frame is bracketed
// by BeginFrame and EndFrame; the collected data is read back lazily the
// first time a consumer asks for it.
type Pipeline struct {
	logger  log.Logger
	device  *device.Device
	metrics *Metrics

	mu sync.Mutex

	// Options applied at the next BeginFrame and the options of the current frame.
	opts      Options
	frameOpts Options

	state    FrameState
	frame    uint64
	frameErr error
	width    uint32
	height   uint32
	layout   readbackLayout

	surfaces  [NumChannels]*CounterSurface
	rayCount  *CounterSurface
	rayKernel *device.Kernel
	reducer   *ReductionEngine
	histogram *HistogramAccumulator
	collector *RawRecordCollector
	readback  *ReadbackChannel

	snapshot Snapshot
	hist     HistogramSnapshot
	records  []PathRecord
}

// Create a statistics pipeline for an initialized device. Metrics are
// registered with reg; a nil registerer leaves them unregistered.
func NewPipeline(dev *device.Device, opts Options, reg prometheus.Registerer) (*Pipeline, error) {
	if dev == nil {
		return nil, ErrNoDevice
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	reducer, err := NewReductionEngine(dev)
	if err != nil {
		return nil, err
	}
	rayKernel, err := dev.Kernel(kernelRayCount)
	if err != nil {
		return nil, err
	}
	histogram, err := NewHistogramAccumulator(dev, opts.Histogram)
	if err != nil {
		return nil, err
	}
	collector, err := NewRawRecordCollector(dev, opts.MaxRecords)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		logger:    log.New("stats pipeline"),
		device:    dev,
		metrics:   NewMetrics(reg),
		opts:      opts,
		frameOpts: opts,
		rayCount:  NewCounterSurface(dev, "rayCount", Uint32Element),
		rayKernel: rayKernel,
		reducer:   reducer,
		histogram: histogram,
		collector: collector,
		readback:  NewReadbackChannel(dev, "stats readback"),
	}
	for ch := Channel(0); ch < NumChannels; ch++ {
		p.surfaces[ch] = NewCounterSurface(dev, ch.String(), ch.ElementType())
	}

	return p, nil
}

// Get the pipeline metrics.
func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

// Get a copy of the active options.
func (p *Pipeline) Options() Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts
}

// Get the current frame state.
func (p *Pipeline) State() FrameState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Get the sequence number of the latest frame.
func (p *Pipeline) Frame() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frame
}

// Get the error that invalidated the latest frame or nil if the frame is valid.
func (p *Pipeline) FrameError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frameErr
}

// Enable or disable instrumentation starting with the next frame.
func (p *Pipeline) SetEnabled(enabled bool) {
	p.mu.Lock()
	p.opts.Enabled = enabled
	p.mu.Unlock()
}

// Select the collection mode for the next frame.
func (p *Pipeline) SetMode(mode Mode) error {
	return p.update(func(opts *Options) {
		opts.Mode = mode
	})
}

// Replace the histogram configuration for the next frame.
func (p *Pipeline) SetHistogramConfig(cfg HistogramConfig) error {
	return p.update(func(opts *Options) {
		opts.Histogram = cfg
	})
}

// Set the raw record capacity for the next frame.
func (p *Pipeline) SetMaxRecords(maxRecords uint32) error {
	return p.update(func(opts *Options) {
		opts.MaxRecords = maxRecords
	})
}

// Replace the record filter for the next frame.
func (p *Pipeline) SetFilter(filter Filter) error {
	return p.update(func(opts *Options) {
		opts.Filter = filter
	})
}

// Replace the static channel parameters for the next frame.
func (p *Pipeline) SetStaticParams(params StaticParameters) error {
	return p.update(func(opts *Options) {
		opts.Static = params
	})
}

// Set whether per-frame diagnostics are logged.
func (p *Pipeline) SetDetailedLogging(enabled bool) {
	p.mu.Lock()
	p.opts.DetailedLogging = enabled
	p.mu.Unlock()
}

// Apply fn to a copy of the options and keep the result only if it
// validates. Rejected updates leave the previous options in effect.
func (p *Pipeline) update(fn func(*Options)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.opts
	fn(&next)
	if err := next.Validate(); err != nil {
		p.metrics.ConfigRejections.Inc()
		p.logger.Errorf("rejected configuration update; keeping previous configuration: %v", err)
		return err
	}
	p.opts = next
	return nil
}

// Report frame state misuse.
func (p *Pipeline) misuse(op string) error {
	err := fmt.Errorf("%w: %s while %s", ErrInvalidState, op, p.state)
	if p.frameOpts.Debug {
		panic(err)
	}
	return err
}

// Start a new frame with the given dimensions. Any previous snapshot is
// invalidated. A frame whose data was never read back is discarded.
//
// If the device resources for the frame cannot be allocated, the frame is
// marked invalid and the returned handles are inactive; the error is
// available through FrameError and allocation is retried on the next frame.
func (p *Pipeline) BeginFrame(width, height uint32) (*FrameHandles, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Running {
		return nil, p.misuse("BeginFrame")
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("stats: invalid frame dimensions %dx%d", width, height)
	}
	if p.state == WaitingForData {
		p.metrics.DiscardedFrames.Inc()
		p.logger.Debugf("discarding frame %d; its data was never read back", p.frame)
	}

	// Device buffers may only be reallocated once pending work has completed
	if err := p.drain(); err != nil {
		return nil, err
	}

	p.frame++
	p.frameErr = nil
	p.snapshot, p.hist, p.records = Snapshot{}, HistogramSnapshot{}, nil
	p.frameOpts = p.opts
	p.width, p.height = width, height
	p.state = Running

	handles := &FrameHandles{width: width, height: height, filter: p.frameOpts.Filter}
	if !p.frameOpts.Enabled {
		return handles, nil
	}

	if err := p.allocate(); err != nil {
		p.invalidate(err)
		return handles, nil
	}

	list := device.NewCommandList(fmt.Sprintf("begin frame %d", p.frame))
	if err := p.recordClear(list); err != nil {
		p.invalidate(err)
		return handles, nil
	}
	if err := p.device.Submit(list); err != nil {
		p.state = Idle
		return nil, err
	}

	if p.frameOpts.Mode.aggregate() {
		for ch, surface := range p.surfaces {
			handles.surfaces[ch] = surface.Buffer()
		}
		handles.histogram = p.histogram.writer(p.frameOpts.Filter, p.frameOpts.Static)
	}
	if p.frameOpts.Mode.raw() {
		handles.records = p.collector.writer()
	}
	return handles, nil
}

// Wait for any submitted work to complete.
func (p *Pipeline) drain() error {
	if !p.readback.Pending() {
		return nil
	}
	if err := p.readback.Wait(context.Background(), p.frameOpts.ReadbackTimeout); err != nil {
		return fmt.Errorf("stats: waiting for frame %d to complete: %w", p.frame, err)
	}
	return nil
}

// Mark the current frame as invalid.
func (p *Pipeline) invalidate(err error) {
	p.frameErr = fmt.Errorf("%w: frame %d: %w", ErrFrameInvalid, p.frame, err)
	p.metrics.InvalidFrames.Inc()
	p.logger.Warningf("statistics for frame %d are invalid: %v", p.frame, err)
}

// Allocate the resources needed by the active collection paths and release
// the ones that are not needed.
func (p *Pipeline) allocate() error {
	opts := p.frameOpts

	p.layout = readbackLayout{size: int(NumChannels) * slotWords}
	if opts.Mode.aggregate() {
		for _, surface := range p.surfaces {
			if err := surface.Resize(p.width, p.height); err != nil {
				return err
			}
		}
		if err := p.histogram.Configure(opts.Histogram); err != nil {
			return err
		}
		if err := p.histogram.Ensure(); err != nil {
			return err
		}
		p.layout.histogram = p.layout.size
		p.layout.size += p.histogram.readbackSize() / 4
	} else {
		for _, surface := range p.surfaces {
			surface.Release()
		}
		p.rayCount.Release()
		p.histogram.Release()
	}

	if opts.Mode.raw() {
		if err := p.collector.SetMaxRecords(opts.MaxRecords); err != nil {
			return err
		}
		if err := p.collector.Ensure(); err != nil {
			return err
		}
		p.layout.raw = p.layout.size
		p.layout.size += p.collector.readbackSize() / 4
	} else {
		p.collector.Release()
	}

	return p.readback.Ensure(p.layout.size * 4)
}

func (p *Pipeline) recordClear(list *device.CommandList) error {
	if p.frameOpts.Mode.aggregate() {
		for _, surface := range p.surfaces {
			if err := list.Clear(surface.Buffer()); err != nil {
				return err
			}
		}
		if err := p.histogram.Clear(list); err != nil {
			return err
		}
	}
	if p.frameOpts.Mode.raw() {
		if err := p.collector.Clear(list); err != nil {
			return err
		}
	}
	return list.Clear(p.readback.Buffer())
}

// Finish the current frame. The reduction and readback copies are submitted
// together with a fence signal; EndFrame never waits for them to complete.
func (p *Pipeline) EndFrame() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Running {
		return p.misuse("EndFrame")
	}
	if !p.frameOpts.Enabled || p.frameErr != nil {
		p.state = Idle
		return nil
	}

	list := device.NewCommandList(fmt.Sprintf("end frame %d", p.frame))
	if err := p.recordReadback(list); err != nil {
		p.invalidate(err)
		p.state = Idle

		// Let the next frame wait for the already submitted clear pass
		return p.readback.Signal()
	}

	if err := p.device.Submit(list); err != nil {
		p.state = Idle
		return err
	}
	if err := p.readback.Signal(); err != nil {
		p.state = Idle
		return err
	}

	p.metrics.Frames.Inc()
	p.state = WaitingForData
	return nil
}

func (p *Pipeline) recordReadback(list *device.CommandList) error {
	dst := p.readback.Buffer()
	if p.frameOpts.Mode.aggregate() {
		for ch, surface := range p.surfaces {
			if err := p.reducer.Reduce(list, surface, OpSum, dst, ch); err != nil {
				return err
			}
		}
		if err := p.histogram.recordReadback(list, dst, p.layout.histogram*4); err != nil {
			return err
		}
	}
	if p.frameOpts.Mode.raw() {
		if err := p.collector.recordReadback(list, dst, p.layout.raw*4); err != nil {
			return err
		}
	}
	return nil
}

// Read back the data of a submitted frame and build its snapshot. CopyToHost
// is a no-op unless the pipeline is waiting for frame data, so the fence is
// waited on at most once per frame.
func (p *Pipeline) CopyToHost(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.copyToHost(ctx)
}

func (p *Pipeline) copyToHost(ctx context.Context) error {
	if p.state != WaitingForData {
		return nil
	}

	start := time.Now()
	p.metrics.ReadbackWaits.Inc()

	opts := p.frameOpts
	snap := Snapshot{
		Frame:      p.frame,
		Mode:       opts.Mode,
		Width:      p.width,
		Height:     p.height,
		PixelCount: uint64(p.width) * uint64(p.height),
	}
	var (
		hist HistogramSnapshot
		raw  RawRecordStats
	)

	err := p.readback.Read(ctx, opts.ReadbackTimeout, func(m *device.Mapping) error {
		if opts.Mode.aggregate() {
			snap.loadChannels(m, 0)
			hist = p.histogram.loadSnapshot(m, p.layout.histogram)
			snap.Histogram = &hist
			snap.CIR = hist.Stats()
		}
		if opts.Mode.raw() {
			raw = p.collector.loadRecords(m, p.layout.raw, opts.Filter, opts.Static.PropagationSpeed)
			snap.loadRaw(raw)
		}
		return nil
	})
	if err != nil {
		p.logger.Errorf("frame %d readback failed: %v", p.frame, err)
		return err
	}

	p.snapshot, p.hist, p.records = snap, hist, raw.Records
	p.state = DataValid
	p.metrics.ReadbackLatency.Observe(time.Since(start).Seconds())
	p.report(snap)
	return nil
}

// Update metrics and emit diagnostics for a freshly built snapshot.
func (p *Pipeline) report(snap Snapshot) {
	invalid := snap.RawInvalid
	if h := snap.Histogram; h != nil {
		p.metrics.HistogramOverflow.Add(float64(h.Overflow))
		p.metrics.OverflowRatio.Set(snap.CIR.OverflowRatio)
		invalid += h.Invalid

		if snap.CIR.OverflowRatio > overflowWarnRatio {
			p.logger.Warningf(
				"frame %d: %d paths (%.2f%%) exceeded the histogram range of %.2es; consider increasing the max delay",
				snap.Frame, h.Overflow, snap.CIR.OverflowRatio*100, p.frameOpts.Histogram.MaxDelay,
			)
		}
	}
	p.metrics.DroppedRecords.Add(float64(snap.RawDropped))
	p.metrics.InvalidRecords.Add(float64(invalid))

	if snap.RawDropped > 0 {
		p.logger.Warningf("frame %d: dropped %d of %d raw records; collector capacity is %d", snap.Frame, snap.RawDropped, snap.RawAttempted, p.frameOpts.MaxRecords)
	}

	if p.frameOpts.DetailedLogging {
		p.logger.Infof(
			"frame %d: %dx%d, %d rays, %d valid CIR samples, %d raw records (%d invalid), total power %.6e W",
			snap.Frame, snap.Width, snap.Height, snap.TotalRays, snap.CIRValidSamples, snap.RawValid, invalid, snap.CIR.TotalPower,
		)

		if log.Enabled(log.Debug) && snap.Mode.aggregate() {
			for _, total := range snap.Channels {
				p.logger.Debugf("frame %d: channel %s: sum %g, average %g", snap.Frame, total.Channel, total.Sum, total.Average)
			}
		}
	}
}

// Get the snapshot for the latest frame, reading back its data if needed.
// The returned flag is false if no valid snapshot is available.
func (p *Pipeline) Snapshot() (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.copyToHost(context.Background()); err != nil || p.state != DataValid {
		return Snapshot{}, false
	}
	return p.snapshot, true
}

// Get the valid raw records of the latest frame, reading back its data if
// needed. The returned flag is false if no records are available.
func (p *Pipeline) RawRecords() ([]PathRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.copyToHost(context.Background()); err != nil || p.state != DataValid || !p.frameOpts.Mode.raw() {
		return nil, false
	}
	return append([]PathRecord(nil), p.records...), true
}

// Get the delay histogram of the latest frame.
func (p *Pipeline) Histogram() (HistogramSnapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.copyToHost(context.Background()); err != nil || p.state != DataValid || !p.frameOpts.Mode.aggregate() {
		return HistogramSnapshot{}, false
	}
	return p.hist, true
}

// Get the counter surface of a channel for visualization. The surface is
// only valid until the next BeginFrame and must be treated as read-only.
func (p *Pipeline) ChannelSurface(ch Channel) (*CounterSurface, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ch >= NumChannels {
		return nil, false
	}
	if err := p.copyToHost(context.Background()); err != nil || p.state != DataValid || !p.frameOpts.Mode.aggregate() {
		return nil, false
	}
	return p.surfaces[ch], true
}

// Get a per-pixel surface with the total number of rays (visibility plus
// closest hit) traced for the latest frame. The surface is computed on demand.
func (p *Pipeline) RayCountSurface() (*CounterSurface, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.copyToHost(context.Background()); err != nil {
		return nil, err
	}
	if p.state != DataValid {
		return nil, fmt.Errorf("%w: ray count requested while %s", ErrInvalidState, p.state)
	}
	if !p.frameOpts.Mode.aggregate() {
		return nil, fmt.Errorf("%w: ray count requires aggregation", ErrCollectionDisabled)
	}

	if err := p.rayCount.Resize(p.width, p.height); err != nil {
		return nil, err
	}
	err := p.rayKernel.SetArgs(p.surfaces[VisibilityRays].Buffer(), p.surfaces[ClosestHitRays].Buffer(), p.rayCount.Buffer(), p.width)
	if err != nil {
		return nil, err
	}
	if _, err = p.rayKernel.Exec2D(0, 0, int(p.width), int(p.height), 0, 0); err != nil {
		return nil, err
	}
	return p.rayCount, nil
}

// Release all device resources. Pending frame work is allowed to complete first.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	// A running frame has no fence target for its clear pass yet
	if p.state == Running {
		if err := p.readback.Signal(); err != nil {
			p.logger.Warningf("could not signal pending frame work: %v", err)
		}
	}
	if err := p.drain(); err != nil {
		p.logger.Warningf("closing with pending frame work: %v", err)
	}
	for _, surface := range p.surfaces {
		surface.Release()
	}
	p.rayCount.Release()
	p.rayKernel.Release()
	p.reducer.Release()
	p.histogram.Release()
	p.collector.Release()
	p.readback.Release()
	p.state = Idle
}
