package tracer

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/achilleasa/polaris-cir/device"
	"github.com/achilleasa/polaris-cir/log"
	"github.com/achilleasa/polaris-cir/stats"
)

// SceneParams describes the room simulated by the synthetic tracer. The LED
// is mounted at the ceiling center facing down and each pixel maps to a
// receiver position on the floor grid facing up.
type SceneParams struct {
	// Room dimensions (m).
	Width  float32
	Depth  float32
	Height float32

	// Number of paths generated per pixel.
	PathsPerPixel uint32

	// Max number of reflections per path.
	MaxBounces uint32

	// Wall reflectance.
	Reflectance float32

	// LED optical power (W).
	LEDPower float32
}

// Get the default scene: a 5x5x3m room with a 1W LED.
func DefaultSceneParams() SceneParams {
	return SceneParams{
		Width:         5,
		Depth:         5,
		Height:        3,
		PathsPerPixel: 1,
		MaxBounces:    3,
		Reflectance:   0.8,
		LEDPower:      1,
	}
}

// Validate the scene parameters.
func (p SceneParams) Validate() error {
	if !(p.Width > 0 && p.Depth > 0 && p.Height > 0) {
		return fmt.Errorf("%w: room dimensions %gx%gx%g", ErrInvalidParams, p.Width, p.Depth, p.Height)
	}
	if p.PathsPerPixel == 0 {
		return fmt.Errorf("%w: paths per pixel must be positive", ErrInvalidParams)
	}
	if !(p.Reflectance >= 0 && p.Reflectance <= 1) {
		return fmt.Errorf("%w: reflectance %g", ErrInvalidParams, p.Reflectance)
	}
	if !(p.LEDPower > 0) {
		return fmt.Errorf("%w: LED power %g", ErrInvalidParams, p.LEDPower)
	}
	return nil
}

type syntheticTracer struct {
	logger log.Logger

	sync.Mutex
	wg sync.WaitGroup

	// The tracer id.
	id string

	// The shared device and the kernel that runs the path generator.
	device *device.Device
	kernel *device.Kernel

	params SceneParams

	// The handles of the block being traced; only accessed by the worker
	// and the kernel it executes.
	handles *stats.FrameHandles

	// Path counters for the block being traced.
	paths    atomic.Uint64
	accepted atomic.Uint64

	// A channel for receiving block requests from the renderer.
	blockReqChan chan BlockRequest

	// A channel for signaling the worker to exit.
	closeChan chan struct{}

	// Statistics for last traced block.
	stats *Stats
}

// Create a new synthetic tracer that generates pseudo-random light paths for
// the given scene and reports them through the frame statistics handles.
// The device must be initialized; it is shared and not closed by the tracer.
func NewSynthetic(id string, dev *device.Device, params SceneParams) (Tracer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	tr := &syntheticTracer{
		logger:       log.New(fmt.Sprintf("synthetic tracer (%s)", id)),
		id:           id,
		device:       dev,
		params:       params,
		blockReqChan: make(chan BlockRequest, 1),
		stats:        &Stats{},
	}

	kernelName := "tracer.synthetic." + id
	err := dev.LoadProgram(device.Program{kernelName: tr.traceKernel})
	if err != nil {
		return nil, err
	}
	tr.kernel, err = dev.Kernel(kernelName)
	if err != nil {
		return nil, err
	}

	tr.startWorker()
	return tr, nil
}

// Get tracer id.
func (tr *syntheticTracer) Id() string {
	return tr.id
}

// Get the computation speed estimate.
func (tr *syntheticTracer) Speed() uint32 {
	if tr.device.Speed != 0 {
		return tr.device.Speed
	}
	return tr.device.ComputeUnits
}

// Retrieve last block statistics.
func (tr *syntheticTracer) Stats() *Stats {
	return tr.stats
}

// Enqueue block request.
func (tr *syntheticTracer) Enqueue(blockReq BlockRequest) {
	select {
	case tr.blockReqChan <- blockReq:
	default:
		tr.logger.Error("request processor did not receive block request")
		blockReq.ErrChan <- fmt.Errorf("tracer %s: %w", tr.id, ErrBusy)
	}
}

// Shutdown and cleanup tracer.
func (tr *syntheticTracer) Close() {
	tr.Lock()
	defer tr.Unlock()

	// If the worker is running shut it down
	if tr.closeChan != nil {
		tr.closeChan <- struct{}{}

		// wait for worker to ack close and shutdown channel
		<-tr.closeChan
		close(tr.closeChan)
		tr.closeChan = nil
		tr.wg.Wait()
	}

	if tr.kernel != nil {
		tr.kernel.Release()
		tr.kernel = nil
	}
}

// Spawn a go-routine to process block requests.
func (tr *syntheticTracer) startWorker() {
	tr.closeChan = make(chan struct{})

	readyChan := make(chan struct{})
	tr.wg.Add(1)
	go func() {
		defer tr.wg.Done()
		var blockReq BlockRequest
		var startTime time.Time
		var err error
		close(readyChan)
		for {
			select {
			case blockReq = <-tr.blockReqChan:
				startTime = time.Now()
				err = tr.traceBlock(&blockReq)
				if err != nil {
					blockReq.ErrChan <- err
					continue
				}

				// Update stats
				tr.stats.BlockH = blockReq.BlockH
				tr.stats.RenderTime = time.Since(startTime)
				tr.stats.Paths = tr.paths.Load()
				tr.stats.Accepted = tr.accepted.Load()

				blockReq.DoneChan <- blockReq.BlockH
			case <-tr.closeChan:
				// Ack close
				tr.closeChan <- struct{}{}
				return
			}
		}
	}()

	// Wait for go-routine to start
	<-readyChan
}

// Trace the rows of a block.
func (tr *syntheticTracer) traceBlock(blockReq *BlockRequest) error {
	if blockReq.Handles == nil {
		return fmt.Errorf("tracer %s: %w", tr.id, ErrNoHandles)
	}

	tr.paths.Store(0)
	tr.accepted.Store(0)

	frameW, frameH := blockReq.Handles.Dims()
	if blockReq.BlockH == 0 || blockReq.BlockY+blockReq.BlockH > frameH {
		return fmt.Errorf("tracer %s: block rows [%d, %d) outside frame height %d", tr.id, blockReq.BlockY, blockReq.BlockY+blockReq.BlockH, frameH)
	}

	tr.handles = blockReq.Handles
	defer func() { tr.handles = nil }()

	err := tr.kernel.SetArgs(blockReq.Seed, uint32(blockReq.Frame), frameW, frameH)
	if err != nil {
		return err
	}
	elapsed, err := tr.kernel.Exec2D(0, int(blockReq.BlockY), int(frameW), int(blockReq.BlockH), 0, 0)
	if err != nil {
		return err
	}

	tr.logger.Debugf("frame %d: traced rows [%d, %d) in %s; %d/%d paths accepted", blockReq.Frame, blockReq.BlockY, blockReq.BlockY+blockReq.BlockH, elapsed, tr.accepted.Load(), tr.paths.Load())
	return nil
}

// The path generator kernel. Args: seed, frame, frame width, frame height.
func (tr *syntheticTracer) traceKernel(group device.WorkGroup, args device.KernelArgs) {
	seed, frame := args.Uint32(0), args.Uint32(1)
	frameW, frameH := args.Uint32(2), args.Uint32(3)
	handles := tr.handles

	group.ForEach(func(x, y int) {
		rng := rand.New(rand.NewPCG(uint64(seed)<<32|uint64(frame), uint64(y)<<32|uint64(x)))
		for sample := uint32(0); sample < tr.params.PathsPerPixel; sample++ {
			rec := tr.params.generatePath(rng, uint32(x), uint32(y), frameW, frameH)

			// Per-pixel ray and vertex counters
			handles.AddUint32(stats.VisibilityRays, rec.PixelX, rec.PixelY, 1)
			handles.AddUint32(stats.ClosestHitRays, rec.PixelX, rec.PixelY, rec.ReflectionCount+1)
			handles.AddUint32(stats.PathVertices, rec.PixelX, rec.PixelY, rec.ReflectionCount+2)
			handles.AddFloat32(stats.PathLength, rec.PixelX, rec.PixelY, rec.PathLength)

			tr.paths.Add(1)
			if handles.RecordPath(rec) {
				tr.accepted.Add(1)
			}
		}
	})
}

// Generate a path from the LED to the receiver located at pixel (x, y).
func (p SceneParams) generatePath(rng *rand.Rand, x, y, frameW, frameH uint32) stats.PathRecord {
	// Receiver position relative to the point under the LED
	dx := (float64(x)+0.5)/float64(frameW)*float64(p.Width) - 0.5*float64(p.Width)
	dy := (float64(y)+0.5)/float64(frameH)*float64(p.Depth) - 0.5*float64(p.Depth)
	h := float64(p.Height)
	direct := math.Sqrt(dx*dx + dy*dy + h*h)

	bounces := uint32(0)
	if p.MaxBounces > 0 {
		bounces = uint32(rng.IntN(int(p.MaxBounces) + 1))
	}

	rec := stats.PathRecord{
		PathLength:         float32(direct),
		ReflectanceProduct: 1,
		ReflectionCount:    bounces,
		EmittedPower:       p.LEDPower / float32(p.PathsPerPixel),
		PixelX:             x,
		PixelY:             y,
	}

	if bounces == 0 {
		// Line of sight; both normals are vertical
		angle := float32(math.Acos(h / direct))
		rec.EmissionAngle, rec.ReceptionAngle = angle, angle
		return rec
	}

	// Each reflection adds a detour and scatters the path directions
	length := direct
	for i := uint32(0); i < bounces; i++ {
		length += direct * (0.2 + 0.8*rng.Float64())
		rec.ReflectanceProduct *= p.Reflectance
	}
	rec.PathLength = float32(length)
	rec.EmissionAngle = float32(rng.Float64() * 0.5 * math.Pi)
	rec.ReceptionAngle = float32(rng.Float64() * 0.5 * math.Pi)
	return rec
}
