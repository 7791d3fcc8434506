package tracer

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/achilleasa/polaris-cir/device"
	"github.com/achilleasa/polaris-cir/stats"
	"github.com/prometheus/client_golang/prometheus"
)

func createTestDevice(t *testing.T) *device.Device {
	dev := device.NewDevice("test cpu", 4, 0)
	if err := dev.Init(); err != nil {
		t.Fatal(err)
	}
	return dev
}

func createTestTracer(t *testing.T, dev *device.Device, id string, params SceneParams) Tracer {
	tr, err := NewSynthetic(id, dev, params)
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

// Trace a full frame with a single tracer and return its snapshot.
func traceFrame(t *testing.T, p *stats.Pipeline, tr Tracer, w, h, seed uint32) stats.Snapshot {
	handles, err := p.BeginFrame(w, h)
	if err != nil {
		t.Fatal(err)
	}

	doneChan := make(chan uint32, 1)
	errChan := make(chan error, 1)
	tr.Enqueue(BlockRequest{
		Frame:    p.Frame(),
		BlockY:   0,
		BlockH:   h,
		Seed:     seed,
		Handles:  handles,
		DoneChan: doneChan,
		ErrChan:  errChan,
	})

	select {
	case rows := <-doneChan:
		if rows != h {
			t.Fatalf("expected tracer to complete %d rows; got %d", h, rows)
		}
	case err = <-errChan:
		t.Fatal(err)
	}

	if err = p.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if err = p.CopyToHost(context.Background()); err != nil {
		t.Fatal(err)
	}
	snap, valid := p.Snapshot()
	if !valid {
		t.Fatalf("expected a valid snapshot; frame error: %v", p.FrameError())
	}
	return snap
}

func TestSyntheticTracerFrame(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	opts := stats.DefaultOptions()
	opts.Mode = stats.Both
	p, err := stats.NewPipeline(dev, opts, prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	params := DefaultSceneParams()
	params.PathsPerPixel = 2
	tr := createTestTracer(t, dev, "test", params)
	defer tr.Close()

	snap := traceFrame(t, p, tr, 32, 16, 42)

	expPaths := uint64(32 * 16 * params.PathsPerPixel)
	if got := uint64(snap.Sum(stats.VisibilityRays)); got != expPaths {
		t.Fatalf("expected %d visibility rays; got %d", expPaths, got)
	}
	if snap.CIRValidSamples != expPaths {
		t.Fatalf("expected all %d paths to be valid; got %d", expPaths, snap.CIRValidSamples)
	}
	if got := uint64(snap.RawValid); got != expPaths {
		t.Fatalf("expected %d raw records; got %d", expPaths, got)
	}
	if got := snap.Histogram.Accepted(); got != expPaths {
		t.Fatalf("expected %d binned paths; got %d", expPaths, got)
	}

	trStats := tr.Stats()
	if trStats.BlockH != 16 {
		t.Fatalf("expected block height 16; got %d", trStats.BlockH)
	}
	if trStats.Paths != expPaths || trStats.Accepted != expPaths {
		t.Fatalf("expected %d generated and accepted paths; got %d/%d", expPaths, trStats.Accepted, trStats.Paths)
	}

	// Every path is at least as long as the ceiling height
	if minLen := float64(params.Height) * float64(expPaths); snap.Sum(stats.CIRPathLength) < minLen*0.999 {
		t.Fatalf("expected total CIR path length >= %f; got %f", minLen, snap.Sum(stats.CIRPathLength))
	}
}

func TestSyntheticTracerDeterminism(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	p, err := stats.NewPipeline(dev, stats.DefaultOptions(), prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	tr := createTestTracer(t, dev, "test", DefaultSceneParams())
	defer tr.Close()

	// Frame numbers differ between runs so only the seed-independent
	// totals and the ray counts of identical frames can be compared.
	first := traceFrame(t, p, tr, 16, 16, 7)
	second := traceFrame(t, p, tr, 16, 16, 7)

	if first.Sum(stats.VisibilityRays) != second.Sum(stats.VisibilityRays) {
		t.Fatalf("expected identical visibility ray counts; got %f and %f", first.Sum(stats.VisibilityRays), second.Sum(stats.VisibilityRays))
	}

	params := DefaultSceneParams()
	for y := uint32(0); y < 4; y++ {
		for x := uint32(0); x < 4; x++ {
			a := params.generatePath(rand.New(rand.NewPCG(1, uint64(y)<<32|uint64(x))), x, y, 4, 4)
			b := params.generatePath(rand.New(rand.NewPCG(1, uint64(y)<<32|uint64(x))), x, y, 4, 4)
			if a != b {
				t.Fatalf("expected identical paths for identical seeds; got %+v and %+v", a, b)
			}
		}
	}
}

func TestSyntheticTracerLineOfSight(t *testing.T) {
	params := DefaultSceneParams()
	params.MaxBounces = 0

	// The single pixel of a 1x1 frame lies right under the LED
	rec := params.generatePath(rand.New(rand.NewPCG(1, 2)), 0, 0, 1, 1)
	if rec.ReflectionCount != 0 {
		t.Fatalf("expected a direct path; got %d reflections", rec.ReflectionCount)
	}
	if math.Abs(float64(rec.PathLength-params.Height)) > 1e-6 {
		t.Fatalf("expected path length %f; got %f", params.Height, rec.PathLength)
	}
	if rec.EmissionAngle != 0 || rec.ReceptionAngle != 0 {
		t.Fatalf("expected zero angles; got %f, %f", rec.EmissionAngle, rec.ReceptionAngle)
	}
	if rec.ReflectanceProduct != 1 {
		t.Fatalf("expected reflectance product 1; got %f", rec.ReflectanceProduct)
	}
}

func TestSyntheticTracerReflections(t *testing.T) {
	params := DefaultSceneParams()
	rng := rand.New(rand.NewPCG(3, 4))

	for i := 0; i < 1000; i++ {
		rec := params.generatePath(rng, 1, 2, 8, 8)
		if rec.ReflectionCount > params.MaxBounces {
			t.Fatalf("expected at most %d reflections; got %d", params.MaxBounces, rec.ReflectionCount)
		}
		expReflectance := float32(math.Pow(float64(params.Reflectance), float64(rec.ReflectionCount)))
		if math.Abs(float64(rec.ReflectanceProduct-expReflectance)) > 1e-6 {
			t.Fatalf("expected reflectance product %f for %d reflections; got %f", expReflectance, rec.ReflectionCount, rec.ReflectanceProduct)
		}
		if !rec.Valid(stats.DefaultFilter()) {
			t.Fatalf("expected generated path to pass the default filter: %+v", rec)
		}
	}
}

func TestSyntheticTracerErrors(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	tr := createTestTracer(t, dev, "test", DefaultSceneParams())
	defer tr.Close()

	doneChan := make(chan uint32, 1)
	errChan := make(chan error, 1)
	tr.Enqueue(BlockRequest{BlockH: 1, DoneChan: doneChan, ErrChan: errChan})
	select {
	case <-doneChan:
		t.Fatal("expected block without handles to fail")
	case err := <-errChan:
		if !errors.Is(err, ErrNoHandles) {
			t.Fatalf("expected ErrNoHandles; got %v", err)
		}
	}

	p, err := stats.NewPipeline(dev, stats.DefaultOptions(), prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	handles, err := p.BeginFrame(8, 8)
	if err != nil {
		t.Fatal(err)
	}
	tr.Enqueue(BlockRequest{BlockY: 4, BlockH: 8, Handles: handles, DoneChan: doneChan, ErrChan: errChan})
	select {
	case <-doneChan:
		t.Fatal("expected block outside the frame to fail")
	case err = <-errChan:
	}
	if err = p.EndFrame(); err != nil {
		t.Fatal(err)
	}
}

func TestSceneParamsValidate(t *testing.T) {
	type spec struct {
		mutate func(*SceneParams)
	}
	specs := []spec{
		{func(p *SceneParams) { p.Width = 0 }},
		{func(p *SceneParams) { p.Height = -1 }},
		{func(p *SceneParams) { p.PathsPerPixel = 0 }},
		{func(p *SceneParams) { p.Reflectance = 1.5 }},
		{func(p *SceneParams) { p.LEDPower = 0 }},
	}

	if err := DefaultSceneParams().Validate(); err != nil {
		t.Fatalf("expected default params to be valid; got %v", err)
	}

	for index, s := range specs {
		params := DefaultSceneParams()
		s.mutate(&params)
		if err := params.Validate(); !errors.Is(err, ErrInvalidParams) {
			t.Fatalf("[spec %d] expected ErrInvalidParams; got %v", index, err)
		}
		if _, err := NewSynthetic("test", nil, params); !errors.Is(err, ErrInvalidParams) {
			t.Fatalf("[spec %d] expected NewSynthetic to reject params; got %v", index, err)
		}
	}
}
