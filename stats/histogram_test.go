package stats

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/achilleasa/polaris-cir/device"
)

func validRecord(pathLength float32) PathRecord {
	return PathRecord{
		PathLength:         pathLength,
		EmissionAngle:      0.2,
		ReceptionAngle:     0.3,
		ReflectanceProduct: 0.5,
		ReflectionCount:    1,
		EmittedPower:       1,
	}
}

func readHistogram(t *testing.T, dev *device.Device, acc *HistogramAccumulator) HistogramSnapshot {
	rb := NewReadbackChannel(dev, "histogram readback")
	defer rb.Release()
	if err := rb.Ensure(acc.readbackSize()); err != nil {
		t.Fatal(err)
	}

	list := device.NewCommandList("histogram readback")
	if err := acc.recordReadback(list, rb.Buffer(), 0); err != nil {
		t.Fatal(err)
	}
	if err := dev.Submit(list); err != nil {
		t.Fatal(err)
	}
	if err := rb.Signal(); err != nil {
		t.Fatal(err)
	}

	var snap HistogramSnapshot
	err := rb.Read(context.Background(), time.Second, func(m *device.Mapping) error {
		snap = acc.loadSnapshot(m, 0)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return snap
}

func newClearedHistogram(t *testing.T, dev *device.Device, cfg HistogramConfig) *HistogramAccumulator {
	acc, err := NewHistogramAccumulator(dev, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err = acc.Ensure(); err != nil {
		t.Fatal(err)
	}
	list := device.NewCommandList("clear")
	if err = acc.Clear(list); err != nil {
		t.Fatal(err)
	}
	if err = dev.Submit(list); err != nil {
		t.Fatal(err)
	}
	return acc
}

func TestHistogramConservation(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	acc := newClearedHistogram(t, dev, HistogramConfig{TimeResolution: 1e-9, MaxDelay: 1e-8})
	defer acc.Release()
	if acc.Bins() != 10 {
		t.Fatalf("expected 10 bins; got %d", acc.Bins())
	}

	// Delays of 3.5ns, 3.5ns and 15ns
	records := []PathRecord{validRecord(1.05), validRecord(1.05), validRecord(4.5)}
	w := acc.writer(DefaultFilter(), DefaultStaticParameters())
	runProducer(t, dev, len(records), 1, func(x, _ int) {
		if !w.Accept(records[x]) {
			t.Errorf("expected record %d to be accepted", x)
		}
	})

	snap := readHistogram(t, dev, acc)
	for i, c := range snap.Counts {
		exp := uint32(0)
		if i == 3 {
			exp = 2
		}
		if c != exp {
			t.Fatalf("[bin %d] expected count %d; got %d", i, exp, c)
		}
	}
	if snap.Overflow != 1 {
		t.Fatalf("expected overflow count 1; got %d", snap.Overflow)
	}
	if snap.Accepted() != uint64(len(records)) {
		t.Fatalf("expected bins and overflow to add up to %d; got %d", len(records), snap.Accepted())
	}
	if snap.Power[3] <= 0 {
		t.Fatalf("expected bin 3 to accumulate received power; got %g", snap.Power[3])
	}
}

func TestHistogramBinEdges(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	acc := newClearedHistogram(t, dev, HistogramConfig{TimeResolution: 1e-9, MaxDelay: 1e-8})
	defer acc.Release()

	// Delays of exactly 5ns and 10ns; a delay equal to the max delay is
	// outside the binned range.
	records := []PathRecord{validRecord(1.5), validRecord(3)}
	w := acc.writer(DefaultFilter(), DefaultStaticParameters())
	runProducer(t, dev, len(records), 1, func(x, _ int) {
		w.Accept(records[x])
	})

	snap := readHistogram(t, dev, acc)
	for i, c := range snap.Counts {
		exp := uint32(0)
		if i == 5 {
			exp = 1
		}
		if c != exp {
			t.Fatalf("[bin %d] expected count %d; got %d (counts %v)", i, exp, c, snap.Counts)
		}
	}
	if snap.Overflow != 1 {
		t.Fatalf("expected overflow count 1; got %d", snap.Overflow)
	}
}

func TestHistogramConcurrentAccept(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	acc := newClearedHistogram(t, dev, HistogramConfig{TimeResolution: 1e-9, MaxDelay: 1e-7})
	defer acc.Release()

	// 5.5ns and 20.5ns delays
	recA, recB := validRecord(1.65), validRecord(6.15)
	w := acc.writer(DefaultFilter(), DefaultStaticParameters())
	width, height := 64, 64
	runProducer(t, dev, width, height, func(x, y int) {
		if (x+y)%2 == 0 {
			w.Accept(recA)
		} else {
			w.Accept(recB)
		}
	})

	snap := readHistogram(t, dev, acc)
	half := uint32(width * height / 2)
	if snap.Counts[5] != half || snap.Counts[20] != half {
		t.Fatalf("expected bins 5 and 20 to contain %d paths each; got %d and %d", half, snap.Counts[5], snap.Counts[20])
	}

	params := DefaultStaticParameters()
	expPower := float64(half) * params.ReceivedPower(recA)
	if got := float64(snap.Power[5]); math.Abs(got-expPower) > expPower*1e-3 {
		t.Fatalf("expected bin 5 power to be %g; got %g", expPower, got)
	}
}

func TestHistogramInvalidRecords(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	acc := newClearedHistogram(t, dev, HistogramConfig{TimeResolution: 1e-9, MaxDelay: 1e-8})
	defer acc.Release()

	nan := validRecord(1.05)
	nan.EmissionAngle = float32(math.NaN())
	tooShort := validRecord(0.01)
	reflective := validRecord(1.05)
	reflective.ReflectanceProduct = 1.5
	records := []PathRecord{nan, tooShort, reflective, validRecord(1.05)}

	w := acc.writer(DefaultFilter(), DefaultStaticParameters())
	runProducer(t, dev, len(records), 1, func(x, _ int) {
		w.Accept(records[x])
	})

	snap := readHistogram(t, dev, acc)
	if snap.Invalid != 3 {
		t.Fatalf("expected 3 invalid records; got %d", snap.Invalid)
	}
	if snap.Accepted() != 1 {
		t.Fatalf("expected 1 accepted record; got %d", snap.Accepted())
	}
}

func TestHistogramConfigure(t *testing.T) {
	dev := createTestDevice(t)
	defer dev.Close()

	cfg := HistogramConfig{TimeResolution: 1e-9, MaxDelay: 1e-8}
	acc := newClearedHistogram(t, dev, cfg)
	defer acc.Release()

	specs := []HistogramConfig{
		{TimeResolution: 1e-13, MaxDelay: 1e-8},
		{TimeResolution: 1e-9, MaxDelay: 1},
		{TimeResolution: 1e-9, MaxDelay: 1e-8, BinCount: 5},
		{TimeResolution: 1e-9, MaxDelay: 1e-6, BinCount: 999},
		{TimeResolution: math.NaN(), MaxDelay: 1e-8},
	}
	for index, s := range specs {
		err := acc.Configure(s)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("[spec %d] expected ErrInvalidConfig; got %v", index, err)
		}
		if acc.Config() != cfg {
			t.Fatalf("[spec %d] expected previous configuration to be retained; got %+v", index, acc.Config())
		}
	}

	// Changing the bin count requires a reallocation
	if err := acc.Configure(HistogramConfig{TimeResolution: 1e-9, MaxDelay: 1e-8, BinCount: 32}); err != nil {
		t.Fatal(err)
	}
	if acc.Bound() {
		t.Fatal("expected accumulator to be unbound after changing the bin count")
	}
	if err := acc.Ensure(); err != nil {
		t.Fatal(err)
	}
	if acc.readbackSize() != (numHistogramCounters+64)*4 {
		t.Fatalf("expected readback size for 32 bins; got %d", acc.readbackSize())
	}
}

func TestHistogramStats(t *testing.T) {
	snap := HistogramSnapshot{
		TimeResolution: 1e-9,
		Counts:         []uint32{0, 1, 0, 1},
		Power:          []float32{0, 2, 0, 2},
		Overflow:       2,
	}

	st := snap.Stats()
	if st.TotalPower != 4 || st.MaxPower != 2 || st.NonZeroBins != 2 {
		t.Fatalf("unexpected power stats: %+v", st)
	}
	if st.PeakBin != 1 || math.Abs(st.PeakDelay-1e-9) > 1e-18 {
		t.Fatalf("expected peak at bin 1 (1ns); got bin %d (%g)", st.PeakBin, st.PeakDelay)
	}
	if math.Abs(st.MeanDelay-2e-9) > 1e-15 {
		t.Fatalf("expected mean delay of 2ns; got %g", st.MeanDelay)
	}
	if math.Abs(st.RMSDelaySpread-1e-9) > 1e-12 {
		t.Fatalf("expected RMS delay spread of 1ns; got %g", st.RMSDelaySpread)
	}
	if st.OverflowRatio != 0.5 {
		t.Fatalf("expected overflow ratio 0.5; got %f", st.OverflowRatio)
	}

	empty := HistogramSnapshot{TimeResolution: 1e-9, Counts: make([]uint32, 10), Power: make([]float32, 10)}
	st = empty.Stats()
	if st.MeanDelay != 0 || st.RMSDelaySpread != 0 || st.OverflowRatio != 0 {
		t.Fatalf("expected zero stats for an empty histogram; got %+v", st)
	}
}
