package types

import (
	"math"
	"testing"
)

func TestVec4MinMax(t *testing.T) {
	a := XYZW(1, 5, -2, 0)
	b := XYZW(3, 2, -1, 0)

	expMin := XYZW(1, 2, -2, 0)
	if got := a.Min(b); got != expMin {
		t.Fatalf("expected min to be %v; got %v", expMin, got)
	}

	expMax := XYZW(3, 5, -1, 0)
	if got := a.Max(b); got != expMax {
		t.Fatalf("expected max to be %v; got %v", expMax, got)
	}
}

func TestVec4IsFinite(t *testing.T) {
	if !XYZW(1, 2, 3, 4).IsFinite() {
		t.Fatal("expected vector to be finite")
	}

	if XYZW(1, float32(math.NaN()), 3, 4).IsFinite() {
		t.Fatal("expected vector with NaN component to be reported as non-finite")
	}

	if XYZW(float32(math.Inf(1)), 0, 0, 0).IsFinite() {
		t.Fatal("expected vector with Inf component to be reported as non-finite")
	}
}

func TestUVec4Uint64RoundTrip(t *testing.T) {
	specs := []uint64{0, 1, math.MaxUint32, math.MaxUint32 + 1, 1<<40 + 12345}
	for index, val := range specs {
		slot := SplitUint64(val)
		if got := slot.Uint64(); got != val {
			t.Fatalf("[spec %d] expected %d; got %d", index, val, got)
		}
	}
}
