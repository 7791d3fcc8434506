package stats

import "github.com/achilleasa/polaris-cir/device"

// FrameHandles exposes write-only access to the pipeline resources for the
// duration of a single frame. Producers receive the handles from BeginFrame
// and must not retain them after EndFrame. All methods are safe for
// concurrent use by kernels and are no-ops for resources that are inactive
// in the current collection mode.
type FrameHandles struct {
	width  uint32
	height uint32

	surfaces  [NumChannels]*device.Buffer
	histogram *HistogramWriter
	records   *RecordWriter

	// Used for validating records when the histogram is inactive.
	filter Filter
}

// Get the frame dimensions.
func (h *FrameHandles) Dims() (uint32, uint32) {
	return h.width, h.height
}

// Check whether any instrumentation is active for this frame.
func (h *FrameHandles) Enabled() bool {
	return h.surfaces[0] != nil || h.records != nil
}

// Get the write-only histogram view or nil if aggregation is inactive.
func (h *FrameHandles) Histogram() *HistogramWriter {
	return h.histogram
}

// Get the write-only raw record view or nil if raw collection is inactive.
func (h *FrameHandles) Records() *RecordWriter {
	return h.records
}

func (h *FrameHandles) surface(ch Channel, x, y uint32) (*device.Buffer, int) {
	if ch >= NumChannels || x >= h.width || y >= h.height {
		return nil, 0
	}
	return h.surfaces[ch], int(y)*int(h.width) + int(x)
}

// Atomically add val to the uint32 counter of channel ch at pixel (x, y).
func (h *FrameHandles) AddUint32(ch Channel, x, y, val uint32) {
	buf, index := h.surface(ch, x, y)
	if buf == nil || ch.ElementType() != Uint32Element {
		return
	}
	buf.AtomicAddUint32(index, val)
}

// Atomically add val to the float32 counter of channel ch at pixel (x, y).
func (h *FrameHandles) AddFloat32(ch Channel, x, y uint32, val float32) {
	buf, index := h.surface(ch, x, y)
	if buf == nil || ch.ElementType() != Float32Element {
		return
	}
	buf.AtomicAddFloat32(index, val)
}

// Record a path sample that reached the receiver. The record is validated
// once; valid records update the CIR channels of their originating pixel,
// are binned into the delay histogram and appended to the raw collector.
// Invalid records are counted by the histogram or, when only raw collection
// is active, by the collector. RecordPath reports whether the record was valid.
func (h *FrameHandles) RecordPath(rec PathRecord) bool {
	var valid bool
	if h.histogram != nil {
		valid = h.histogram.Accept(rec)
	} else if valid = rec.Valid(h.filter); !valid && h.records != nil {
		h.records.Reject()
	}
	if !valid {
		return false
	}

	x, y := rec.PixelX, rec.PixelY
	h.AddFloat32(CIRPathLength, x, y, rec.PathLength)
	h.AddFloat32(CIREmissionAngle, x, y, rec.EmissionAngle)
	h.AddFloat32(CIRReceptionAngle, x, y, rec.ReceptionAngle)
	h.AddFloat32(CIRReflectance, x, y, rec.ReflectanceProduct)
	h.AddFloat32(CIREmittedPower, x, y, rec.EmittedPower)
	h.AddUint32(CIRReflectionCount, x, y, rec.ReflectionCount)
	h.AddUint32(CIRValidSamples, x, y, 1)

	if h.records != nil {
		h.records.Append(rec)
	}
	return true
}
