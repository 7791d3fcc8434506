package stats

import (
	"math"

	"github.com/achilleasa/polaris-cir/device"
)

// Word offsets inside the histogram counter buffer.
const (
	counterOverflow = iota
	counterInvalid

	numHistogramCounters
)

// The overflow ratio above which readback logs a warning.
const overflowWarnRatio = 0.1

// HistogramAccumulator bins path records by their propagation delay. Each
// bin tracks the number of accepted paths and their total received power.
// Records whose delay falls outside the binned range increment a single
// overflow counter instead.
type HistogramAccumulator struct {
	cfg HistogramConfig

	// Number of bins the buffers are currently allocated for.
	allocatedBins uint32

	counts   *device.Buffer
	power    *device.Buffer
	counters *device.Buffer
}

// Create a histogram accumulator. Device storage is allocated lazily by Ensure.
func NewHistogramAccumulator(dev *device.Device, cfg HistogramConfig) (*HistogramAccumulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &HistogramAccumulator{
		cfg:      cfg,
		counts:   dev.Buffer("histogram counts"),
		power:    dev.Buffer("histogram power"),
		counters: dev.Buffer("histogram counters"),
	}, nil
}

// Get the active configuration.
func (h *HistogramAccumulator) Config() HistogramConfig {
	return h.cfg
}

// Get the number of bins.
func (h *HistogramAccumulator) Bins() uint32 {
	return h.cfg.Bins()
}

// Replace the histogram configuration. Invalid configurations are rejected
// and the previous configuration is retained. The new layout takes effect the
// next time Ensure is called.
func (h *HistogramAccumulator) Configure(cfg HistogramConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	h.cfg = cfg
	return nil
}

// Check whether all histogram buffers are allocated for the active configuration.
func (h *HistogramAccumulator) Bound() bool {
	return h.counts.Allocated() && h.power.Allocated() && h.counters.Allocated() && h.allocatedBins == h.cfg.Bins()
}

// Make sure the device buffers match the configured bin count. Storage is
// only reallocated when the bin count changes. On failure the accumulator is
// left unbound.
func (h *HistogramAccumulator) Ensure() error {
	if h.Bound() {
		return nil
	}

	h.allocatedBins = 0
	bins := int(h.cfg.Bins())
	if err := h.counts.Allocate(bins*4, device.MemReadWrite); err != nil {
		h.Release()
		return err
	}
	if err := h.power.Allocate(bins*4, device.MemReadWrite); err != nil {
		h.Release()
		return err
	}
	if err := h.counters.Allocate(numHistogramCounters*4, device.MemReadWrite); err != nil {
		h.Release()
		return err
	}
	h.allocatedBins = uint32(bins)
	return nil
}

// Record commands that zero all bins and counters.
func (h *HistogramAccumulator) Clear(list *device.CommandList) error {
	for _, buf := range []*device.Buffer{h.counts, h.power, h.counters} {
		if err := list.Clear(buf); err != nil {
			return err
		}
	}
	return nil
}

// Release the device storage.
func (h *HistogramAccumulator) Release() {
	h.counts.Release()
	h.power.Release()
	h.counters.Release()
	h.allocatedBins = 0
}

// Get the size in bytes needed to read back the histogram.
func (h *HistogramAccumulator) readbackSize() int {
	return (numHistogramCounters + 2*int(h.allocatedBins)) * 4
}

// Record copies of the counters, bin counts and bin power into dst starting
// at the given byte offset.
func (h *HistogramAccumulator) recordReadback(list *device.CommandList, dst *device.Buffer, offset int) error {
	binBytes := int(h.allocatedBins) * 4
	if err := list.Copy(dst, offset, h.counters, 0, numHistogramCounters*4); err != nil {
		return err
	}
	offset += numHistogramCounters * 4
	if err := list.Copy(dst, offset, h.counts, 0, binBytes); err != nil {
		return err
	}
	return list.Copy(dst, offset+binBytes, h.power, 0, binBytes)
}

// Decode a histogram snapshot from a mapped readback buffer at the given word offset.
func (h *HistogramAccumulator) loadSnapshot(m *device.Mapping, offset int) HistogramSnapshot {
	bins := int(h.allocatedBins)
	snap := HistogramSnapshot{
		TimeResolution: h.cfg.TimeResolution,
		Overflow:       m.Uint32(offset + counterOverflow),
		Invalid:        m.Uint32(offset + counterInvalid),
		Counts:         m.CopyUint32(offset+numHistogramCounters, bins),
		Power:          make([]float32, bins),
	}
	powerOffset := offset + numHistogramCounters + bins
	for i := range snap.Power {
		snap.Power[i] = m.Float32(powerOffset + i)
	}
	return snap
}

// HistogramWriter is the write-only view of the accumulator handed to
// producers for a single frame. It is safe for concurrent use by kernels.
type HistogramWriter struct {
	counts   *device.Buffer
	power    *device.Buffer
	counters *device.Buffer

	bins    uint32
	res     float64
	filter  Filter
	channel StaticParameters
}

func (h *HistogramAccumulator) writer(filter Filter, channel StaticParameters) *HistogramWriter {
	return &HistogramWriter{
		counts:   h.counts,
		power:    h.power,
		counters: h.counters,
		bins:     h.allocatedBins,
		res:      h.cfg.TimeResolution,
		filter:   filter,
		channel:  channel,
	}
}

// Accept a path record. Records failing validation increment the invalid
// counter and are not binned. Valid records are added to the bin matching
// their delay or, when the delay is outside the binned range, to the overflow
// counter. Accept reports whether the record was valid.
func (w *HistogramWriter) Accept(rec PathRecord) bool {
	if !rec.Valid(w.filter) {
		w.counters.AtomicAddUint32(counterInvalid, 1)
		return false
	}

	idx := math.Floor(rec.Delay(w.channel.PropagationSpeed) / w.res)
	if idx < 0 || idx >= float64(w.bins) {
		w.counters.AtomicAddUint32(counterOverflow, 1)
		return true
	}

	w.counts.AtomicAddUint32(int(idx), 1)
	w.power.AtomicAddFloat32(int(idx), float32(w.channel.ReceivedPower(rec)))
	return true
}

// HistogramSnapshot is a host copy of the delay histogram for one frame.
type HistogramSnapshot struct {
	// Width of a bin in seconds.
	TimeResolution float64

	// Paths and received power (W) per bin.
	Counts []uint32
	Power  []float32

	// Valid paths whose delay exceeded the binned range.
	Overflow uint32

	// Paths rejected by the record filter.
	Invalid uint32
}

// Get the number of valid paths seen by the accumulator (binned and overflowed).
func (s HistogramSnapshot) Accepted() uint64 {
	total := uint64(s.Overflow)
	for _, c := range s.Counts {
		total += uint64(c)
	}
	return total
}

// CIRStats contains channel impulse response figures derived from the delay histogram.
type CIRStats struct {
	TotalPower  float64
	MaxPower    float64
	NonZeroBins uint32
	// Bins holding NaN or Inf power.
	InvalidBins uint32

	PeakBin   uint32
	PeakDelay float64

	// Power weighted mean excess delay and RMS delay spread (s).
	MeanDelay      float64
	RMSDelaySpread float64

	Overflow      uint32
	OverflowRatio float64
}

// Calculate the CIR statistics. Bin i is assigned the delay i*TimeResolution.
func (s HistogramSnapshot) Stats() CIRStats {
	st := CIRStats{Overflow: s.Overflow}

	var weightedDelay, weightedDelaySq float64
	for i, p := range s.Power {
		power := float64(p)
		if math.IsNaN(power) || math.IsInf(power, 0) {
			st.InvalidBins++
			continue
		}
		if power <= 0 {
			continue
		}

		st.NonZeroBins++
		st.TotalPower += power
		if power > st.MaxPower {
			st.MaxPower = power
			st.PeakBin = uint32(i)
		}

		t := float64(i) * s.TimeResolution
		weightedDelay += power * t
		weightedDelaySq += power * t * t
	}

	st.PeakDelay = float64(st.PeakBin) * s.TimeResolution
	if st.TotalPower > 0 {
		st.MeanDelay = weightedDelay / st.TotalPower
		st.RMSDelaySpread = math.Sqrt(math.Max(0, weightedDelaySq/st.TotalPower-st.MeanDelay*st.MeanDelay))
	}
	if accepted := s.Accepted(); accepted > 0 {
		st.OverflowRatio = float64(s.Overflow) / float64(accepted)
	}
	return st
}
