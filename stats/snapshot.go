package stats

import "github.com/achilleasa/polaris-cir/device"

// ChannelTotal holds the reduced value of a channel for one frame.
type ChannelTotal struct {
	Channel Channel
	Sum     float64

	// Sum divided by the number of pixels (or valid CIR samples for the CIR
	// channels); zero when the divisor is zero.
	Average float64
}

// Snapshot is an immutable point-in-time view of the statistics of a frame.
// Slices referenced by a snapshot are shared with later calls returning the
// same snapshot and must not be modified.
type Snapshot struct {
	// Sequence number of the frame the snapshot describes.
	Frame uint64

	Mode       Mode
	Width      uint32
	Height     uint32
	PixelCount uint64

	// Per-channel totals; only populated when aggregation is active.
	Channels [NumChannels]ChannelTotal

	// Ray totals and averages per pixel.
	TotalRays       uint64
	AvgRaysPerPixel float64

	// CIR samples that passed validation.
	CIRValidSamples uint64

	// Delay histogram and derived CIR figures; nil/zero if aggregation is inactive.
	Histogram *HistogramSnapshot
	CIR       CIRStats

	// Raw record readback counters and delay quantiles; the records
	// themselves are returned by Pipeline.RawRecords.
	RawAttempted uint32
	RawValid     uint32
	RawDropped   uint32
	RawInvalid   uint32
	DelayP50     float64
	DelayP90     float64
	DelayP99     float64
}

// Get the total of a channel.
func (s Snapshot) Sum(ch Channel) float64 {
	return s.Channels[ch].Sum
}

// Get the average of a channel.
func (s Snapshot) Average(ch Channel) float64 {
	return s.Channels[ch].Average
}

func safeDiv(num float64, den uint64) float64 {
	if den == 0 {
		return 0
	}
	return num / float64(den)
}

// Decode the reduction result slots into the snapshot channel totals.
func (s *Snapshot) loadChannels(m *device.Mapping, offset int) {
	for ch := Channel(0); ch < NumChannels; ch++ {
		slot := offset + int(ch)*slotWords

		var sum float64
		switch ch.ElementType() {
		case Uint32Element:
			sum = float64(m.UVec4(slot).Uint64())
		default:
			sum = float64(m.Float32(slot))
		}
		s.Channels[ch] = ChannelTotal{Channel: ch, Sum: sum}
	}

	s.CIRValidSamples = uint64(s.Channels[CIRValidSamples].Sum)
	s.TotalRays = uint64(s.Channels[VisibilityRays].Sum) + uint64(s.Channels[ClosestHitRays].Sum)
	s.AvgRaysPerPixel = safeDiv(float64(s.TotalRays), s.PixelCount)

	for ch := Channel(0); ch < NumChannels; ch++ {
		den := s.PixelCount
		if ch >= CIRPathLength && ch != CIRValidSamples {
			den = s.CIRValidSamples
		}
		s.Channels[ch].Average = safeDiv(s.Channels[ch].Sum, den)
	}
}

func (s *Snapshot) loadRaw(raw RawRecordStats) {
	s.RawAttempted = raw.Attempted
	s.RawValid = uint32(len(raw.Records))
	s.RawDropped = raw.Dropped
	s.RawInvalid = raw.Invalid
	s.DelayP50 = raw.DelayP50
	s.DelayP90 = raw.DelayP90
	s.DelayP99 = raw.DelayP99
}
