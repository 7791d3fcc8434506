package stats

import (
	"math"

	"github.com/achilleasa/polaris-cir/device"
)

// The number of 32-bit words used by an encoded PathRecord.
const recordWords = 8

// A PathRecord describes a single light path sample that reached the receiver.
type PathRecord struct {
	// Total propagation distance (m).
	PathLength float32 `json:"path_length_m"`

	// Angle between the emitter normal and the outgoing direction (radians).
	EmissionAngle float32 `json:"emission_angle_rad"`

	// Angle between the receiver normal and the incoming direction (radians).
	ReceptionAngle float32 `json:"reception_angle_rad"`

	// Product of the reflectances of all surfaces along the path.
	ReflectanceProduct float32 `json:"reflectance_product"`

	// Number of reflections along the path.
	ReflectionCount uint32 `json:"reflection_count"`

	// Power emitted into the path (W).
	EmittedPower float32 `json:"emitted_power_w"`

	// Originating pixel.
	PixelX uint32 `json:"pixel_x"`
	PixelY uint32 `json:"pixel_y"`
}

// Check that all fields are finite and within the filter ranges.
func (r PathRecord) Valid(f Filter) bool {
	for _, v := range [...]float32{r.PathLength, r.EmissionAngle, r.ReceptionAngle, r.ReflectanceProduct, r.EmittedPower} {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}

	return f.PathLength.contains(r.PathLength) &&
		f.EmittedPower.contains(r.EmittedPower) &&
		f.Angle.contains(r.EmissionAngle) &&
		f.Angle.contains(r.ReceptionAngle) &&
		f.Reflectance.contains(r.ReflectanceProduct)
}

// Get the propagation delay (s) of the path for the given propagation speed (m/s).
func (r PathRecord) Delay(speed float64) float64 {
	return float64(r.PathLength) / speed
}

// Store the record at the given record slot of a device buffer.
func (r PathRecord) store(buf *device.Buffer, slot int) {
	base := slot * recordWords
	buf.StoreFloat32(base, r.PathLength)
	buf.StoreFloat32(base+1, r.EmissionAngle)
	buf.StoreFloat32(base+2, r.ReceptionAngle)
	buf.StoreFloat32(base+3, r.ReflectanceProduct)
	buf.StoreUint32(base+4, r.ReflectionCount)
	buf.StoreFloat32(base+5, r.EmittedPower)
	buf.StoreUint32(base+6, r.PixelX)
	buf.StoreUint32(base+7, r.PixelY)
}

// Decode the record at the given word offset of a mapped buffer.
func loadRecord(m *device.Mapping, offset int) PathRecord {
	return PathRecord{
		PathLength:         m.Float32(offset),
		EmissionAngle:      m.Float32(offset + 1),
		ReceptionAngle:     m.Float32(offset + 2),
		ReflectanceProduct: m.Float32(offset + 3),
		ReflectionCount:    m.Uint32(offset + 4),
		EmittedPower:       m.Float32(offset + 5),
		PixelX:             m.Uint32(offset + 6),
		PixelY:             m.Uint32(offset + 7),
	}
}
