package stats

import (
	"fmt"

	"github.com/achilleasa/polaris-cir/device"
	"github.com/achilleasa/polaris-cir/types"
)

// ElementType describes the layout of a counter surface element.
type ElementType uint8

const (
	Uint32Element ElementType = iota
	Float32Element
	Vec4Element
)

// Get the number of 32-bit words per element.
func (e ElementType) Words() int {
	if e == Vec4Element {
		return 4
	}
	return 1
}

func (e ElementType) String() string {
	switch e {
	case Uint32Element:
		return "uint32"
	case Float32Element:
		return "float32"
	case Vec4Element:
		return "vec4"
	}
	return fmt.Sprintf("ElementType(%d)", uint8(e))
}

// Channel identifies a tracked per-pixel quantity.
type Channel uint8

const (
	VisibilityRays Channel = iota
	ClosestHitRays
	PathLength
	PathVertices
	VolumeLookups
	CIRPathLength
	CIREmissionAngle
	CIRReceptionAngle
	CIRReflectance
	CIREmittedPower
	CIRReflectionCount
	CIRValidSamples

	// The number of tracked channels.
	NumChannels
)

var channelInfo = [NumChannels]struct {
	name string
	elem ElementType
}{
	VisibilityRays:     {"visibilityRays", Uint32Element},
	ClosestHitRays:     {"closestHitRays", Uint32Element},
	PathLength:         {"pathLength", Float32Element},
	PathVertices:       {"pathVertices", Uint32Element},
	VolumeLookups:      {"volumeLookups", Uint32Element},
	CIRPathLength:      {"cirPathLength", Float32Element},
	CIREmissionAngle:   {"cirEmissionAngle", Float32Element},
	CIRReceptionAngle:  {"cirReceptionAngle", Float32Element},
	CIRReflectance:     {"cirReflectance", Float32Element},
	CIREmittedPower:    {"cirEmittedPower", Float32Element},
	CIRReflectionCount: {"cirReflectionCount", Uint32Element},
	CIRValidSamples:    {"cirValidSamples", Uint32Element},
}

func (c Channel) String() string {
	if c < NumChannels {
		return channelInfo[c].name
	}
	return fmt.Sprintf("Channel(%d)", uint8(c))
}

// Get the element type used by the channel surface.
func (c Channel) ElementType() ElementType {
	return channelInfo[c].elem
}

// A CounterSurface is a device-resident 2D array of per-pixel counters.
type CounterSurface struct {
	name   string
	elem   ElementType
	width  uint32
	height uint32
	buf    *device.Buffer
}

// Create an unbound counter surface. Call Resize to allocate device storage.
func NewCounterSurface(dev *device.Device, name string, elem ElementType) *CounterSurface {
	return &CounterSurface{
		name: name,
		elem: elem,
		buf:  dev.Buffer(name),
	}
}

// Get surface name.
func (s *CounterSurface) Name() string {
	return s.name
}

// Get the element type.
func (s *CounterSurface) ElementType() ElementType {
	return s.elem
}

// Get surface dimensions.
func (s *CounterSurface) Dims() (uint32, uint32) {
	return s.width, s.height
}

// Get the number of elements.
func (s *CounterSurface) Elements() int {
	return int(s.width) * int(s.height)
}

// Check whether the surface is backed by device storage.
func (s *CounterSurface) Bound() bool {
	return s.buf.Allocated()
}

// Get the backing device buffer.
func (s *CounterSurface) Buffer() *device.Buffer {
	return s.buf
}

// Ensure the surface is allocated with the given dimensions. Storage is only
// reallocated when the dimensions change. If the allocation fails the surface
// is left unbound.
func (s *CounterSurface) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("stats: surface %s: invalid dimensions %dx%d", s.name, width, height)
	}
	if s.Bound() && s.width == width && s.height == height {
		return nil
	}

	s.width, s.height = 0, 0
	if err := s.buf.Allocate(int(width)*int(height)*s.elem.Words()*4, device.MemReadWrite); err != nil {
		return err
	}
	s.width, s.height = width, height
	return nil
}

// Release the device storage.
func (s *CounterSurface) Release() {
	s.buf.Release()
	s.width, s.height = 0, 0
}

// Get the word index of the element at (x, y).
func (s *CounterSurface) index(x, y uint32) int {
	return (int(y)*int(s.width) + int(x)) * s.elem.Words()
}

// Read the surface contents of an uint32 surface.
func (s *CounterSurface) ReadUint32() ([]uint32, error) {
	if err := s.checkRead(Uint32Element); err != nil {
		return nil, err
	}
	out := make([]uint32, s.Elements())
	return out, s.buf.ReadData(0, 0, 0, out)
}

// Read the surface contents of a float32 surface.
func (s *CounterSurface) ReadFloat32() ([]float32, error) {
	if err := s.checkRead(Float32Element); err != nil {
		return nil, err
	}
	out := make([]float32, s.Elements())
	return out, s.buf.ReadData(0, 0, 0, out)
}

// Read the surface contents of a vec4 surface.
func (s *CounterSurface) ReadVec4() ([]types.Vec4, error) {
	if err := s.checkRead(Vec4Element); err != nil {
		return nil, err
	}
	out := make([]types.Vec4, s.Elements())
	return out, s.buf.ReadData(0, 0, 0, out)
}

func (s *CounterSurface) checkRead(elem ElementType) error {
	if !s.Bound() {
		return fmt.Errorf("%w: %s", ErrSurfaceUnbound, s.name)
	}
	if s.elem != elem {
		return fmt.Errorf("stats: surface %s stores %s elements; requested %s", s.name, s.elem, elem)
	}
	return nil
}
