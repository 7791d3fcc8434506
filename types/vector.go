package types

import (
	"math"

	"golang.org/x/image/math/f32"
)

// A 4 component float vector. Vector-typed counter surfaces and reduction
// result slots use this layout.
type Vec4 f32.Vec4

// A 4 component unsigned vector matching the layout of an uint4 reduction slot.
type UVec4 [4]uint32

// Define a 4 component vector.
func XYZW(x, y, z, w float32) Vec4 {
	return Vec4{x, y, z, w}
}

// Add a vector.
func (v Vec4) Add(v2 Vec4) Vec4 {
	return Vec4{v[0] + v2[0], v[1] + v2[1], v[2] + v2[2], v[3] + v2[3]}
}

// Component-wise minimum.
func (v Vec4) Min(v2 Vec4) Vec4 {
	return Vec4{
		float32(math.Min(float64(v[0]), float64(v2[0]))),
		float32(math.Min(float64(v[1]), float64(v2[1]))),
		float32(math.Min(float64(v[2]), float64(v2[2]))),
		float32(math.Min(float64(v[3]), float64(v2[3]))),
	}
}

// Component-wise maximum.
func (v Vec4) Max(v2 Vec4) Vec4 {
	return Vec4{
		float32(math.Max(float64(v[0]), float64(v2[0]))),
		float32(math.Max(float64(v[1]), float64(v2[1]))),
		float32(math.Max(float64(v[2]), float64(v2[2]))),
		float32(math.Max(float64(v[3]), float64(v2[3]))),
	}
}

// Multiply all components with a scalar.
func (v Vec4) Mul(s float32) Vec4 {
	return Vec4{v[0] * s, v[1] * s, v[2] * s, v[3] * s}
}

// Check that all components are finite numbers.
func (v Vec4) IsFinite() bool {
	for _, c := range v {
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return false
		}
	}
	return true
}

// Combine the x (low) and y (high) words of an uint4 slot into a 64-bit value.
func (v UVec4) Uint64() uint64 {
	return uint64(v[0]) | uint64(v[1])<<32
}

// Split a 64-bit value into the x (low) and y (high) words of an uint4 slot.
func SplitUint64(val uint64) UVec4 {
	return UVec4{uint32(val), uint32(val >> 32), 0, 0}
}
