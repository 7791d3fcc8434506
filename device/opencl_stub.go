//go:build !opencl

package device

// Enumerate the opencl platforms and devices installed on the system. This
// build does not include opencl support.
func OpenCLPlatforms() ([]PlatformInfo, error) {
	return nil, ErrOpenCLUnavailable
}
