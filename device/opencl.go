//go:build opencl

package device

import (
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"
)

const (
	platformBufferSize = 100
	deviceBufferSize   = 100
	dataBufferSize     = 1024
)

// Enumerate the opencl platforms and devices installed on the system.
func OpenCLPlatforms() ([]PlatformInfo, error) {
	pids := make([]cl.PlatformID, platformBufferSize)
	data := make([]byte, dataBufferSize)
	dataLen := uint64(0)

	devices := make([]cl.DeviceId, deviceBufferSize)
	deviceCount := uint32(0)

	pidCount := uint32(0)
	cl.GetPlatformIDs(uint32(len(pids)), &pids[0], &pidCount)

	infoList := make([]PlatformInfo, int(pidCount))
	for pIdx := 0; pIdx < int(pidCount); pIdx++ {
		cl.GetPlatformInfo(pids[pIdx], cl.PLATFORM_VERSION, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
		infoList[pIdx].Version = string(data[0 : dataLen-1])

		cl.GetPlatformInfo(pids[pIdx], cl.PLATFORM_NAME, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
		infoList[pIdx].Name = string(data[0 : dataLen-1])

		cl.GetPlatformInfo(pids[pIdx], cl.PLATFORM_VENDOR, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
		infoList[pIdx].Vendor = string(data[0 : dataLen-1])

		// Enumerate CPU devices
		deviceCount = 0
		cl.GetDeviceIDs(pids[pIdx], cl.DEVICE_TYPE_CPU, uint32(deviceBufferSize), &devices[0], &deviceCount)
		for dIdx := 0; dIdx < int(deviceCount); dIdx++ {
			infoList[pIdx].Devices = append(infoList[pIdx].Devices, describeDevice(devices[dIdx], CpuDevice, data))
		}

		// Enumerate GPU devices
		deviceCount = 0
		cl.GetDeviceIDs(pids[pIdx], cl.DEVICE_TYPE_GPU, uint32(deviceBufferSize), &devices[0], &deviceCount)
		for dIdx := 0; dIdx < int(deviceCount); dIdx++ {
			infoList[pIdx].Devices = append(infoList[pIdx].Devices, describeDevice(devices[dIdx], GpuDevice, data))
		}
	}

	return infoList, nil
}

func describeDevice(id cl.DeviceId, devType DeviceType, data []byte) *Device {
	var dataLen uint64
	var clockSpeed uint32

	cl.GetDeviceInfo(id, cl.DEVICE_NAME, dataBufferSize, unsafe.Pointer(&data[0]), &dataLen)
	dev := &Device{
		Name: string(data[0 : dataLen-1]),
		Type: devType,
	}

	// Calculate theoretical device speed as: compute units * 2ops/cycle * clock speed
	cl.GetDeviceInfo(id, cl.DEVICE_MAX_COMPUTE_UNITS, 4, unsafe.Pointer(&dev.ComputeUnits), nil)
	cl.GetDeviceInfo(id, cl.DEVICE_MAX_CLOCK_FREQUENCY, 4, unsafe.Pointer(&clockSpeed), nil)
	dev.Speed = dev.ComputeUnits * clockSpeed / 1000

	return dev
}
