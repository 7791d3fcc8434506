package device

import (
	"bytes"
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/mem"
)

// Fraction of the available host memory that software devices may allocate.
const memoryBudgetRatio = 0.5

var (
	indentRegex = regexp.MustCompile("(?m)^")
)

// Information about a platform and the devices it exposes.
type PlatformInfo struct {
	Name    string
	Vendor  string
	Version string
	Devices DeviceList
}

func (pl PlatformInfo) String() string {
	var buf bytes.Buffer

	buf.WriteString(
		fmt.Sprintf(
			"Name:    %s\nVendor:  %s\nVersion: %s\nDevices:\n",
			pl.Name,
			pl.Vendor,
			pl.Version,
		),
	)

	for dIdx, d := range pl.Devices {
		buf.WriteString(fmt.Sprintf("  Device %02d:\n", dIdx))
		buf.WriteString(indentRegex.ReplaceAllString(d.String(), "    "))
		buf.WriteString("\n\n")
	}

	return buf.String()
}

// Get information about the software platform backed by the host CPU.
func GetPlatformInfo() ([]PlatformInfo, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("device: could not query host memory: %w", err)
	}

	name := strings.TrimSpace(cpuid.CPU.BrandName)
	if name == "" {
		name = runtime.GOARCH + " cpu"
	}

	computeUnits := uint32(cpuid.CPU.LogicalCores)
	if computeUnits == 0 {
		computeUnits = uint32(runtime.NumCPU())
	}

	dev := NewDevice(name, computeUnits, uint64(float64(vm.Available)*memoryBudgetRatio))
	dev.Speed = estimateSpeed(computeUnits, cpuid.CPU.Hz)

	return []PlatformInfo{
		{
			Name:    "software",
			Vendor:  cpuid.CPU.VendorString,
			Version: runtime.Version(),
			Devices: DeviceList{dev},
		},
	}, nil
}

// Scan all available platforms and select devices that match the given query.
func SelectDevices(typeMask DeviceType, matchName string) (DeviceList, error) {
	platforms, err := GetPlatformInfo()
	if err != nil {
		return nil, err
	}
	list := make(DeviceList, 0)
	for _, p := range platforms {
		for _, d := range p.Devices {
			// Match type
			if d.Type&typeMask != d.Type {
				continue
			}

			// Match name
			if matchName != "" && !strings.Contains(d.Name, matchName) {
				continue
			}

			list = append(list, d)
		}
	}
	return list, nil
}

// Calculate theoretical device speed as: compute units * 2ops/cycle * clock speed.
func estimateSpeed(computeUnits uint32, hz int64) uint32 {
	if hz <= 0 {
		return computeUnits
	}
	return uint32(int64(computeUnits) * 2 * hz / 1e9)
}
