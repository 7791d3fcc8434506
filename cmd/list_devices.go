package cmd

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/achilleasa/polaris-cir/device"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/urfave/cli"
)

// List available compute devices.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	var buf bytes.Buffer

	vm, err := mem.VirtualMemory()
	if err != nil {
		return err
	}
	buf.WriteString(fmt.Sprintf("\nHost memory: %d MiB total, %d MiB available\n", vm.Total>>20, vm.Available>>20))

	platforms, err := device.GetPlatformInfo()
	if err != nil {
		return err
	}

	clPlatforms, err := device.OpenCLPlatforms()
	switch {
	case errors.Is(err, device.ErrOpenCLUnavailable):
		logger.Info(err)
	case err != nil:
		logger.Warningf("could not list opencl platforms: %v", err)
	default:
		platforms = append(platforms, clPlatforms...)
	}

	buf.WriteString(fmt.Sprintf("\nSystem provides %d platform(s):\n\n", len(platforms)))
	for pIdx, platformInfo := range platforms {
		buf.WriteString(fmt.Sprintf("[Platform %02d]\n", pIdx))
		buf.WriteString(indent(platformInfo.String()))
	}

	logger.Notice(buf.String())
	return nil
}

func indent(text string) string {
	var buf bytes.Buffer
	for _, line := range bytes.SplitAfter([]byte(text), []byte("\n")) {
		if len(line) > 1 {
			buf.WriteString("  ")
		}
		buf.Write(line)
	}
	return buf.String()
}
