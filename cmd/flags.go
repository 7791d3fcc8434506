package cmd

import (
	"time"

	"github.com/achilleasa/polaris-cir/export"
	"github.com/achilleasa/polaris-cir/stats"
	"github.com/urfave/cli"
)

// Flags for the simulate command.
var SimulateFlags = []cli.Flag{
	cli.IntFlag{
		Name:  "width",
		Value: 256,
		Usage: "frame width",
	},
	cli.IntFlag{
		Name:  "height",
		Value: 256,
		Usage: "frame height",
	},
	cli.IntFlag{
		Name:  "frames, n",
		Value: 1,
		Usage: "number of frames to simulate",
	},
	cli.IntFlag{
		Name:  "seed",
		Value: 1,
		Usage: "random seed for the synthetic tracers",
	},
	cli.IntFlag{
		Name:  "tracers",
		Value: 2,
		Usage: "number of synthetic tracers",
	},
	cli.StringFlag{
		Name:  "device, d",
		Usage: "use the first device whose name contains this value",
	},
	cli.IntFlag{
		Name:  "compute-units",
		Usage: "override the number of device compute units",
	},
	// Scene
	cli.StringFlag{
		Name:  "room",
		Value: "5x5x3",
		Usage: "room dimensions in meters (WxDxH)",
	},
	cli.IntFlag{
		Name:  "paths-per-pixel, spp",
		Value: 1,
		Usage: "paths generated per pixel",
	},
	cli.IntFlag{
		Name:  "bounces",
		Value: 3,
		Usage: "max reflections per path",
	},
	cli.Float64Flag{
		Name:  "reflectance",
		Value: 0.8,
		Usage: "wall reflectance",
	},
	cli.Float64Flag{
		Name:  "led-power",
		Value: 1.0,
		Usage: "LED optical power in watts",
	},
	cli.Float64Flag{
		Name:  "light-opening-angle",
		Usage: "LED opening angle in radians; derives the Lambertian order",
	},
	// Statistics
	cli.BoolFlag{
		Name:  "disable-stats",
		Usage: "disable statistics collection",
	},
	cli.StringFlag{
		Name:  "mode",
		Value: stats.Both.String(),
		Usage: "collection mode (aggregate, raw or both)",
	},
	cli.Float64Flag{
		Name:  "time-resolution",
		Value: 1e-9,
		Usage: "histogram bin width in seconds",
	},
	cli.Float64Flag{
		Name:  "max-delay",
		Value: 1e-6,
		Usage: "max histogram delay in seconds",
	},
	cli.IntFlag{
		Name:  "bins",
		Usage: "explicit histogram bin count; derived from max-delay if zero",
	},
	cli.IntFlag{
		Name:  "max-records",
		Value: stats.DefaultMaxRecords,
		Usage: "raw record capacity per frame",
	},
	cli.Float64Flag{
		Name:  "min-path-length",
		Value: 0.1,
		Usage: "min valid path length in meters",
	},
	cli.Float64Flag{
		Name:  "max-path-length",
		Value: 80,
		Usage: "max valid path length in meters",
	},
	cli.Float64Flag{
		Name:  "receiver-area",
		Value: 1e-4,
		Usage: "receiver area in square meters",
	},
	cli.Float64Flag{
		Name:  "receiver-fov",
		Value: 3.1416,
		Usage: "receiver field of view in radians",
	},
	cli.Float64Flag{
		Name:  "focal-length",
		Usage: "camera focal length in mm; derives the receiver area and field of view",
	},
	cli.Float64Flag{
		Name:  "film-height",
		Value: 24,
		Usage: "camera film height in mm",
	},
	cli.Float64Flag{
		Name:  "filter-gain",
		Value: 1.0,
		Usage: "optical filter transmittance",
	},
	cli.Float64Flag{
		Name:  "concentrator-gain",
		Value: 1.0,
		Usage: "optical concentrator gain",
	},
	cli.DurationFlag{
		Name:  "readback-timeout",
		Value: stats.DefaultReadbackTimeout,
		Usage: "max time to wait for frame statistics",
	},
	cli.BoolFlag{
		Name:  "detailed-logging",
		Usage: "log per-frame statistics details",
	},
	cli.BoolFlag{
		Name:  "debug",
		Usage: "panic on frame synchronization misuse",
	},
	// Export
	cli.StringFlag{
		Name:  "format, f",
		Usage: "export the last frame's records (csv, jsonl or txt)",
	},
	cli.StringFlag{
		Name:  "out-dir, o",
		Value: export.DefaultDir,
		Usage: "export folder",
	},
	cli.StringFlag{
		Name:  "redis-addr",
		Usage: "publish the last frame's records to the redis server at this address",
	},
	cli.StringFlag{
		Name:  "redis-key",
		Value: export.DefaultRedisPrefix,
		Usage: "redis list key prefix",
	},
	cli.DurationFlag{
		Name:  "redis-timeout",
		Value: 10 * time.Second,
		Usage: "max time for publishing records",
	},
	cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "serve prometheus metrics on this address",
	},
}
