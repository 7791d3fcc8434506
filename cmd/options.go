package cmd

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/achilleasa/polaris-cir/stats"
	"github.com/achilleasa/polaris-cir/tracer"
	"github.com/urfave/cli"
)

// Build the statistics pipeline options from the command flags.
func statsOptions(ctx *cli.Context) (stats.Options, error) {
	opts := stats.DefaultOptions()

	mode, err := stats.ParseMode(ctx.String("mode"))
	if err != nil {
		return opts, err
	}

	opts.Enabled = !ctx.Bool("disable-stats")
	opts.Mode = mode
	opts.Histogram = stats.HistogramConfig{
		TimeResolution: ctx.Float64("time-resolution"),
		MaxDelay:       ctx.Float64("max-delay"),
		BinCount:       uint32(ctx.Int("bins")),
	}
	opts.MaxRecords = uint32(ctx.Int("max-records"))
	opts.Filter.PathLength = stats.Range{
		Min: float32(ctx.Float64("min-path-length")),
		Max: float32(ctx.Float64("max-path-length")),
	}
	opts.ReadbackTimeout = ctx.Duration("readback-timeout")
	opts.DetailedLogging = ctx.Bool("detailed-logging")
	opts.Debug = ctx.Bool("debug")

	// Receiver parameters can either be derived from a camera or set directly
	var camera *stats.CameraInfo
	if ctx.Float64("focal-length") > 0 {
		camera = &stats.CameraInfo{
			FocalLength: ctx.Float64("focal-length"),
			FrameHeight: ctx.Float64("film-height"),
			AspectRatio: float64(ctx.Int("width")) / float64(ctx.Int("height")),
		}
	}
	opts.Static = stats.DeriveStaticParameters(camera, ctx.Float64("light-opening-angle"), uint32(ctx.Int("width")), uint32(ctx.Int("height")))
	if camera == nil {
		opts.Static.ReceiverArea = ctx.Float64("receiver-area")
		opts.Static.FieldOfView = ctx.Float64("receiver-fov")
	}
	opts.Static.OpticalFilterGain = ctx.Float64("filter-gain")
	opts.Static.ConcentratorGain = ctx.Float64("concentrator-gain")

	if err = validateLED(ctx.Float64("led-power"), ctx.Float64("light-opening-angle")); err != nil {
		return opts, err
	}

	return opts, opts.Validate()
}

// Validate the LED power and the half-power angle implied by the opening angle.
func validateLED(power, openingAngle float64) error {
	if !(power >= stats.MinLEDPower && power <= stats.MaxLEDPower) {
		return &stats.ConfigError{Field: "LED power", Value: power, Min: stats.MinLEDPower, Max: stats.MaxLEDPower}
	}
	if openingAngle <= 0 {
		return nil
	}
	halfAngle := math.Min(openingAngle*0.5, math.Pi*0.5)
	if !(halfAngle >= stats.MinHalfPowerAngle && halfAngle <= stats.MaxHalfPowerAngle) {
		return &stats.ConfigError{Field: "half-power angle", Value: halfAngle, Min: stats.MinHalfPowerAngle, Max: stats.MaxHalfPowerAngle}
	}
	return nil
}

// Build the synthetic scene parameters from the command flags.
func sceneParams(ctx *cli.Context) (tracer.SceneParams, error) {
	params := tracer.DefaultSceneParams()
	params.PathsPerPixel = uint32(ctx.Int("paths-per-pixel"))
	params.MaxBounces = uint32(ctx.Int("bounces"))
	params.Reflectance = float32(ctx.Float64("reflectance"))
	params.LEDPower = float32(ctx.Float64("led-power"))

	dims, err := parseRoom(ctx.String("room"))
	if err != nil {
		return params, err
	}
	params.Width, params.Depth, params.Height = dims[0], dims[1], dims[2]

	return params, params.Validate()
}

// Parse room dimensions in WxDxH format.
func parseRoom(s string) ([3]float32, error) {
	var dims [3]float32

	parts := strings.Split(strings.ToLower(s), "x")
	if len(parts) != 3 {
		return dims, fmt.Errorf("invalid room dimensions %q; expected WxDxH", s)
	}
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return dims, fmt.Errorf("invalid room dimensions %q: %w", s, err)
		}
		dims[i] = float32(v)
	}
	return dims, nil
}
