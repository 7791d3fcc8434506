package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/achilleasa/polaris-cir/device"
	"github.com/achilleasa/polaris-cir/export"
	"github.com/achilleasa/polaris-cir/renderer"
	"github.com/achilleasa/polaris-cir/stats"
	"github.com/achilleasa/polaris-cir/tracer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"
)

// Select the first software device whose name contains one of the given values.
func findDevice(names []string) (*device.Device, error) {
	for _, name := range names {
		devList, err := device.SelectDevices(device.AllDevices, name)
		if err != nil {
			logger.Error(err)
			return nil, err
		}

		if len(devList) != 0 {
			return devList[0], nil
		}
	}

	return nil, errors.New("no suitable device found")
}

// Simulate a sequence of frames with synthetic tracers and report the
// collected statistics.
func Simulate(ctx *cli.Context) error {
	setupLogging(ctx)

	opts, err := statsOptions(ctx)
	if err != nil {
		return err
	}
	params, err := sceneParams(ctx)
	if err != nil {
		return err
	}

	var format export.Format
	if ctx.String("format") != "" {
		if format, err = export.ParseFormat(ctx.String("format")); err != nil {
			return err
		}
	}

	dev, err := findDevice([]string{ctx.String("device"), ""})
	if err != nil {
		return err
	}
	if units := ctx.Int("compute-units"); units > 0 {
		dev.ComputeUnits = uint32(units)
	}
	if err = dev.Init(); err != nil {
		return err
	}
	defer dev.Close()
	logger.Noticef(`using device "%s"`, dev.Name)

	reg := prometheus.NewRegistry()
	if addr := ctx.String("metrics-addr"); addr != "" {
		srv := serveMetrics(addr, reg)
		defer shutdownMetrics(srv)
	}

	pipeline, err := stats.NewPipeline(dev, opts, reg)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	tracers := make([]tracer.Tracer, 0, ctx.Int("tracers"))
	for idx := 0; idx < ctx.Int("tracers"); idx++ {
		tr, err := tracer.NewSynthetic(fmt.Sprintf("synthetic-%d", idx), dev, params)
		if err != nil {
			for _, created := range tracers {
				created.Close()
			}
			return err
		}
		tracers = append(tracers, tr)
	}

	r, err := renderer.NewDefault(
		pipeline,
		tracer.PerfectScheduler(),
		tracers,
		renderer.Options{
			FrameW: uint32(ctx.Int("width")),
			FrameH: uint32(ctx.Int("height")),
			Seed:   uint32(ctx.Int("seed")),
		},
	)
	if err != nil {
		for _, tr := range tracers {
			tr.Close()
		}
		return err
	}
	defer r.Close()

	for frame := 0; frame < ctx.Int("frames"); frame++ {
		if err = r.Render(); err != nil {
			return err
		}
		displayFrameStats(r.Stats())

		if err = pipeline.CopyToHost(context.Background()); err != nil {
			logger.Warningf("could not read back frame statistics: %v", err)
			continue
		}
		snap, valid := pipeline.Snapshot()
		if !valid {
			if frameErr := pipeline.FrameError(); frameErr != nil {
				logger.Warning(frameErr)
			}
			continue
		}
		if snap.Mode != stats.RawOnly {
			displayChannelStats(snap)
		}
		displayCIRStats(snap)
	}

	records, valid := pipeline.RawRecords()
	if !valid || len(records) == 0 {
		if ctx.String("format") != "" || ctx.String("redis-addr") != "" {
			logger.Warning("no valid CIR records available for export")
		}
		return nil
	}

	var exportErr error
	if ctx.String("format") != "" {
		exporter := export.NewExporter(ctx.String("out-dir"))
		if _, err = exporter.Export(format, opts.Static, records); err != nil {
			exportErr = err
		}
	}

	if addr := ctx.String("redis-addr"); addr != "" {
		client := export.NewGoRedisLister(addr)
		defer client.Close()

		sink := export.NewRedisSink(client, ctx.String("redis-key"))
		publishCtx, cancel := context.WithTimeout(context.Background(), ctx.Duration("redis-timeout"))
		defer cancel()
		if _, err = sink.Publish(publishCtx, opts.Static, records); err != nil && exportErr == nil {
			exportErr = err
		}
	}

	return exportErr
}

// Expose the registry metrics over HTTP.
func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Noticef("serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("metrics server: %v", err)
		}
	}()

	return srv
}

func shutdownMetrics(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
