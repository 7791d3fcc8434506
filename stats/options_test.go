package stats

import (
	"errors"
	"math"
	"testing"
)

func TestHistogramConfigBins(t *testing.T) {
	type spec struct {
		cfg     HistogramConfig
		expBins uint32
		expErr  bool
	}
	specs := []spec{
		{HistogramConfig{TimeResolution: 1e-9, MaxDelay: 1e-8}, 10, false},
		{HistogramConfig{TimeResolution: 1e-9, MaxDelay: 1e-6}, 1000, false},
		{HistogramConfig{TimeResolution: 3e-9, MaxDelay: 1e-7}, 34, false},
		{HistogramConfig{TimeResolution: 1e-9, MaxDelay: 1e-8, BinCount: 64}, 64, false},
		// Too few bins to cover the max delay
		{HistogramConfig{TimeResolution: 1e-9, MaxDelay: 1e-7, BinCount: 50}, 50, true},
		// Below the minimum bin count
		{HistogramConfig{TimeResolution: 1e-6, MaxDelay: 2e-6}, 2, true},
		// Above the maximum bin count
		{HistogramConfig{TimeResolution: 1e-12, MaxDelay: 1e-3}, 1000000000, true},
	}

	for index, s := range specs {
		if got := s.cfg.Bins(); got != s.expBins {
			t.Fatalf("[spec %d] expected %d bins; got %d", index, s.expBins, got)
		}
		err := s.cfg.Validate()
		if s.expErr != (err != nil) {
			t.Fatalf("[spec %d] expected error: %t; got %v", index, s.expErr, err)
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Fatalf("expected default options to be valid; got %v", err)
	}

	specs := []func(*Options){
		func(o *Options) { o.Mode = Mode(7) },
		func(o *Options) { o.MaxRecords = 0 },
		func(o *Options) { o.Histogram.MaxDelay = 0 },
		func(o *Options) { o.Filter.Angle = Range{2, 1} },
		func(o *Options) { o.Filter.PathLength.Max = float32(math.NaN()) },
		func(o *Options) { o.Static.ReceiverArea = 2 },
		func(o *Options) { o.Static.PropagationSpeed = 0 },
		func(o *Options) { o.ReadbackTimeout = 0 },
	}
	for index, mutate := range specs {
		opts := DefaultOptions()
		mutate(&opts)
		if err := opts.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("[spec %d] expected ErrInvalidConfig; got %v", index, err)
		}
	}
}

func TestConfigErrorDetails(t *testing.T) {
	err := checkRange("max records", 0, MinMaxRecords, MaxMaxRecords)

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected a *ConfigError; got %T", err)
	}
	if cfgErr.Field != "max records" || cfgErr.Min != MinMaxRecords || cfgErr.Max != MaxMaxRecords {
		t.Fatalf("unexpected error details: %+v", cfgErr)
	}
}

func TestParseMode(t *testing.T) {
	type spec struct {
		in     string
		exp    Mode
		expErr bool
	}
	specs := []spec{
		{"aggregate", AggregateOnly, false},
		{"RAW", RawOnly, false},
		{"raw-only", RawOnly, false},
		{"both", Both, false},
		{"everything", AggregateOnly, true},
	}
	for index, s := range specs {
		mode, err := ParseMode(s.in)
		if s.expErr {
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("[spec %d] expected ErrInvalidConfig; got %v", index, err)
			}
			continue
		}
		if err != nil || mode != s.exp {
			t.Fatalf("[spec %d] expected mode %s; got %s (%v)", index, s.exp, mode, err)
		}
		if parsed, _ := ParseMode(mode.String()); parsed != mode {
			t.Fatalf("[spec %d] expected mode name %q to round-trip; got %s", index, mode.String(), parsed)
		}
	}
}

func TestRecordValid(t *testing.T) {
	filter := DefaultFilter()

	type spec struct {
		mutate func(*PathRecord)
		exp    bool
	}
	specs := []spec{
		{func(_ *PathRecord) {}, true},
		{func(r *PathRecord) { r.PathLength = 0.05 }, false},
		{func(r *PathRecord) { r.PathLength = 81 }, false},
		{func(r *PathRecord) { r.EmissionAngle = -0.1 }, false},
		{func(r *PathRecord) { r.ReceptionAngle = 3.2 }, false},
		{func(r *PathRecord) { r.ReflectanceProduct = float32(math.Inf(1)) }, false},
		{func(r *PathRecord) { r.EmittedPower = 0 }, false},
		{func(r *PathRecord) { r.ReflectanceProduct = 1 }, true},
	}
	for index, s := range specs {
		rec := validRecord(1.5)
		s.mutate(&rec)
		if got := rec.Valid(filter); got != s.exp {
			t.Fatalf("[spec %d] expected validity %t; got %t", index, s.exp, got)
		}
	}
}
