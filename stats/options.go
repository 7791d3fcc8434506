package stats

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Configuration limits.
const (
	MinTimeResolution = 1e-12
	MaxTimeResolution = 1e-6
	MinMaxDelay       = 1e-9
	MaxMaxDelay       = 1e-3
	MinBinCount       = 10
	MaxBinCount       = 1000000
	MinMaxRecords     = 1
	MaxMaxRecords     = 10000000

	// Default raw record capacity per frame.
	DefaultMaxRecords = 50000

	// Speed of light in m/s.
	DefaultPropagationSpeed = 3.0e8

	// Max time to block on the readback fence.
	DefaultReadbackTimeout = 5 * time.Second
)

// Mode selects which collection paths are active for a frame.
type Mode uint8

const (
	// Reduce counter surfaces and accumulate the delay histogram.
	AggregateOnly Mode = iota
	// Only collect raw path records.
	RawOnly
	// Aggregate and collect raw records.
	Both
)

func (m Mode) String() string {
	switch m {
	case AggregateOnly:
		return "aggregate"
	case RawOnly:
		return "raw"
	case Both:
		return "both"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Parse a collection mode from its textual representation.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "aggregate", "aggregate-only":
		return AggregateOnly, nil
	case "raw", "raw-only":
		return RawOnly, nil
	case "both":
		return Both, nil
	}
	return AggregateOnly, fmt.Errorf("stats: unknown collection mode %q: %w", s, ErrInvalidConfig)
}

func (m Mode) aggregate() bool {
	return m == AggregateOnly || m == Both
}

func (m Mode) raw() bool {
	return m == RawOnly || m == Both
}

// The histogram configuration.
type HistogramConfig struct {
	// Width of a bin in seconds.
	TimeResolution float64

	// The largest delay (in seconds) that the histogram must be able to represent.
	MaxDelay float64

	// Explicit bin count. If zero, the bin count is derived from MaxDelay
	// and TimeResolution.
	BinCount uint32
}

// Get the minimum number of bins needed to cover MaxDelay.
func (c HistogramConfig) RequiredBins() uint32 {
	if c.TimeResolution <= 0 {
		return 0
	}
	// Guard against representation error pushing an exact ratio over the next integer.
	return uint32(math.Ceil(c.MaxDelay/c.TimeResolution - 1e-9))
}

// Get the effective bin count.
func (c HistogramConfig) Bins() uint32 {
	if c.BinCount != 0 {
		return c.BinCount
	}
	return c.RequiredBins()
}

// Validate the histogram configuration.
func (c HistogramConfig) Validate() error {
	if err := checkRange("time resolution", c.TimeResolution, MinTimeResolution, MaxTimeResolution); err != nil {
		return err
	}
	if err := checkRange("max delay", c.MaxDelay, MinMaxDelay, MaxMaxDelay); err != nil {
		return err
	}

	required := c.RequiredBins()
	if err := checkRange("bin count", float64(c.Bins()), math.Max(MinBinCount, float64(required)), MaxBinCount); err != nil {
		return err
	}
	return nil
}

// A closed range used by the path record validity predicate.
type Range struct {
	Min float32
	Max float32
}

func (r Range) contains(v float32) bool {
	return v >= r.Min && v <= r.Max
}

// Filter ranges used for validating path records.
type Filter struct {
	PathLength   Range
	EmittedPower Range
	Angle        Range
	Reflectance  Range
}

// Get the default path record filter.
func DefaultFilter() Filter {
	return Filter{
		PathLength:   Range{0.1, 80},
		EmittedPower: Range{1e-14, 1e5},
		Angle:        Range{0, math.Pi},
		Reflectance:  Range{0, 1},
	}
}

// Validate filter ranges.
func (f Filter) Validate() error {
	ranges := []struct {
		name string
		r    Range
	}{
		{"path length range", f.PathLength},
		{"emitted power range", f.EmittedPower},
		{"angle range", f.Angle},
		{"reflectance range", f.Reflectance},
	}
	for _, entry := range ranges {
		lo, hi := float64(entry.r.Min), float64(entry.r.Max)
		if math.IsNaN(lo) || math.IsInf(lo, 0) || math.IsNaN(hi) || math.IsInf(hi, 0) || lo > hi {
			return &ConfigError{Field: entry.name, Value: lo, Min: lo, Max: hi}
		}
	}
	return nil
}

// Options for the statistics pipeline.
type Options struct {
	// Gates all instrumentation. A disabled pipeline still runs the frame
	// state machine but allocates and submits nothing.
	Enabled bool

	// Active collection paths.
	Mode Mode

	// Delay histogram layout.
	Histogram HistogramConfig

	// Raw record capacity per frame.
	MaxRecords uint32

	// Path record validity ranges.
	Filter Filter

	// VLC channel parameters used for weighting histogram bins and for exports.
	Static StaticParameters

	// Max time to block while waiting for frame data.
	ReadbackTimeout time.Duration

	// Emit per-frame diagnostics at Info level.
	DetailedLogging bool

	// Panic on frame state misuse instead of returning ErrInvalidState.
	Debug bool
}

// Get the default pipeline options.
func DefaultOptions() Options {
	return Options{
		Enabled: true,
		Mode:    Both,
		Histogram: HistogramConfig{
			TimeResolution: 1e-9,
			MaxDelay:       1e-6,
		},
		MaxRecords:      DefaultMaxRecords,
		Filter:          DefaultFilter(),
		Static:          DefaultStaticParameters(),
		ReadbackTimeout: DefaultReadbackTimeout,
	}
}

// Validate all options.
func (o Options) Validate() error {
	if o.Mode > Both {
		return fmt.Errorf("stats: unknown collection mode %d: %w", o.Mode, ErrInvalidConfig)
	}
	if err := o.Histogram.Validate(); err != nil {
		return err
	}
	if err := checkRange("max records", float64(o.MaxRecords), MinMaxRecords, MaxMaxRecords); err != nil {
		return err
	}
	if err := o.Filter.Validate(); err != nil {
		return err
	}
	if err := o.Static.Validate(); err != nil {
		return err
	}
	if o.ReadbackTimeout <= 0 {
		return &ConfigError{Field: "readback timeout", Value: o.ReadbackTimeout.Seconds(), Min: 0, Max: math.Inf(1)}
	}
	return nil
}
