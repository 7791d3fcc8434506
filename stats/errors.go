package stats

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig      = errors.New("stats: invalid configuration")
	ErrInvalidState       = errors.New("stats: operation not permitted in current frame state")
	ErrSurfaceUnbound     = errors.New("stats: counter surface is not bound")
	ErrUnsupportedOp      = errors.New("stats: unsupported reduction operation")
	ErrFrameInvalid       = errors.New("stats: frame statistics are invalid")
	ErrNoDevice           = errors.New("stats: no device attached")
	ErrReadbackNotReady   = errors.New("stats: readback requested before fence completion")
	ErrSlotOutOfRange     = errors.New("stats: reduction result slot out of range")
	ErrCollectionDisabled = errors.New("stats: collection disabled for current mode")
)

// A ConfigError describes a rejected configuration value. The previous valid
// configuration remains in effect when a ConfigError is returned by a setter.
type ConfigError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("stats: invalid %s %g; expected a value in [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

func checkRange(field string, val, lo, hi float64) error {
	if !(val >= lo && val <= hi) {
		return &ConfigError{Field: field, Value: val, Min: lo, Max: hi}
	}
	return nil
}
