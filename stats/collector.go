package stats

import (
	"math"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/achilleasa/polaris-cir/device"
)

// Delay quantiles are tracked with picosecond resolution up to the largest
// supported max delay.
const (
	quantileMinPs   = 1
	quantileMaxPs   = int64(MaxMaxDelay * 1e12)
	quantileSigFigs = 3
)

// Layout of the cursor buffer.
const (
	cursorAttempts = iota
	cursorRejected
	cursorWords
)

// RawRecordCollector appends path records into a capacity-bounded device
// buffer guarded by an atomic write cursor. Once the cursor reaches the
// capacity further records are dropped while the cursor keeps counting
// attempts. The attempt counter saturates instead of wrapping so a full
// collector never reuses a slot.
type RawRecordCollector struct {
	maxRecords uint32

	// Capacity the records buffer is currently allocated for.
	allocated uint32

	records *device.Buffer
	cursor  *device.Buffer
}

// Create a raw record collector. Device storage is allocated lazily by Ensure.
func NewRawRecordCollector(dev *device.Device, maxRecords uint32) (*RawRecordCollector, error) {
	if err := checkRange("max records", float64(maxRecords), MinMaxRecords, MaxMaxRecords); err != nil {
		return nil, err
	}
	return &RawRecordCollector{
		maxRecords: maxRecords,
		records:    dev.Buffer("raw records"),
		cursor:     dev.Buffer("raw record cursor"),
	}, nil
}

// Get the record capacity.
func (c *RawRecordCollector) MaxRecords() uint32 {
	return c.maxRecords
}

// Change the record capacity. Out of range values are rejected and the
// previous capacity is retained. The new capacity takes effect the next time
// Ensure is called.
func (c *RawRecordCollector) SetMaxRecords(maxRecords uint32) error {
	if err := checkRange("max records", float64(maxRecords), MinMaxRecords, MaxMaxRecords); err != nil {
		return err
	}
	c.maxRecords = maxRecords
	return nil
}

// Check whether the collector storage matches the configured capacity.
func (c *RawRecordCollector) Bound() bool {
	return c.records.Allocated() && c.cursor.Allocated() && c.allocated == c.maxRecords
}

// Make sure the device buffers match the configured capacity. On failure the
// collector is left unbound.
func (c *RawRecordCollector) Ensure() error {
	if c.Bound() {
		return nil
	}

	c.allocated = 0
	if err := c.records.Allocate(int(c.maxRecords)*recordWords*4, device.MemReadWrite); err != nil {
		c.Release()
		return err
	}
	if err := c.cursor.Allocate(cursorWords*4, device.MemReadWrite); err != nil {
		c.Release()
		return err
	}
	c.allocated = c.maxRecords
	return nil
}

// Record a command that resets the write cursor and the rejection counter. Stale records beyond the
// cursor are never read back so the records buffer is left untouched.
func (c *RawRecordCollector) Clear(list *device.CommandList) error {
	return list.Clear(c.cursor)
}

// Release the device storage.
func (c *RawRecordCollector) Release() {
	c.records.Release()
	c.cursor.Release()
	c.allocated = 0
}

func (c *RawRecordCollector) readbackSize() int {
	return (cursorWords + int(c.allocated)*recordWords) * 4
}

// Record copies of the cursor words followed by the record storage into dst
// starting at the given byte offset.
func (c *RawRecordCollector) recordReadback(list *device.CommandList, dst *device.Buffer, offset int) error {
	if err := list.Copy(dst, offset, c.cursor, 0, cursorWords*4); err != nil {
		return err
	}
	return list.Copy(dst, offset+cursorWords*4, c.records, 0, 0)
}

// Decode the collected records from a mapped readback buffer at the given
// word offset. Only the prefix written by the producer is read; records
// failing the filter are discarded and counted along with the records the
// producer rejected.
func (c *RawRecordCollector) loadRecords(m *device.Mapping, offset int, filter Filter, speed float64) RawRecordStats {
	cursor := m.Uint32(offset + cursorAttempts)
	n := min(cursor, c.allocated)

	st := RawRecordStats{
		Attempted: cursor,
		Dropped:   cursor - n,
		Invalid:   m.Uint32(offset + cursorRejected),
		Records:   make([]PathRecord, 0, n),
	}

	delays := hdrhistogram.New(quantileMinPs, quantileMaxPs, quantileSigFigs)
	for i := 0; i < int(n); i++ {
		rec := loadRecord(m, offset+cursorWords+i*recordWords)
		if !rec.Valid(filter) {
			st.Invalid++
			continue
		}
		st.Records = append(st.Records, rec)

		// Out of range delays are only excluded from the quantiles
		_ = delays.RecordValue(int64(rec.Delay(speed) * 1e12))
	}

	if delays.TotalCount() > 0 {
		st.DelayP50 = float64(delays.ValueAtQuantile(50)) * 1e-12
		st.DelayP90 = float64(delays.ValueAtQuantile(90)) * 1e-12
		st.DelayP99 = float64(delays.ValueAtQuantile(99)) * 1e-12
	}
	return st
}

// RecordWriter is the write-only view of the collector handed to producers
// for a single frame. It is safe for concurrent use by kernels.
type RecordWriter struct {
	records  *device.Buffer
	cursor   *device.Buffer
	capacity uint32
}

func (c *RawRecordCollector) writer() *RecordWriter {
	return &RecordWriter{
		records:  c.records,
		cursor:   c.cursor,
		capacity: c.allocated,
	}
}

// Append a record. Append reports false if the collector is full and the
// record was dropped.
func (w *RecordWriter) Append(rec PathRecord) bool {
	for {
		slot := w.cursor.LoadUint32(cursorAttempts)
		if slot == math.MaxUint32 {
			return false
		}
		if !w.cursor.AtomicCompareAndSwapUint32(cursorAttempts, slot, slot+1) {
			continue
		}
		if slot >= w.capacity {
			return false
		}
		rec.store(w.records, int(slot))
		return true
	}
}

// Count a record that failed validation before it could be appended.
func (w *RecordWriter) Reject() {
	w.cursor.AtomicAddUint32(cursorRejected, 1)
}

// RawRecordStats describes the raw records read back for a frame.
type RawRecordStats struct {
	// Usable records.
	Records []PathRecord

	// Number of append attempts reported by the cursor.
	Attempted uint32

	// Records lost because the collector was full.
	Dropped uint32

	// Records rejected by the producer or discarded by the filter during
	// readback.
	Invalid uint32

	// Delay quantiles (s) of the usable records.
	DelayP50 float64
	DelayP90 float64
	DelayP99 float64
}
