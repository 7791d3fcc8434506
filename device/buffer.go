package device

import (
	"fmt"
	"math"
	"reflect"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/achilleasa/polaris-cir/types"
)

type MemFlags uint8

// Supported buffer flags.
const (
	MemReadWrite MemFlags = 1 << iota
	// The buffer can be mapped into host memory. Host-visible buffers are
	// only ever written by device commands.
	MemHostVisible
)

// Device buffers store 32-bit words; all sizes and offsets are specified in
// bytes and sizes must be a multiple of the word size.
const wordSize = 4

type Buffer struct {
	// Associated Device.
	device *Device

	// A name for identifying the buffer.
	name string

	// Allocated size and flags.
	size  int
	flags MemFlags

	// Backing storage.
	words []uint32

	mapMu  sync.Mutex
	mapped *Mapping
}

// Get buffer name.
func (b *Buffer) Name() string {
	return b.name
}

// Get buffer size in bytes.
func (b *Buffer) Size() int {
	return b.size
}

// Get the number of 32-bit words in the buffer.
func (b *Buffer) Len() int {
	return len(b.words)
}

// Check whether the buffer is backed by device memory.
func (b *Buffer) Allocated() bool {
	return b.words != nil
}

// Allocate a buffer with the given size and flags. If the allocation fails
// the buffer is left unset.
func (b *Buffer) Allocate(size int, flags MemFlags) error {
	// If the buffer is already allocated release it
	b.Release()

	if size <= 0 || size%wordSize != 0 {
		return fmt.Errorf("device (%s): could not allocate buffer %s of size %d; size must be a positive multiple of %d", b.device.Name, b.name, size, wordSize)
	}

	if err := b.device.reserve(b.name, uint64(size)); err != nil {
		return err
	}

	b.words = make([]uint32, size/wordSize)
	b.size = size
	b.flags = flags

	return nil
}

// Allocate a buffer with enough capacity to fit the given data.
func (b *Buffer) AllocateToFitData(data interface{}, flags MemFlags) error {
	_, dataLen := getSliceData(data)
	return b.Allocate(alignToWord(dataLen), flags)
}

// Allocate a buffer with the given flags that is large enough to hold the
// given data and copy the data into it. The behavior of this method is
// undefined if a non-slice argument is passed or the argument does not use
// contiguous memory.
func (b *Buffer) AllocateAndWriteData(data interface{}, flags MemFlags) error {
	if err := b.AllocateToFitData(data, flags); err != nil {
		return err
	}
	return b.WriteData(data, 0)
}

// Write data to the device buffer at the given byte offset. The write is
// ordered after any previously submitted work. The behavior of this method
// is undefined if a non-slice argument is passed or the argument does not
// use contiguous memory.
func (b *Buffer) WriteData(data interface{}, offset int) error {
	if !b.Allocated() {
		return fmt.Errorf("device (%s): could not write to buffer %s: %w", b.device.Name, b.name, ErrBufferNotAllocated)
	}

	dataPtr, dataLen := getSliceData(data)
	if offset < 0 || offset+dataLen > b.size {
		return fmt.Errorf("device (%s): insufficient buffer space (%d) in %s for copying data of length %d at offset %d", b.device.Name, b.size, b.name, dataLen, offset)
	}

	src := unsafe.Slice((*byte)(dataPtr), dataLen)
	return b.device.runOnQueue("write "+b.name, func() error {
		copy(b.bytes()[offset:], src)
		return nil
	})
}

// Read data from device buffer into the supplied host buffer. The read is
// ordered after any previously submitted work. The behavior of this method
// is undefined if a non-slice argument is passed or if the argument does not
// use contiguous memory.
//
// If size is <= 0 then ReadData will read the remainder of the buffer after
// srcOffset. Both src and dst offsets are specified in bytes.
func (b *Buffer) ReadData(srcOffset, dstOffset, size int, hostBuffer interface{}) error {
	if !b.Allocated() {
		return fmt.Errorf("device (%s): could not read from buffer %s: %w", b.device.Name, b.name, ErrBufferNotAllocated)
	}
	if size <= 0 {
		size = b.size - srcOffset
	}

	dataPtr, dataLen := getSliceData(hostBuffer)
	if srcOffset < 0 || dstOffset < 0 || srcOffset+size > b.size || dstOffset+size > dataLen {
		return fmt.Errorf("device (%s): could not copy %d bytes from %s (size %d, offset %d) to host buffer (size %d, offset %d)", b.device.Name, size, b.name, b.size, srcOffset, dataLen, dstOffset)
	}

	dst := unsafe.Slice((*byte)(dataPtr), dataLen)
	return b.device.runOnQueue("read "+b.name, func() error {
		copy(dst[dstOffset:dstOffset+size], b.bytes()[srcOffset:srcOffset+size])
		return nil
	})
}

// Release buffer.
func (b *Buffer) Release() {
	if b.words != nil {
		b.device.free(uint64(b.size))
		b.words = nil
		b.size = 0
	}
}

// Map a host-visible buffer for reading. The returned mapping is only valid
// until Unmap is called.
func (b *Buffer) Map() (*Mapping, error) {
	b.mapMu.Lock()
	defer b.mapMu.Unlock()

	if !b.Allocated() {
		return nil, fmt.Errorf("device (%s): could not map buffer %s: %w", b.device.Name, b.name, ErrBufferNotAllocated)
	}
	if b.flags&MemHostVisible == 0 {
		return nil, fmt.Errorf("device (%s): could not map buffer %s: %w", b.device.Name, b.name, ErrBufferNotHostVisible)
	}
	if b.mapped != nil {
		return nil, fmt.Errorf("device (%s): could not map buffer %s: %w", b.device.Name, b.name, ErrBufferAlreadyMapped)
	}

	b.mapped = &Mapping{words: b.words}
	return b.mapped, nil
}

// Unmap a previously mapped buffer. Any outstanding mapping is invalidated.
func (b *Buffer) Unmap() error {
	b.mapMu.Lock()
	defer b.mapMu.Unlock()

	if b.mapped == nil {
		return fmt.Errorf("device (%s): could not unmap buffer %s: %w", b.device.Name, b.name, ErrBufferNotMapped)
	}
	b.mapped.words = nil
	b.mapped = nil
	return nil
}

// Device-side accessors. These are meant to be used by kernels while a
// dispatch is executing. Indices are specified in words.

func (b *Buffer) LoadUint32(index int) uint32 {
	return atomic.LoadUint32(&b.words[index])
}

func (b *Buffer) StoreUint32(index int, val uint32) {
	atomic.StoreUint32(&b.words[index], val)
}

// Atomically add val to the word at index and return the previous value.
func (b *Buffer) AtomicAddUint32(index int, val uint32) uint32 {
	return atomic.AddUint32(&b.words[index], val) - val
}

// Atomically replace the word at index with new if it currently holds old.
func (b *Buffer) AtomicCompareAndSwapUint32(index int, old, new uint32) bool {
	return atomic.CompareAndSwapUint32(&b.words[index], old, new)
}

func (b *Buffer) LoadFloat32(index int) float32 {
	return math.Float32frombits(atomic.LoadUint32(&b.words[index]))
}

func (b *Buffer) StoreFloat32(index int, val float32) {
	atomic.StoreUint32(&b.words[index], math.Float32bits(val))
}

// Atomically add val to the float stored as a bit pattern at index. The
// update is implemented as a compare-and-swap loop.
func (b *Buffer) AtomicAddFloat32(index int, val float32) {
	addr := &b.words[index]
	for {
		old := atomic.LoadUint32(addr)
		sum := math.Float32bits(math.Float32frombits(old) + val)
		if atomic.CompareAndSwapUint32(addr, old, sum) {
			return
		}
	}
}

func (b *Buffer) LoadVec4(index int) types.Vec4 {
	return types.Vec4{b.LoadFloat32(index), b.LoadFloat32(index + 1), b.LoadFloat32(index + 2), b.LoadFloat32(index + 3)}
}

func (b *Buffer) StoreVec4(index int, v types.Vec4) {
	for i := 0; i < 4; i++ {
		b.StoreFloat32(index+i, v[i])
	}
}

func (b *Buffer) LoadUVec4(index int) types.UVec4 {
	return types.UVec4{b.LoadUint32(index), b.LoadUint32(index + 1), b.LoadUint32(index + 2), b.LoadUint32(index + 3)}
}

func (b *Buffer) StoreUVec4(index int, v types.UVec4) {
	for i := 0; i < 4; i++ {
		b.StoreUint32(index+i, v[i])
	}
}

func (b *Buffer) bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&b.words[0])), len(b.words)*wordSize)
}

// A host view of a mapped buffer. Indices are specified in words.
type Mapping struct {
	words []uint32
}

func (m *Mapping) view() []uint32 {
	if m.words == nil {
		panic(ErrBufferNotMapped)
	}
	return m.words
}

// Get the number of mapped words.
func (m *Mapping) Len() int {
	return len(m.view())
}

func (m *Mapping) Uint32(index int) uint32 {
	return m.view()[index]
}

func (m *Mapping) Float32(index int) float32 {
	return math.Float32frombits(m.view()[index])
}

func (m *Mapping) UVec4(index int) types.UVec4 {
	w := m.view()
	return types.UVec4{w[index], w[index+1], w[index+2], w[index+3]}
}

func (m *Mapping) Vec4(index int) types.Vec4 {
	w := m.view()
	return types.Vec4{
		math.Float32frombits(w[index]),
		math.Float32frombits(w[index+1]),
		math.Float32frombits(w[index+2]),
		math.Float32frombits(w[index+3]),
	}
}

// Copy count words starting at index into a new slice.
func (m *Mapping) CopyUint32(index, count int) []uint32 {
	out := make([]uint32, count)
	copy(out, m.view()[index:index+count])
	return out
}

// Given an interface{} containing a slice return a pointer to its data and its length.
func getSliceData(data interface{}) (unsafe.Pointer, int) {
	reflVal := reflect.ValueOf(data)

	if reflVal.Kind() != reflect.Slice {
		panic("getSliceData: this function only supports slices")
	}

	sliceElemCount := reflVal.Len()
	if sliceElemCount == 0 {
		panic("getSliceData: supplied slice object is empty")
	}

	return unsafe.Pointer(reflVal.Index(0).Addr().Pointer()),
		sliceElemCount * int(reflect.TypeOf(data).Elem().Size())
}

func alignToWord(size int) int {
	return (size + wordSize - 1) / wordSize * wordSize
}
