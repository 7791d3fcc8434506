package device

import (
	"errors"
	"reflect"
	"testing"
	"unsafe"
)

func TestBufferAllocate(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	buf := dev.Buffer("test")
	defer buf.Release()
	err = buf.Allocate(128, MemReadWrite)
	if err != nil {
		t.Fatal(err)
	}

	expSize := 128
	if buf.Size() != expSize {
		t.Fatalf("expected buffer size to be %d; got %d", expSize, buf.Size())
	}
	if dev.Allocated() != uint64(expSize) {
		t.Fatalf("expected device to track %d allocated bytes; got %d", expSize, dev.Allocated())
	}

	buf.Release()
	if dev.Allocated() != 0 {
		t.Fatalf("expected device allocation to drop to 0 after release; got %d", dev.Allocated())
	}
}

func TestBufferAllocateInvalidSize(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	buf := dev.Buffer("test")
	for _, size := range []int{0, -4, 3} {
		if err = buf.Allocate(size, MemReadWrite); err == nil {
			t.Fatalf("expected allocation of %d bytes to fail", size)
		}
		if buf.Allocated() {
			t.Fatalf("expected buffer to be left unset after failed allocation of %d bytes", size)
		}
	}
}

func TestBufferAllocateOverBudget(t *testing.T) {
	dev := NewDevice("tiny", 1, 256)
	if err := dev.Init(); err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	buf1 := dev.Buffer("first")
	defer buf1.Release()
	if err := buf1.Allocate(192, MemReadWrite); err != nil {
		t.Fatal(err)
	}

	buf2 := dev.Buffer("second")
	err := buf2.Allocate(128, MemReadWrite)
	if !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("expected to get ErrOutOfMemory; got %v", err)
	}
	if buf2.Allocated() {
		t.Fatal("expected buffer to be left unset after failed allocation")
	}
	if dev.Allocated() != 192 {
		t.Fatalf("expected failed allocation not to be charged; got %d allocated bytes", dev.Allocated())
	}

	// Re-allocating an existing buffer releases its previous storage first
	if err = buf1.Allocate(256, MemReadWrite); err != nil {
		t.Fatal(err)
	}
}

func TestBufferAllocateToFitData(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	data := make([]float64, 128)

	buf := dev.Buffer("test")
	defer buf.Release()
	err = buf.AllocateToFitData(data, MemReadWrite)
	if err != nil {
		t.Fatal(err)
	}

	expSize := len(data) * int(unsafe.Sizeof(data[0]))
	if buf.Size() != expSize {
		t.Fatalf("expected buffer size to be %d; got %d", expSize, buf.Size())
	}
}

func TestBufferAllocateAndWriteData(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	data := make([]byte, 130)
	for i := 0; i < len(data); i++ {
		data[i] = byte(i)
	}

	buf := dev.Buffer("test")
	defer buf.Release()
	err = buf.AllocateAndWriteData(data, MemReadWrite)
	if err != nil {
		t.Fatal(err)
	}

	// Size is rounded up to the next word
	expSize := 132
	if buf.Size() != expSize {
		t.Fatalf("expected buffer size to be %d; got %d", expSize, buf.Size())
	}

	dataOut := make([]byte, len(data))
	if err = buf.ReadData(0, 0, len(data), dataOut); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(data, dataOut) {
		t.Fatal("read data does not match written data")
	}
}

func TestDataReadWrite(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	data := make([]byte, 128)
	for i := 0; i < 128; i++ {
		data[i] = byte(i)
	}

	buf := dev.Buffer("test")
	defer buf.Release()
	err = buf.Allocate(128, MemReadWrite)
	if err != nil {
		t.Fatal(err)
	}

	err = buf.WriteData(data, 0)
	if err != nil {
		t.Fatal(err)
	}

	dataOut := make([]byte, 128)
	err = buf.ReadData(0, 0, 0, dataOut)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(data, dataOut) {
		t.Fatal("read data does not match written data")
	}
}

func TestDataReadWriteWithStructSlices(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	type foo struct {
		x     float32
		index uint32
	}

	numFoos := 10
	data := make([]foo, numFoos)
	for i := 0; i < numFoos; i++ {
		data[i].x = float32(i) * 0.5
		data[i].index = uint32(i)
	}

	buf := dev.Buffer("test")
	defer buf.Release()
	err = buf.Allocate(len(data)*int(unsafe.Sizeof(data[0])), MemReadWrite)
	if err != nil {
		t.Fatal(err)
	}

	err = buf.WriteData(data, 0)
	if err != nil {
		t.Fatal(err)
	}

	dataOut := make([]foo, numFoos)
	err = buf.ReadData(0, 0, 0, dataOut)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(data, dataOut) {
		t.Fatal("read data does not match written data")
	}
}

func TestDataReadWriteOffsets(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	data := make([]byte, 128)
	for i := 0; i < 128; i++ {
		data[i] = byte(i)
	}

	buf := dev.Buffer("test")
	defer buf.Release()
	err = buf.Allocate(128, MemReadWrite)
	if err != nil {
		t.Fatal(err)
	}

	err = buf.WriteData(data[:64], 64)
	if err != nil {
		t.Fatal(err)
	}

	dataOut := make([]byte, 128)
	err = buf.ReadData(64, 0, 64, dataOut)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(data[:64], dataOut[:64]) {
		t.Fatal("read data does not match written data")
	}

	// Writing past the end of the buffer must fail
	if err = buf.WriteData(data, 64); err == nil {
		t.Fatal("expected out of bounds write to fail")
	}
}

func TestBufferMapUnmap(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	devBuf := dev.Buffer("device-only")
	defer devBuf.Release()
	if err = devBuf.Allocate(16, MemReadWrite); err != nil {
		t.Fatal(err)
	}
	if _, err = devBuf.Map(); !errors.Is(err, ErrBufferNotHostVisible) {
		t.Fatalf("expected to get ErrBufferNotHostVisible; got %v", err)
	}

	readback := dev.Buffer("readback")
	defer readback.Release()
	if err = readback.Allocate(16, MemHostVisible); err != nil {
		t.Fatal(err)
	}
	if err = readback.WriteData([]float32{1.5, 2.5, 3.5, 4.5}, 0); err != nil {
		t.Fatal(err)
	}

	mapping, err := readback.Map()
	if err != nil {
		t.Fatal(err)
	}
	if _, err = readback.Map(); !errors.Is(err, ErrBufferAlreadyMapped) {
		t.Fatalf("expected to get ErrBufferAlreadyMapped; got %v", err)
	}

	if got := mapping.Vec4(0); got[0] != 1.5 || got[3] != 4.5 {
		t.Fatalf("expected mapped vec4 to be [1.5 2.5 3.5 4.5]; got %v", got)
	}

	if err = readback.Unmap(); err != nil {
		t.Fatal(err)
	}
	if err = readback.Unmap(); !errors.Is(err, ErrBufferNotMapped) {
		t.Fatalf("expected to get ErrBufferNotMapped; got %v", err)
	}

	defer func() {
		if r := recover(); r != ErrBufferNotMapped {
			t.Fatalf("expected access through stale mapping to panic with ErrBufferNotMapped; got %v", r)
		}
	}()
	mapping.Uint32(0)
}

func TestGetSliceData(t *testing.T) {
	data := make([]int32, 32)
	_, dataLen := getSliceData(data)

	expSize := 4 * 32
	if dataLen != expSize {
		t.Fatalf("expected datalen to be %d; got %d", expSize, dataLen)
	}
}
