package device

import (
	"strings"
	"testing"

	"github.com/achilleasa/polaris-cir/types"
)

func TestKernelExec1DWithAutoLocalWorkSize(t *testing.T) {
	testSquareKernel(t, 0)
}

func TestKernelExec1D(t *testing.T) {
	testSquareKernel(t, 1)
}

func TestKernelExec1DWithPartialGroup(t *testing.T) {
	testSquareKernel(t, 5)
}

func testSquareKernel(t *testing.T, localWorkSize int) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	kernel, err := dev.Kernel("square")
	if err != nil {
		t.Fatal(err)
	}
	defer kernel.Release()

	dataSize := 32
	dataIn := make([]int32, dataSize)
	dataOut := make([]int32, dataSize)
	for i := 0; i < dataSize; i++ {
		dataIn[i] = int32(i - 8)
	}

	bufIn := dev.Buffer("in")
	defer bufIn.Release()
	err = bufIn.AllocateAndWriteData(dataIn, MemReadWrite)
	if err != nil {
		t.Fatal(err)
	}

	bufOut := dev.Buffer("out")
	defer bufOut.Release()
	err = bufOut.AllocateToFitData(dataOut, MemReadWrite)
	if err != nil {
		t.Fatal(err)
	}

	var size uint32 = uint32(dataSize)
	err = kernel.SetArgs(
		bufIn,
		bufOut,
		size,
	)
	if err != nil {
		t.Fatal(err)
	}

	_, err = kernel.Exec1D(0, dataSize, localWorkSize)
	if err != nil {
		t.Fatal(err)
	}

	// Fetch and validate output
	if err = bufOut.ReadData(0, 0, 0, dataOut); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < dataSize; i++ {
		expValue := dataIn[i] * dataIn[i]
		if dataOut[i] != expValue {
			t.Fatalf("[item %d] expected squared value of %d to be %d; got %d", i, dataIn[i], expValue, dataOut[i])
		}
	}
}

func TestKernelExec2D(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	kernel, err := dev.Kernel("coords")
	if err != nil {
		t.Fatal(err)
	}

	width, height := 13, 7
	bufOut := dev.Buffer("out")
	defer bufOut.Release()
	if err = bufOut.Allocate(width*height*4, MemReadWrite); err != nil {
		t.Fatal(err)
	}

	if err = kernel.SetArgs(bufOut, uint32(width)); err != nil {
		t.Fatal(err)
	}
	if _, err = kernel.Exec2D(0, 0, width, height, 4, 4); err != nil {
		t.Fatal(err)
	}

	dataOut := make([]uint32, width*height)
	if err = bufOut.ReadData(0, 0, 0, dataOut); err != nil {
		t.Fatal(err)
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			exp := uint32(y<<16 | x)
			if got := dataOut[y*width+x]; got != exp {
				t.Fatalf("[%d, %d] expected %d; got %d", x, y, exp, got)
			}
		}
	}
}

func TestKernelExec2DInvalidLocalSize(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	kernel, err := dev.Kernel("coords")
	if err != nil {
		t.Fatal(err)
	}

	if _, err = kernel.Exec2D(0, 0, 8, 8, 4, 0); err == nil {
		t.Fatal("expected exec with a single zero local work size to fail")
	}
	if _, err = kernel.Exec1D(0, 0, 0); err == nil {
		t.Fatal("expected exec with zero global work size to fail")
	}
}

func TestKernelSetArgsUnsupportedType(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	kernel, err := dev.Kernel("square")
	if err != nil {
		t.Fatal(err)
	}

	err = kernel.SetArgs(uint32(1), types.XYZW(1, 2, 3, 4), types.UVec4{}, float64(1))
	if err == nil || !strings.Contains(err.Error(), "could not set arg 3") {
		t.Fatalf("expected SetArgs to reject arg 3; got %v", err)
	}
}

func TestKernelAtomicUint32Contention(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	kernel, err := dev.Kernel("binCount")
	if err != nil {
		t.Fatal(err)
	}

	numBins := 3
	bins := dev.Buffer("bins")
	defer bins.Release()
	if err = bins.Allocate(numBins*4, MemReadWrite); err != nil {
		t.Fatal(err)
	}

	if err = kernel.SetArgs(bins, uint32(numBins)); err != nil {
		t.Fatal(err)
	}

	numItems := 30000
	if _, err = kernel.Exec1D(0, numItems, 16); err != nil {
		t.Fatal(err)
	}

	dataOut := make([]uint32, numBins)
	if err = bins.ReadData(0, 0, 0, dataOut); err != nil {
		t.Fatal(err)
	}
	for i, v := range dataOut {
		if v != uint32(numItems/numBins) {
			t.Fatalf("[bin %d] expected %d increments; got %d", i, numItems/numBins, v)
		}
	}
}

func TestKernelAtomicFloat32Contention(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	kernel, err := dev.Kernel("binSum")
	if err != nil {
		t.Fatal(err)
	}

	sum := dev.Buffer("sum")
	defer sum.Release()
	if err = sum.Allocate(4, MemReadWrite); err != nil {
		t.Fatal(err)
	}

	// 0.5 and all partial sums up to 2^24 are exactly representable
	if err = kernel.SetArgs(sum, float32(0.5)); err != nil {
		t.Fatal(err)
	}
	numItems := 20000
	if _, err = kernel.Exec1D(0, numItems, 8); err != nil {
		t.Fatal(err)
	}

	dataOut := make([]float32, 1)
	if err = sum.ReadData(0, 0, 0, dataOut); err != nil {
		t.Fatal(err)
	}
	if exp := float32(numItems) * 0.5; dataOut[0] != exp {
		t.Fatalf("expected atomic float sum to be %f; got %f", exp, dataOut[0])
	}
}

func TestKernelAbortIsReported(t *testing.T) {
	dev, err := createCpuTestDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	kernel, err := dev.Kernel("abort")
	if err != nil {
		t.Fatal(err)
	}

	_, err = kernel.Exec1D(0, 16, 4)
	if err == nil || !strings.Contains(err.Error(), "out of bounds access") {
		t.Fatalf("expected kernel abort to be reported; got %v", err)
	}

	// The device keeps processing work after a failed dispatch
	kernel, err = dev.Kernel("square")
	if err != nil {
		t.Fatal(err)
	}
	buf := dev.Buffer("buf")
	defer buf.Release()
	if err = buf.Allocate(16, MemReadWrite); err != nil {
		t.Fatal(err)
	}
	if err = kernel.SetArgs(buf, buf, uint32(4)); err != nil {
		t.Fatal(err)
	}
	if _, err = kernel.Exec1D(0, 4, 0); err != nil {
		t.Fatal(err)
	}
}
