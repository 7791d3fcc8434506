package device

import "fmt"

type commandKind uint8

const (
	cmdClear commandKind = iota
	cmdCopy
	cmdDispatch
	cmdSignal
	cmdHost
)

type command struct {
	kind commandKind

	// Clear / copy targets (byte offsets).
	dst, src       *Buffer
	dstOff, srcOff int
	size           int

	// Dispatch params.
	kernel *Kernel
	args   KernelArgs
	ndr    ndRange

	// Fence signal.
	fence *Fence
	value uint64

	// Host callbacks run on the queue worker.
	hostFn func() error
	done   chan<- error
}

// A CommandList records device work that is executed in order once the list
// is submitted to the device.
type CommandList struct {
	name string
	cmds []command
}

// Create an empty command list.
func NewCommandList(name string) *CommandList {
	return &CommandList{name: name}
}

// Get the number of recorded commands.
func (cl *CommandList) Len() int {
	return len(cl.cmds)
}

// Record a command that zeroes the entire buffer.
func (cl *CommandList) Clear(buf *Buffer) error {
	if !buf.Allocated() {
		return fmt.Errorf("command list %q: could not clear buffer %s: %w", cl.name, buf.name, ErrBufferNotAllocated)
	}
	cl.cmds = append(cl.cmds, command{kind: cmdClear, dst: buf, size: buf.size})
	return nil
}

// Record a copy of size bytes between two buffers. If size is <= 0 the
// remainder of the source buffer after srcOffset is copied.
func (cl *CommandList) Copy(dst *Buffer, dstOffset int, src *Buffer, srcOffset, size int) error {
	if !dst.Allocated() {
		return fmt.Errorf("command list %q: could not copy into buffer %s: %w", cl.name, dst.name, ErrBufferNotAllocated)
	}
	if !src.Allocated() {
		return fmt.Errorf("command list %q: could not copy from buffer %s: %w", cl.name, src.name, ErrBufferNotAllocated)
	}
	if size <= 0 {
		size = src.size - srcOffset
	}
	if srcOffset < 0 || dstOffset < 0 || srcOffset+size > src.size || dstOffset+size > dst.size {
		return fmt.Errorf(
			"command list %q: copy of %d bytes from %s[%d:] (size %d) into %s[%d:] (size %d) is out of bounds",
			cl.name, size, src.name, srcOffset, src.size, dst.name, dstOffset, dst.size,
		)
	}
	cl.cmds = append(cl.cmds, command{kind: cmdCopy, dst: dst, dstOff: dstOffset, src: src, srcOff: srcOffset, size: size})
	return nil
}

// Record a 1D dispatch of kernel using its currently bound arguments. If
// localWorkSize is 0 the device picks a suitable work-group size.
func (cl *CommandList) Dispatch1D(k *Kernel, offset, globalWorkSize, localWorkSize int) error {
	ndr, err := newNDRange(1, [2]int{offset, 0}, [2]int{globalWorkSize, 1}, [2]int{localWorkSize, 1})
	if err != nil {
		return fmt.Errorf("command list %q: kernel %s: %w", cl.name, k.name, err)
	}
	cl.cmds = append(cl.cmds, command{kind: cmdDispatch, kernel: k, args: k.snapshotArgs(), ndr: ndr})
	return nil
}

// Record a 2D dispatch of kernel using its currently bound arguments. If both
// local work sizes are 0 the device picks a suitable work-group size.
func (cl *CommandList) Dispatch2D(k *Kernel, offsetX, offsetY, globalWorkSizeX, globalWorkSizeY, localWorkSizeX, localWorkSizeY int) error {
	ndr, err := newNDRange(
		2,
		[2]int{offsetX, offsetY},
		[2]int{globalWorkSizeX, globalWorkSizeY},
		[2]int{localWorkSizeX, localWorkSizeY},
	)
	if err != nil {
		return fmt.Errorf("command list %q: kernel %s: %w", cl.name, k.name, err)
	}
	cl.cmds = append(cl.cmds, command{kind: cmdDispatch, kernel: k, args: k.snapshotArgs(), ndr: ndr})
	return nil
}

// Execute all commands in a list. This method is only invoked by the queue worker.
func (d *Device) execute(list *CommandList) {
	for _, cmd := range list.cmds {
		switch cmd.kind {
		case cmdClear:
			words := cmd.dst.words
			for i := range words {
				words[i] = 0
			}
		case cmdCopy:
			copy(cmd.dst.bytes()[cmd.dstOff:cmd.dstOff+cmd.size], cmd.src.bytes()[cmd.srcOff:cmd.srcOff+cmd.size])
		case cmdDispatch:
			err := d.dispatch(cmd.kernel, cmd.args, cmd.ndr)
			if err != nil {
				d.logger.Errorf("command list %q: %v", list.name, err)
			}
			if cmd.done != nil {
				cmd.done <- err
			}
		case cmdSignal:
			cmd.fence.advance(cmd.value)
		case cmdHost:
			cmd.done <- cmd.hostFn()
		}
	}
}
