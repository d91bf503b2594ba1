package syscall

import (
	"bytes"
	"encoding/binary"

	"github.com/northlake-os/pios/internal/kernel/cpu"
)

// trapFrameWireSize is the byte width of a marshaled cpu.TrapFrame -- the
// procstate wire layout this core implements is just the trap frame, since
// no FP/SSE area is modeled.
var trapFrameWireSize = binary.Size(cpu.TrapFrame{})

// MarshalProcState serializes tf in the fixed little-endian layout PUT and
// GET exchange with user space.
func MarshalProcState(tf cpu.TrapFrame) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(trapFrameWireSize)
	// A write into a bytes.Buffer from a fixed-size struct of fixed-size
	// fields cannot fail.
	_ = binary.Write(buf, binary.LittleEndian, tf)
	return buf.Bytes()
}

// UnmarshalProcState parses the wire layout MarshalProcState produces.
func UnmarshalProcState(data []byte) cpu.TrapFrame {
	var tf cpu.TrapFrame
	_ = binary.Read(bytes.NewReader(data), binary.LittleEndian, &tf)
	return tf
}
