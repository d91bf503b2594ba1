package syscall

import (
	"bytes"

	"github.com/northlake-os/pios/internal/kernel/cpu"
	"github.com/northlake-os/pios/internal/kernel/mem"
	"github.com/northlake-os/pios/internal/kernel/proc"
	"github.com/northlake-os/pios/internal/kernel/usercopy"
)

// cputs implements CPUTS: copy up to one page from the user pointer in
// EBX into a kernel scratch buffer before touching the console, so an
// unmapped or malicious user address faults inside usercopy rather than
// inside the console driver, and console output never depends on the
// calling process's page tables remaining valid.
func (d *Dispatcher) cputs(cp *cpu.CPU, p *proc.Proc, tf *cpu.TrapFrame) {
	scratch := make([]byte, mem.PageSize)
	if err := usercopy.Copy(cp, p.AddressSpace(), false, scratch, tf.Regs.EBX); err != nil {
		systrap(d.Table, cp, p, nil, tf, cpu.TPageFault, 0)
		return
	}

	n := bytes.IndexByte(scratch, 0)
	if n < 0 {
		n = len(scratch)
	}
	d.Console.Puts(cp.CPUID(), p.Index(), string(scratch[:n]))
	tf.EIP += proc.SyscallInstrLen
}
