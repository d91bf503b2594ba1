package syscall

import (
	"github.com/northlake-os/pios/internal/kernel/cpu"
	"github.com/northlake-os/pios/internal/kernel/proc"
)

// ret implements RET: delegate directly to the process state machine with
// entry = true, since a child returning via an explicit RET syscall must
// not re-execute its own trap instruction on resume.
func (d *Dispatcher) ret(cp *cpu.CPU, p *proc.Proc, tf *cpu.TrapFrame) {
	d.Table.Ret(p, *tf, true, cp)
}
