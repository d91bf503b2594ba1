package syscall

import (
	"github.com/northlake-os/pios/internal/kernel/cpu"
	"github.com/northlake-os/pios/internal/kernel/proc"
)

// systrap converts a fault observed while p was executing a syscall into a
// trap its own parent can observe. Any child lock p's handler was holding
// is released first (a usercopy inside PUT/GET can fault while holding
// child.lock), utf's trap number and error code are overwritten with the
// reported kind, and p is stopped via Ret so that a parent blocked in GET
// (or the next GET) sees the failure instead of a silent hang.
func systrap(table *proc.Table, cp *cpu.CPU, p *proc.Proc, heldChild *proc.Proc, utf *cpu.TrapFrame, trapno, err uint32) {
	if heldChild != nil {
		heldChild.Lock().Release(cp)
	}
	utf.TrapNo = trapno
	utf.Err = err
	table.Ret(p, *utf, true, cp)
}
