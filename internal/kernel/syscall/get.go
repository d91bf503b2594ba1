package syscall

import (
	"github.com/northlake-os/pios/internal/kernel/cpu"
	"github.com/northlake-os/pios/internal/kernel/proc"
	"github.com/northlake-os/pios/internal/kernel/usercopy"
)

// get implements GET(flags, childno, userstate*), the dual of PUT: pull
// register state and/or memory from a child slot, waiting if the child
// has not reached STOP.
func (d *Dispatcher) get(cp *cpu.CPU, p *proc.Proc, tf *cpu.TrapFrame) {
	childno := int(tf.Regs.EDX)
	if childno < 0 || childno >= proc.NumChildren {
		systrap(d.Table, cp, p, nil, tf, cpu.TGeneralProtection, 0)
		return
	}

	child := p.Child(childno)
	if child == nil {
		var err error
		child, err = d.Table.Alloc(p, childno)
		if err != nil {
			panic(&FatalError{Kind: NoSlot, Detail: err.Error()})
		}
	}

	child.Lock().Acquire(cp)
	if child.State() != proc.STOP {
		proc.Wait(p, child, *tf, cp)
		return
	}

	flags := tf.Regs.EAX &^ uint32(typeMask)

	if flags&SysRegs != 0 {
		wire := MarshalProcState(child.TrapFrame())
		if err := usercopy.Copy(cp, p.AddressSpace(), true, wire, tf.Regs.EBX); err != nil {
			systrap(d.Table, cp, p, child, tf, cpu.TPageFault, 0)
			return
		}
	}

	if flags&SysCopy != 0 {
		if err := child.AddressSpace().Copy(p.AddressSpace(), tf.Regs.ESI, tf.Regs.EDI, tf.Regs.ECX); err != nil {
			systrap(d.Table, cp, p, child, tf, cpu.TPageFault, 0)
			return
		}
	}

	if flags&SysMerge != 0 {
		panic(&FatalError{Kind: UnimplementedFlag, Detail: "SYS_MERGE"})
	}

	child.Lock().Release(cp)
	tf.EIP += proc.SyscallInstrLen
}
