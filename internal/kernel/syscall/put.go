package syscall

import (
	"github.com/northlake-os/pios/internal/kernel/cpu"
	"github.com/northlake-os/pios/internal/kernel/proc"
	"github.com/northlake-os/pios/internal/kernel/usercopy"
)

// Canonical user-mode segment selectors PUT installs into a child's trap
// frame regardless of what the caller supplied, matching the flat GDT
// layout the root-process loader targets: ring-3 code and data selectors.
const (
	userCodeSelector uint16 = 0x1B
	userDataSelector uint16 = 0x23
)

// put implements PUT(flags, childno, userstate*): push register state
// and/or memory into a child slot, optionally starting it.
func (d *Dispatcher) put(cp *cpu.CPU, p *proc.Proc, tf *cpu.TrapFrame) {
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
		// Wait releases child.lock and yields. When p is next scheduled
		// this same trap frame re-executes from its original EIP, so PUT
		// effectively restarts from its own beginning.
		proc.Wait(p, child, *tf, cp)
		return
	}

	flags := tf.Regs.EAX &^ uint32(typeMask)

	if flags&SysRegs != 0 {
		wire := make([]byte, trapFrameWireSize)
		if err := usercopy.Copy(cp, p.AddressSpace(), false, wire, tf.Regs.EBX); err != nil {
			systrap(d.Table, cp, p, child, tf, cpu.TPageFault, 0)
			return
		}
		applyIncomingRegs(child, UnmarshalProcState(wire))
	}

	if flags&SysCopy != 0 {
		if err := p.AddressSpace().Copy(child.AddressSpace(), tf.Regs.ESI, tf.Regs.EDI, tf.Regs.ECX); err != nil {
			systrap(d.Table, cp, p, child, tf, cpu.TPageFault, 0)
			return
		}
	}

	if flags&SysZero != 0 {
		if err := child.AddressSpace().Zero(tf.Regs.EDI, tf.Regs.ECX); err != nil {
			systrap(d.Table, cp, p, child, tf, cpu.TPageFault, 0)
			return
		}
	}

	if flags&SysMerge != 0 {
		panic(&FatalError{Kind: UnimplementedFlag, Detail: "SYS_MERGE"})
	}

	start := flags&SysStart != 0
	if start {
		child.MarkReady()
	}

	child.Lock().Release(cp)
	if start {
		d.Table.Enqueue(child)
	}
	tf.EIP += proc.SyscallInstrLen
}

// applyIncomingRegs writes a caller-supplied register snapshot into
// child's saved trap frame: general registers and EIP/ESP/FS/GS are
// copied verbatim, CS/DS/ES/SS are forced to canonical user selectors
// regardless of what was supplied, and EFLAGS is masked down to the bits
// a user process may legitimately set. This is the single most important
// safety gate in PUT: an untrusted child can never set a control,
// IO-privilege, trap, interrupt, or virtual-8086 flag bit through it.
func applyIncomingRegs(child *proc.Proc, incoming cpu.TrapFrame) {
	tf := child.TrapFrame()
	tf.Regs = incoming.Regs
	tf.CS = userCodeSelector
	tf.DS = userDataSelector
	tf.ES = userDataSelector
	tf.SS = userDataSelector
	tf.FS = incoming.FS
	tf.GS = incoming.GS
	tf.EIP = incoming.EIP
	tf.ESP = incoming.ESP
	tf.EFlags = incoming.EFlags
	tf.SanitizeEFlags()
	child.SetTrapFrame(tf)
}
