package syscall

import (
	"github.com/northlake-os/pios/internal/kernel/console"
	"github.com/northlake-os/pios/internal/kernel/cpu"
	"github.com/northlake-os/pios/internal/kernel/proc"
)

// Dispatcher decodes a trapped syscall and routes it to CPUTS/PUT/GET/RET,
// the kernel-side collaborators a handler needs to serve it.
type Dispatcher struct {
	Table   *proc.Table
	Console *console.Console
}

// New builds a Dispatcher wired to the given process table and console.
func New(table *proc.Table, con *console.Console) *Dispatcher {
	return &Dispatcher{Table: table, Console: con}
}

// Dispatch decodes tf.Regs.EAX's SYS_TYPE nibble and invokes the matching
// handler for process p, currently RUN on cp. It panics with a
// *FatalError if the command is unrecognized.
func (d *Dispatcher) Dispatch(cp *cpu.CPU, p *proc.Proc, tf *cpu.TrapFrame) {
	switch Command(tf.Regs.EAX) & typeMask {
	case CPUTS:
		d.cputs(cp, p, tf)
	case PUT:
		d.put(cp, p, tf)
	case GET:
		d.get(cp, p, tf)
	case RET:
		d.ret(cp, p, tf)
	default:
		panic(&FatalError{Kind: BadSyscall, Detail: (Command(tf.Regs.EAX) & typeMask).String()})
	}
}
