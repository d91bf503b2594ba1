// Package proc implements the hierarchical process table and state
// machine: parent/child processes rendezvousing through PUT/GET/RET,
// each guarded by its own spinlock.
package proc

import (
	"errors"
	"fmt"

	"github.com/northlake-os/pios/internal/kernel/cpu"
	"github.com/northlake-os/pios/internal/kernel/spinlock"
	"github.com/northlake-os/pios/internal/kernel/vm"
)

// NumChildren is the fixed width of a process's child-slot array: each
// process may have up to 256 children.
const NumChildren = 256

// SyscallInstrLen is the width, in bytes, of the software-interrupt
// instruction that enters the kernel on the syscall ABI. Wait rewinds a
// saved EIP by this much so the trapping PUT/GET instruction re-executes
// when its process resumes; a syscall handler that completes
// synchronously (does not wait or stop) advances its own live trap frame
// by the same amount before returning to user mode, so it does not
// re-execute the instruction that just succeeded.
const SyscallInstrLen = 2

const syscallInstrLen = SyscallInstrLen

// State is one of the five states a process passes through.
type State int

const (
	AVAIL State = iota
	STOP
	READY
	RUN
	WAIT
)

func (s State) String() string {
	switch s {
	case AVAIL:
		return "AVAIL"
	case STOP:
		return "STOP"
	case READY:
		return "READY"
	case RUN:
		return "RUN"
	case WAIT:
		return "WAIT"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrNoSlot is returned by Alloc when the process table is full.
var ErrNoSlot = errors.New("proc: process table full")

// Proc is one process control block.
type Proc struct {
	index  int
	parent *Proc
	childNo int
	child  [NumChildren]*Proc

	lock  *spinlock.Mutex
	state State
	tf    cpu.TrapFrame
	as    *vm.AddressSpace

	// waitTarget is the child this process is blocked on while state ==
	// WAIT.
	waitTarget *Proc

	// waiters holds processes that called Wait against this proc while
	// it was not STOP, recorded under this proc's own lock so that a
	// transition to STOP under the same lock can never race past an
	// about-to-wait parent: the waiter is enqueued under the child's
	// lock rather than after releasing it, closing the window where a
	// concurrent Ret could fire before the wait is recorded.
	waiters []*Proc

	name string
}

// Index returns the process's slot in the table, used as a stable identity
// for logs and the `pios ps` endpoint.
func (p *Proc) Index() int { return p.index }

// Parent returns the weak back-reference to the parent, nil for the root.
func (p *Proc) Parent() *Proc { return p.parent }

// ChildNo returns the index this process occupies in its parent's child
// array, meaningless for the root.
func (p *Proc) ChildNo() int { return p.childNo }

// Child returns the child at slot i, or nil if that slot has never been
// PUT into.
func (p *Proc) Child(i int) *Proc { return p.child[i] }

// Lock returns the process's own spinlock.
func (p *Proc) Lock() *spinlock.Mutex { return p.lock }

// State returns the process's current state. Callers that need this to be
// consistent with a concurrent transition must hold p.Lock().
func (p *Proc) State() State { return p.state }

// TrapFrame returns a copy of the process's saved trap frame.
func (p *Proc) TrapFrame() cpu.TrapFrame { return p.tf }

// MarkReady transitions p directly to READY. The caller must already hold
// p.Lock() and is responsible for calling Table.Enqueue once it releases
// that lock, so p only becomes visible to Sched after the critical
// section that decided to start it has fully committed.
func (p *Proc) MarkReady() { p.state = READY }

// SetTrapFrame overwrites the process's saved trap frame. Callers must
// hold p.Lock(); used by PUT to install caller-supplied register state
// into a child. Deciding which fields survive and how EFLAGS is
// sanitized is intentionally the caller's job -- this setter only
// performs the write once that decision is made.
func (p *Proc) SetTrapFrame(tf cpu.TrapFrame) { p.tf = tf }

// AddressSpace returns the process's owned page directory.
func (p *Proc) AddressSpace() *vm.AddressSpace { return p.as }

// Name returns a human-readable label for logging.
func (p *Proc) Name() string { return p.name }

// SetName sets the logging label.
func (p *Proc) SetName(name string) { p.name = name }

// CPUID lets a *Proc satisfy spinlock.Holder so the table lock and a
// process's own lock can, in principle, be taken with the same API a CPU
// uses. The process-control core never actually acquires a lock "as" a
// process rather than as the CPU running it, but the identity is stable
// and harmless to provide.
func (p *Proc) CPUID() int { return -(p.index + 1) }
