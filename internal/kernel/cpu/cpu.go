// Package cpu describes the per-CPU state that anchors every cross-CPU
// invariant in this kernel: the currently running process, the trap
// frame convention, and the recovery slot used by safe user-space
// copies.
//
// The accessor style on TrapFrame (IP/SetIP, Stack/SetStack) follows the
// convention of an explicit, named accessor per architectural register
// rather than raw field access, adapted here to a 32-bit x86 trap frame.
package cpu

import "sync/atomic"

// Architectural trap numbers this core reflects or synthesizes. Values
// follow the x86 convention (T_PGFLT is the real Intel vector 14;
// T_SYSCALL is the software-interrupt vector this kernel's syscall ABI
// enters through).
const (
	TSyscall uint32 = 0x30
	TPageFault uint32 = 14
	TGeneralProtection uint32 = 13
)

// FLUser is the mask of EFLAGS bits a process may set in a child via PUT;
// all other bits (control, IOPL, trap, interrupt, VM86, reserved) are
// kernel-controlled.
const FLUser = CF | PF | AF | ZF | SF | DF | OF

// EFLAGS bit positions honored by FLUser.
const (
	CF = 1 << 0
	PF = 1 << 2
	AF = 1 << 4
	ZF = 1 << 6
	SF = 1 << 7
	DF = 1 << 10
	OF = 1 << 11
)

// Regs is the packed general-register record captured at trap entry, in the
// order a pusha-style prologue would leave them on the stack.
type Regs struct {
	EDI, ESI, EBP, ESP, EBX, EDX, ECX, EAX uint32
}

// TrapFrame is the saved user context at the last kernel entry: general
// registers, segment selectors, EIP, ESP, EFLAGS, trap number and error
// code, plus the user-mode-only ESP/SS pair.
type TrapFrame struct {
	Regs Regs

	ES, DS uint16
	FS, GS uint16

	TrapNo uint32
	Err    uint32

	EIP    uint32
	CS     uint16
	EFlags uint32

	// Present only when the trap originated in user mode.
	ESP uint32
	SS  uint16
}

// IP returns the saved instruction pointer.
func (tf *TrapFrame) IP() uint32 { return tf.EIP }

// SetIP sets the saved instruction pointer.
func (tf *TrapFrame) SetIP(v uint32) { tf.EIP = v }

// Stack returns the saved user stack pointer.
func (tf *TrapFrame) Stack() uint32 { return tf.ESP }

// SetStack sets the saved user stack pointer.
func (tf *TrapFrame) SetStack(v uint32) { tf.ESP = v }

// SanitizeEFlags masks the trap frame's EFLAGS down to FLUser, the single
// most important safety gate in PUT.
func (tf *TrapFrame) SanitizeEFlags() {
	tf.EFlags &= FLUser
}

// RecoverFunc is invoked by the trap dispatcher when a fault occurs while
// the owning CPU's Recover field is non-nil, in place of the C original's
// non-local jump through a per-CPU recovery trampoline. data is the cookie
// installed alongside the handler (the user trap frame being served).
type RecoverFunc func(data interface{}, trapno, err uint32)

// CPU is one physical (simulated) processor's kernel-visible state.
type CPU struct {
	id int

	// Proc is the process currently assigned to RUN on this CPU, nil if
	// idle. Only this CPU's own goroutine ever writes it. Typed as `any`
	// rather than *proc.Proc because the proc package imports cpu (for
	// TrapFrame and the spinlock.Holder identity CPU provides); proc.Proc
	// values are recovered with a type assertion where needed.
	Proc any

	// Recover and RecoverData form the per-CPU recovery slot consulted
	// during usercopy: when Recover is non-nil, a fault observed during
	// a kernel copy is diverted here instead of propagating as a normal
	// reflected trap from the syscall itself.
	Recover     RecoverFunc
	RecoverData interface{}

	// TrapCount is an ambient metric, not part of the core's invariants:
	// total traps counted on this CPU through CountTrap, for tests
	// asserting forward progress.
	TrapCount uint64
}

// New creates a CPU descriptor with the given stable id.
func New(id int) *CPU {
	return &CPU{id: id}
}

// CPUID implements spinlock.Holder and cpu.Proc-adjacent identity checks.
func (c *CPU) CPUID() int { return c.id }

// CountTrap increments the ambient trap counter. Safe to call without
// additional locking: each CPU only ever increments its own counter.
func (c *CPU) CountTrap() { atomic.AddUint64(&c.TrapCount, 1) }

// InstallRecovery arms the recovery slot before a protected copy and
// returns a function that disarms it, so callers can `defer cpu.InstallRecovery(...)()`.
func (c *CPU) InstallRecovery(fn RecoverFunc, data interface{}) func() {
	c.Recover = fn
	c.RecoverData = data
	return func() {
		c.Recover = nil
		c.RecoverData = nil
	}
}
