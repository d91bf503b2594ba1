package proc

import (
	"testing"

	"github.com/northlake-os/pios/internal/kernel/cpu"
	"github.com/northlake-os/pios/internal/kernel/mem"
)

func newTestTable(t *testing.T, maxProcs int) *Table {
	t.Helper()
	return NewTable(mem.New(16), maxProcs)
}

func TestAllocLinksChild(t *testing.T) {
	table := newTestTable(t, 4)
	root, err := table.Alloc(nil, 0)
	if err != nil {
		t.Fatalf("alloc root: %v", err)
	}
	if root.State() != STOP {
		t.Fatalf("fresh process state = %v, want STOP", root.State())
	}

	child, err := table.Alloc(root, 3)
	if err != nil {
		t.Fatalf("alloc child: %v", err)
	}
	if root.Child(3) != child {
		t.Fatal("root.Child(3) did not observe the new child")
	}
	if child.Parent() != root {
		t.Fatal("child.Parent() != root")
	}
}

func TestAllocExhaustionReturnsErrNoSlot(t *testing.T) {
	table := newTestTable(t, 1)
	if _, err := table.Alloc(nil, 0); err != nil {
		t.Fatalf("first alloc: %v", err)
	}
	if _, err := table.Alloc(nil, 0); err != ErrNoSlot {
		t.Fatalf("second alloc = %v, want ErrNoSlot", err)
	}
}

// TestReadySchedRoundTrip covers the concrete scenario of a freshly PUT
// child: it starts STOP, the syscall handler marks it READY, and Sched
// hands it to a CPU as RUN.
func TestReadySchedRoundTrip(t *testing.T) {
	table := newTestTable(t, 4)
	cp := cpu.New(0)

	child, _ := table.Alloc(nil, 0)
	table.Ready(child, cp)
	if child.State() != READY {
		t.Fatalf("state after Ready = %v, want READY", child.State())
	}

	got := table.Sched(cp)
	if got != child {
		t.Fatal("Sched did not return the only ready process")
	}
	if child.State() != RUN {
		t.Fatalf("state after Sched = %v, want RUN", child.State())
	}
	if cp.Proc != child {
		t.Fatal("Sched did not assign the process to the CPU")
	}
}

func TestSchedWithNoReadyProcessReturnsNil(t *testing.T) {
	table := newTestTable(t, 4)
	cp := cpu.New(0)
	if p := table.Sched(cp); p != nil {
		t.Fatalf("Sched on an empty ready queue = %v, want nil", p)
	}
	if cp.Proc != nil {
		t.Fatal("idle Sched must clear cp.Proc")
	}
}

// TestPutStartGetRoundTrip exercises the PUT/START/GET scenario directly
// against the table and state machine (independent of the syscall
// dispatcher built on top of it): a parent allocates child 0, starts it,
// and the child runs to completion via Ret.
func TestPutStartGetRoundTrip(t *testing.T) {
	table := newTestTable(t, 4)
	cp := cpu.New(0)

	parent, _ := table.Alloc(nil, 0)
	child, err := table.Alloc(parent, 0)
	if err != nil {
		t.Fatalf("alloc child: %v", err)
	}

	// START: child transitions STOP -> READY -> RUN.
	table.Ready(child, cp)
	if table.Sched(cp) != child {
		t.Fatal("expected child to be scheduled")
	}

	// Child runs, then calls RET (entryflag set, as if via an explicit
	// syscall rather than falling off the end).
	tf := child.TrapFrame()
	tf.EIP = 0x41410000
	table.Ret(child, tf, true, cp)

	if child.State() != STOP {
		t.Fatalf("child state after Ret = %v, want STOP", child.State())
	}
	final := child.TrapFrame()
	if final.EIP != 0x41410000+syscallInstrLen {
		t.Fatalf("Ret with entryflag did not advance EIP: got %#x", final.EIP)
	}
}

// TestWaitThenRetWakesParent exercises the PUT-wait-then-RET scenario: a
// parent GETs a child that is not yet STOP, blocks in WAIT, and the
// child's eventual RET must make the parent READY again with its wait
// target cleared.
func TestWaitThenRetWakesParent(t *testing.T) {
	table := newTestTable(t, 4)
	parentCPU := cpu.New(0)
	childCPU := cpu.New(1)

	parent, _ := table.Alloc(nil, 0)
	child, _ := table.Alloc(parent, 0)

	// Child is mid-flight: READY then scheduled onto its own CPU, not
	// STOP, so a GET on it must block the parent rather than complete
	// immediately.
	table.Ready(child, childCPU)
	if table.Sched(childCPU) != child {
		t.Fatal("expected child to be scheduled")
	}

	var callingTF cpu.TrapFrame
	callingTF.EIP = 0x8048100

	child.Lock().Acquire(parentCPU)
	Wait(parent, child, callingTF, parentCPU)

	if parent.State() != WAIT {
		t.Fatalf("parent state = %v, want WAIT", parent.State())
	}
	if parent.waitTarget != child {
		t.Fatal("parent.waitTarget != child")
	}
	if got := parent.TrapFrame().EIP; got != callingTF.EIP-syscallInstrLen {
		t.Fatalf("parent saved EIP = %#x, want rewound %#x", got, callingTF.EIP-syscallInstrLen)
	}

	// Child eventually calls RET.
	childTF := child.TrapFrame()
	table.Ret(child, childTF, false, childCPU)

	if parent.State() != READY {
		t.Fatalf("parent state after child Ret = %v, want READY", parent.State())
	}
	if parent.waitTarget != nil {
		t.Fatal("parent.waitTarget must be cleared once woken")
	}
}

// TestRetDoesNotWakeUnrelatedWaiter ensures Ret only wakes a waiter whose
// wait target is the returning process, not every registered waiter.
func TestRetDoesNotWakeUnrelatedWaiter(t *testing.T) {
	table := newTestTable(t, 6)
	cp := cpu.New(0)

	parent, _ := table.Alloc(nil, 0)
	childA, _ := table.Alloc(parent, 0)
	childB, _ := table.Alloc(parent, 1)

	table.Ready(childA, cp)
	table.Sched(cp)
	table.Ready(childB, cp)
	table.Sched(cp)

	childA.Lock().Acquire(cp)
	Wait(parent, childA, cpu.TrapFrame{EIP: 0x1000}, cp)

	// childB returns; parent is waiting on childA, not childB, so it must
	// remain in WAIT.
	table.Ret(childB, childB.TrapFrame(), false, cp)
	if parent.State() != WAIT {
		t.Fatalf("parent state after unrelated Ret = %v, want WAIT", parent.State())
	}

	table.Ret(childA, childA.TrapFrame(), false, cp)
	if parent.State() != READY {
		t.Fatalf("parent state after target Ret = %v, want READY", parent.State())
	}
}
