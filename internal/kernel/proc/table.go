package proc

import (
	"strconv"
	"sync"

	"github.com/northlake-os/pios/internal/kernel/cpu"
	"github.com/northlake-os/pios/internal/kernel/mem"
	"github.com/northlake-os/pios/internal/kernel/spinlock"
	"github.com/northlake-os/pios/internal/kernel/vm"
)

// Table is the process table: a fixed set of slots, a page allocator each
// process's address space draws from, and a ready queue. Table-wide slot
// search uses a plain mutex -- allocation is bookkeeping outside the
// per-process locking discipline the rest of this package follows.
type Table struct {
	alloc *mem.Allocator
	ready readyQueue

	mu    sync.Mutex
	procs []*Proc
}

// NewTable builds an empty table with room for max processes, drawing
// address spaces from alloc.
func NewTable(alloc *mem.Allocator, max int) *Table {
	return &Table{alloc: alloc, procs: make([]*Proc, max)}
}

// Root returns the process in slot 0 if it has been allocated, else nil.
func (t *Table) Root() *Proc {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.procs) == 0 {
		return nil
	}
	return t.procs[0]
}

// Get returns the process at the given table index, or nil if that slot is
// unallocated or out of range.
func (t *Table) Get(index int) *Proc {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.procs) {
		return nil
	}
	return t.procs[index]
}

// Alloc takes a free process-table slot, links it as parent's child at
// childno if parent is non-nil, and returns it in STOP state. Fails with
// ErrNoSlot if the table is full. A process is never returned to AVAIL:
// this core does not destroy processes, matching Non-goal coverage for
// process teardown.
func (t *Table) Alloc(parent *Proc, childno int) (*Proc, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, p := range t.procs {
		if p != nil {
			continue
		}
		np := &Proc{
			index:   i,
			parent:  parent,
			childNo: childno,
			state:   STOP,
			as:      vm.New(t.alloc),
		}
		np.lock = spinlock.New(procLockName(i))
		t.procs[i] = np
		if parent != nil {
			parent.child[childno] = np
		}
		return np, nil
	}
	return nil, ErrNoSlot
}

func procLockName(i int) string {
	return "proc[" + strconv.Itoa(i) + "]"
}

// Ready marks p READY and makes it visible to Sched, acquiring p's lock
// itself. Use this when the caller does not already hold p.Lock().
func (t *Table) Ready(p *Proc, cp *cpu.CPU) {
	p.lock.Acquire(cp)
	p.state = READY
	p.lock.Release(cp)
	t.ready.push(p)
}

// Enqueue makes p visible to Sched without touching its lock or state.
// Pair with Proc.MarkReady for callers that must transition p to READY
// inside a critical section they already hold and release separately --
// PUT's SYS_START step, which decides READY while still holding
// child.lock for its other flag effects, then releases before a caller
// can observe the ready queue.
func (t *Table) Enqueue(p *Proc) {
	t.ready.push(p)
}

// Sched picks the next READY process for cp, marks it RUN and assigns it
// to the CPU, and returns it. Returns nil if no process is ready; the
// caller is expected to spin or idle. Any fair policy satisfies the
// contract; this core uses a plain FIFO.
func (t *Table) Sched(cp *cpu.CPU) *Proc {
	for {
		p, ok := t.ready.pop()
		if !ok {
			cp.Proc = nil
			return nil
		}
		p.lock.Acquire(cp)
		if p.state != READY {
			// Raced with something that moved p out of READY between
			// push and pop (e.g. re-targeted by a test). Drop it and
			// keep looking rather than running a stale assignment.
			p.lock.Release(cp)
			continue
		}
		p.state = RUN
		p.lock.Release(cp)
		cp.Proc = p
		return p
	}
}

// Wait blocks parent on child: the caller must hold child.Lock() already.
// Wait saves tf into parent's trap frame (rewinding EIP so the trapping
// PUT/GET re-executes when parent resumes), marks parent WAIT with child
// as its wait target, records parent as one of child's waiters while still
// holding child's lock, and finally releases that lock. The caller (a
// syscall handler) is responsible for then yielding the CPU -- this core
// has no real interrupt to return from, so "yielding" means returning
// control to the dispatch loop, which calls Sched for its next process.
func Wait(parent, child *Proc, tf cpu.TrapFrame, cp *cpu.CPU) {
	tf.EIP -= syscallInstrLen

	parent.lock.Acquire(cp)
	parent.tf = tf
	parent.waitTarget = child
	parent.state = WAIT
	parent.lock.Release(cp)

	child.waiters = append(child.waiters, parent)
	child.lock.Release(cp)
}

// Ret implements RET: p, running on cp, stops. If entryflag is set tf's
// EIP is advanced past the trap instruction first (RET called via an
// explicit syscall, as opposed to a child simply never restarting). p's
// trap frame is saved as its STOP-state context, then any waiter whose
// wait target is p has that target cleared and is woken via Ready.
func (t *Table) Ret(p *Proc, tf cpu.TrapFrame, entryflag bool, cp *cpu.CPU) {
	if entryflag {
		tf.EIP += syscallInstrLen
	}

	p.lock.Acquire(cp)
	p.tf = tf
	p.state = STOP
	waiters := p.waiters
	p.waiters = nil
	p.lock.Release(cp)

	for _, w := range waiters {
		w.lock.Acquire(cp)
		if w.state == WAIT && w.waitTarget == p {
			w.waitTarget = nil
			w.lock.Release(cp)
			t.Ready(w, cp)
			continue
		}
		w.lock.Release(cp)
	}
}

// readyQueue is a minimal thread-safe FIFO. Scheduling order among READY
// processes is not otherwise constrained; a slice-backed queue is the
// simplest implementation that is still fair across CPUs.
type readyQueue struct {
	mu    sync.Mutex
	items []*Proc
}

func (q *readyQueue) push(p *Proc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, p)
}

func (q *readyQueue) pop() (*Proc, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	p := q.items[0]
	q.items = q.items[1:]
	return p, true
}
