// Package vm implements the paged address space the rest of the kernel
// treats as an external collaborator: insert, walk, and a range-granular
// copy between two directories.
//
// A real x86 pmap is a two-level page directory/table walked with
// physical-address arithmetic. This rendition keeps the same public
// contract (Insert/Walk/Copy/Load/Phys) but backs it with a Go map keyed
// by page-aligned virtual address -- an architecture-specific data
// structure this core does not need to get bit-for-bit right to honor
// that contract.
package vm

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/northlake-os/pios/internal/kernel/mem"
)

var nextASID uint64

// Page table entry permission bits, named after the x86 bits the original
// pmap manipulates directly.
const (
	PTEPresent = 1 << iota
	PTEWritable
	PTEUser
)

// VMUserLo and VMUserHi bound the user address window: every user
// pointer crossing the syscall boundary must lie wholly inside
// [VMUserLo, VMUserHi).
const (
	VMUserLo uint32 = 0x40000000
	VMUserHi uint32 = 0x80000000
)

// ErrFault stands in for the synthesized T_PGFLT trap raised when a
// usercopy touches an invalid or unmapped range: a tagged-union result
// bubbling out of the copy primitive instead of a non-local jump.
var ErrFault = errors.New("vm: page fault")

// pte is one mapping: the backing page and its permission bits.
type pte struct {
	page  *mem.Page
	flags uint32
}

// AddressSpace is one process's page directory.
type AddressSpace struct {
	mu    sync.Mutex
	alloc *mem.Allocator
	pages map[uint32]*pte
	id    uint64
}

// New creates an empty address space backed by alloc.
func New(alloc *mem.Allocator) *AddressSpace {
	return &AddressSpace{
		alloc: alloc,
		pages: make(map[uint32]*pte),
		id:    atomic.AddUint64(&nextASID, 1),
	}
}

func pageAlign(va uint32) uint32 { return va &^ (mem.PageSize - 1) }

// Insert maps page at the page-aligned address containing va with the
// given permission bits, displacing any existing mapping. The loader
// relies on this: its allocation pass is always fresh, and any leftover
// mapping it happens to overlap is simply displaced.
func (as *AddressSpace) Insert(va uint32, page *mem.Page, flags uint32) {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.pages[pageAlign(va)] = &pte{page: page, flags: flags}
}

// Walk returns the permission flags and presence of the page covering va.
// create is accepted for contract parity with the real pmap_walk (which can
// allocate an empty page table level); this map-backed implementation never
// needs to allocate intermediate structure, so create has no effect beyond
// documenting caller intent.
func (as *AddressSpace) Walk(va uint32, create bool) (flags uint32, ok bool) {
	_ = create
	as.mu.Lock()
	defer as.mu.Unlock()
	p, ok := as.pages[pageAlign(va)]
	if !ok {
		return 0, false
	}
	return p.flags, true
}

// ClearWritable removes PTEWritable from the mapping covering va. It is a
// kernel bug (panic) to call this on an address with no backing page:
// the loader's write-protect pass only ever runs over pages its own
// allocate/copy passes have already backed, never a sentinel-zero page.
func (as *AddressSpace) ClearWritable(va uint32) {
	as.mu.Lock()
	defer as.mu.Unlock()
	p, ok := as.pages[pageAlign(va)]
	if !ok || p.page == nil {
		panic("vm: ClearWritable on unbacked page")
	}
	p.flags &^= PTEWritable
}

// Copy implements the range-granular cross-directory copy PUT/GET's
// SYS_COPY flag drives. Rather than sharing physical frames
// copy-on-write and relying on a write-fault to split them -- which
// would require emulating MMU write faults on ordinary stores, well
// outside what demand-paging-free process control needs -- Copy
// performs an immediate byte-level memmove into freshly allocated
// destination pages (see DESIGN.md). The externally observable effect
// (src and dst are independently writable afterward) matches a real
// pmap_copy; only the page-sharing optimization is dropped.
func (as *AddressSpace) Copy(dst *AddressSpace, sva, dva uint32, size uint32) error {
	if size == 0 {
		return nil
	}
	buf := make([]byte, size)
	if _, err := as.CopyIn(sva, buf); err != nil {
		return err
	}
	return dst.copyInFresh(dva, buf)
}

// Zero fills [va, va+size) in as with the allocator's sentinel zero
// page, mapped read-only: SYS_ZERO is implemented as a range fill with
// shared zero-sentinel pages rather than a real per-byte clear.
func (as *AddressSpace) Zero(va uint32, size uint32) error {
	if size == 0 {
		return nil
	}
	if va < VMUserLo || va >= VMUserHi || VMUserHi-va < size {
		return ErrFault
	}
	start := pageAlign(va)
	end := pageAlign(va + size - 1)
	zero := as.alloc.ZeroPage()
	for p := start; p <= end; p += mem.PageSize {
		as.Insert(p, zero, PTEPresent|PTEUser)
	}
	return nil
}

// AllocRange maps fresh, writable, user pages covering [va, va+size),
// rounded to page boundaries, displacing any existing mapping. Used by the
// root-process loader's first pass, which must allocate a section's pages
// before any content exists to copy into them.
func (as *AddressSpace) AllocRange(va, size uint32) error {
	if size == 0 {
		return nil
	}
	start := pageAlign(va)
	end := pageAlign(va + size - 1)
	for p := start; p <= end; p += mem.PageSize {
		page, err := as.alloc.AllocPage()
		if err != nil {
			return err
		}
		as.Insert(p, page, PTEPresent|PTEWritable|PTEUser)
	}
	return nil
}

// copyInFresh allocates fresh, writable pages covering [va, va+len(buf)) and
// copies buf into them, used by Copy.
func (as *AddressSpace) copyInFresh(va uint32, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	start := pageAlign(va)
	end := pageAlign(va + uint32(len(buf)) - 1)
	for p := start; p <= end; p += mem.PageSize {
		page, err := as.alloc.AllocPage()
		if err != nil {
			return err
		}
		as.Insert(p, page, PTEPresent|PTEWritable|PTEUser)
	}
	return as.writeBytes(va, buf)
}

// writeBytes copies buf into already-mapped pages starting at va, failing
// with ErrFault if any covered page is missing or mapped read-only.
func (as *AddressSpace) writeBytes(va uint32, buf []byte) error {
	off := 0
	for off < len(buf) {
		cur := va + uint32(off)
		as.mu.Lock()
		p, ok := as.pages[pageAlign(cur)]
		as.mu.Unlock()
		if !ok || p.flags&PTEWritable == 0 {
			return ErrFault
		}
		pageOff := int(cur - pageAlign(cur))
		n := copy(p.page.Bytes()[pageOff:], buf[off:])
		off += n
	}
	return nil
}

// readBytes copies from already-mapped pages starting at va into buf,
// failing with ErrFault if any covered page is missing.
func (as *AddressSpace) readBytes(va uint32, buf []byte) error {
	off := 0
	for off < len(buf) {
		cur := va + uint32(off)
		as.mu.Lock()
		p, ok := as.pages[pageAlign(cur)]
		as.mu.Unlock()
		if !ok {
			return ErrFault
		}
		pageOff := int(cur - pageAlign(cur))
		n := copy(buf[off:], p.page.Bytes()[pageOff:])
		off += n
	}
	return nil
}

// CopyIn copies size bytes from user address uva in as into kva
// (user -> kernel direction).
func (as *AddressSpace) CopyIn(uva uint32, kva []byte) (int, error) {
	if err := as.readBytes(uva, kva); err != nil {
		return 0, err
	}
	return len(kva), nil
}

// CopyOut copies kva into user address uva in as (kernel -> user direction).
func (as *AddressSpace) CopyOut(uva uint32, kva []byte) (int, error) {
	if err := as.writeBytes(uva, kva); err != nil {
		return 0, err
	}
	return len(kva), nil
}

// Load installs as the "currently active" address space. In a real
// kernel this writes %cr3; here it exists purely so the loader's
// documented "reinstall the target directory to flush the TLB" step has
// something to call. It has no observable effect on this map-backed
// implementation, since every CopyIn/CopyOut/Insert call already names
// its AddressSpace explicitly.
func (as *AddressSpace) Load() {}

// Phys returns a stable identity for the address space, the Go analogue
// of a physical directory address, for identity comparisons and logging.
func (as *AddressSpace) Phys() uintptr { return uintptr(as.id) }
