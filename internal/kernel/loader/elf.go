// Package loader implements the root-process bootstrap: parse a
// statically linked ELF image, populate the initial process's address
// space, and mark read-only sections, in a three-pass section walk
// (allocate, copy/zero, write-protect). Root-process images are mapped
// read-only with golang.org/x/sys/unix.Mmap rather than read into a
// []byte.
package loader

import (
	"bytes"
	"debug/elf"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/northlake-os/pios/internal/kernel/mem"
	"github.com/northlake-os/pios/internal/kernel/proc"
	"github.com/northlake-os/pios/internal/kernel/vm"
)

// Image is a memory-mapped, parsed ELF file ready to be loaded into an
// address space. Callers must call Close when done with it.
type Image struct {
	data []byte
	f    *elf.File
}

// Open mmaps path read-only and parses it as an ELF file.
func Open(path string) (*Image, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open %s: %w", path, err)
	}
	defer fh.Close()

	st, err := fh.Stat()
	if err != nil {
		return nil, fmt.Errorf("loader: stat %s: %w", path, err)
	}
	if st.Size() == 0 {
		return nil, fmt.Errorf("loader: %s is empty", path)
	}

	data, err := unix.Mmap(int(fh.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("loader: mmap %s: %w", path, err)
	}

	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("loader: parse %s: %w", path, err)
	}

	return &Image{data: data, f: f}, nil
}

// Close unmaps the underlying image.
func (img *Image) Close() error {
	return unix.Munmap(img.data)
}

// Load builds a root process in table (slot 0, no parent) whose address
// space is populated from img in three passes:
//  1. allocate pages covering every loadable section, fresh and writable;
//  2. copy PROGBITS content or zero-fill NOBITS through the now-installed
//     mapping;
//  3. clear the writable bit on every page of a section lacking SHF_WRITE.
//
// A user stack page is allocated at vm.VMUserHi-mem.PageSize. The
// returned process's saved trap frame has EIP set to the ELF entry point,
// ESP to the top of the stack, and EFLAGS enabling interrupts only.
func (img *Image) Load(table *proc.Table) (*proc.Proc, error) {
	root, err := table.Alloc(nil, 0)
	if err != nil {
		return nil, err
	}
	as := root.AddressSpace()

	type loadable struct {
		sh      *elf.Section
		addr    uint32
		size    uint32
		writable bool
	}
	var sections []loadable
	for _, sh := range img.f.Sections {
		if sh.Addr == 0 {
			continue
		}
		if sh.Type != elf.SHT_PROGBITS && sh.Type != elf.SHT_NOBITS {
			continue
		}
		sections = append(sections, loadable{
			sh:       sh,
			addr:     uint32(sh.Addr),
			size:     uint32(sh.Size),
			writable: sh.Flags&elf.SHF_WRITE != 0,
		})
	}

	// Pass 1: allocate, fresh and writable.
	for _, s := range sections {
		if err := as.AllocRange(s.addr, s.size); err != nil {
			return nil, fmt.Errorf("loader: allocate %s: %w", s.sh.Name, err)
		}
	}

	// Pass 2: copy PROGBITS content, zero-fill NOBITS.
	for _, s := range sections {
		switch s.sh.Type {
		case elf.SHT_PROGBITS:
			content := make([]byte, s.size)
			if _, err := s.sh.ReadAt(content, 0); err != nil {
				return nil, fmt.Errorf("loader: read %s: %w", s.sh.Name, err)
			}
			if _, err := as.CopyOut(s.addr, content); err != nil {
				return nil, fmt.Errorf("loader: populate %s: %w", s.sh.Name, err)
			}
		case elf.SHT_NOBITS:
			if _, err := as.CopyOut(s.addr, make([]byte, s.size)); err != nil {
				return nil, fmt.Errorf("loader: zero %s: %w", s.sh.Name, err)
			}
		}
	}

	// Pass 3: write-protect sections lacking SHF_WRITE. The pages must
	// already be backed by pass 1/2; ClearWritable panics otherwise,
	// which is the correct outcome -- a section with no content at this
	// point is a loader bug, not a user-reflectable condition.
	for _, s := range sections {
		if s.writable {
			continue
		}
		for va := pageAlign(s.addr); va < s.addr+s.size; va += mem.PageSize {
			as.ClearWritable(va)
		}
	}

	stackVA := vm.VMUserHi - mem.PageSize
	if err := as.AllocRange(stackVA, mem.PageSize); err != nil {
		return nil, fmt.Errorf("loader: allocate stack: %w", err)
	}

	as.Load()

	tf := root.TrapFrame()
	tf.EIP = uint32(img.f.Entry)
	tf.ESP = vm.VMUserHi - 1
	tf.EFlags = interruptEnableFlag
	root.Lock().Acquire(bootCPU{})
	root.SetTrapFrame(tf)
	root.Lock().Release(bootCPU{})

	return root, nil
}

// interruptEnableFlag is EFLAGS.IF, the only bit the loader sets on the
// root process's initial flags.
const interruptEnableFlag = 1 << 9

func pageAlign(va uint32) uint32 { return va &^ (mem.PageSize - 1) }

// bootCPU is a fixed spinlock.Holder identity for the single-threaded
// boot-time window before any real CPU descriptor exists.
type bootCPU struct{}

func (bootCPU) CPUID() int { return -1 }
