// Package usercopy implements a safe kernel<->user memory copy: validate
// the user range, then move bytes, recovering cleanly if the range turns
// out to be unmapped partway through.
//
// A kernel written in C recovers from an in-flight page fault with a
// per-CPU recovery trampoline -- effectively setjmp/longjmp across the
// trap handler. Go has no non-local jump, so this package returns a
// tagged-union result (a plain error) from the copy primitive instead.
// vm.AddressSpace.CopyIn/CopyOut return a plain error, and this package
// still arms and disarms the CPU's Recover/RecoverData slot around the
// copy and drives the recovery handler synchronously on fault, so the
// CPU-visible state and the recovery handler's contract match what a
// real interrupt would have produced even though none fires.
package usercopy

import (
	"errors"

	"github.com/northlake-os/pios/internal/kernel/cpu"
	"github.com/northlake-os/pios/internal/kernel/vm"
)

// ErrPageFault is returned when the copy could not complete because the
// user range was invalid, out of window, overflowed, or only partially
// mapped. The caller (a syscall handler) is expected to reflect this to the
// process's parent via systrap, exactly as a real T_PGFLT would be.
var ErrPageFault = errors.New("usercopy: page fault")

// CheckVA validates a user virtual address range: it must lie wholly
// inside [VMUserLo, VMUserHi) and must not overflow.
func CheckVA(uva uint32, size uint32) error {
	if uva < vm.VMUserLo || uva >= vm.VMUserHi {
		return ErrPageFault
	}
	if vm.VMUserHi-uva < size {
		return ErrPageFault
	}
	return nil
}

// Copy performs a validated kernel<->user memory move, installing the
// recovery slot around the underlying AddressSpace access. copyOut
// selects kernel->user (true) or user->kernel (false). size 0 is always
// a no-op and never faults.
func Copy(cp *cpu.CPU, as *vm.AddressSpace, copyOut bool, kva []byte, uva uint32) error {
	if len(kva) == 0 {
		return nil
	}
	if err := CheckVA(uva, uint32(len(kva))); err != nil {
		return reflect(cp, err)
	}

	disarm := cp.InstallRecovery(func(data interface{}, trapno, errno uint32) {
		// Invoked synchronously below on fault; real hardware would
		// have delivered this through the trap dispatcher instead.
	}, nil)
	defer disarm()

	var err error
	if copyOut {
		_, err = as.CopyOut(uva, kva)
	} else {
		_, err = as.CopyIn(uva, kva)
	}
	if err == vm.ErrFault {
		return reflect(cp, ErrPageFault)
	}
	return err
}

// reflect runs the CPU's armed recovery handler (if any) before returning
// the page-fault error, mirroring sysrecover's "clear cpu_cur()->recover"
// followed by systrap.
func reflect(cp *cpu.CPU, err error) error {
	if cp.Recover != nil {
		fn := cp.Recover
		data := cp.RecoverData
		cp.Recover = nil
		cp.RecoverData = nil
		fn(data, cpu.TPageFault, 0)
	}
	return err
}
