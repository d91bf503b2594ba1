package usercopy

import (
	"bytes"
	"testing"

	"github.com/northlake-os/pios/internal/kernel/cpu"
	"github.com/northlake-os/pios/internal/kernel/mem"
	"github.com/northlake-os/pios/internal/kernel/vm"
)

func setup(t *testing.T) (*cpu.CPU, *vm.AddressSpace) {
	t.Helper()
	alloc := mem.New(4)
	as := vm.New(alloc)
	page, err := alloc.AllocPage()
	if err != nil {
		t.Fatal(err)
	}
	as.Insert(vm.VMUserLo, page, vm.PTEPresent|vm.PTEWritable|vm.PTEUser)
	return cpu.New(0), as
}

func TestCopyZeroSizeIsNoop(t *testing.T) {
	c, as := setup(t)
	if err := Copy(c, as, true, nil, 0); err != nil {
		t.Fatalf("zero-size copy should never fault: %v", err)
	}
	if c.Recover != nil {
		t.Fatal("zero-size copy should not touch the recovery slot")
	}
}

func TestCopyRoundTrip(t *testing.T) {
	c, as := setup(t)
	want := []byte("trap-frame-payload")
	if err := Copy(c, as, true, want, vm.VMUserLo+4); err != nil {
		t.Fatalf("copy out: %v", err)
	}
	got := make([]byte, len(want))
	if err := Copy(c, as, false, got, vm.VMUserLo+4); err != nil {
		t.Fatalf("copy in: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
	if c.Recover != nil {
		t.Fatal("recovery slot should be cleared after a successful copy")
	}
}

func TestCopyOverflowReflectsFault(t *testing.T) {
	c, as := setup(t)
	buf := make([]byte, 16)
	err := Copy(c, as, false, buf, vm.VMUserHi-8)
	if err != ErrPageFault {
		t.Fatalf("overflow copy = %v, want ErrPageFault", err)
	}
}

func TestCopyBelowWindowReflectsFault(t *testing.T) {
	c, as := setup(t)
	buf := make([]byte, 4)
	if err := Copy(c, as, false, buf, vm.VMUserLo-4); err != ErrPageFault {
		t.Fatalf("below-window copy = %v, want ErrPageFault", err)
	}
}

func TestCopyPartiallyMappedRangeFaultsWithoutCrash(t *testing.T) {
	c, as := setup(t)
	// Only one page is backed; request a range spanning into the next,
	// unmapped page.
	buf := make([]byte, mem.PageSize+16)
	if err := Copy(c, as, false, buf, vm.VMUserLo); err != ErrPageFault {
		t.Fatalf("partially-mapped copy = %v, want ErrPageFault", err)
	}
}

func TestReflectInvokesArmedRecoveryHandler(t *testing.T) {
	c, as := setup(t)
	var sawTrapno uint32
	c.Recover = func(data interface{}, trapno, errno uint32) { sawTrapno = trapno }
	c.RecoverData = "some-utf"

	buf := make([]byte, 4)
	if err := Copy(c, as, false, buf, vm.VMUserLo-4); err != ErrPageFault {
		t.Fatalf("expected ErrPageFault, got %v", err)
	}
	if sawTrapno != cpu.TPageFault {
		t.Fatalf("recovery handler saw trapno %d, want %d", sawTrapno, cpu.TPageFault)
	}
	if c.Recover != nil {
		t.Fatal("recovery handler should be cleared once invoked")
	}
}
