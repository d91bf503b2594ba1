package mem

import "testing"

func TestAllocFreeRoundTrip(t *testing.T) {
	a := New(4)
	if a.Available() != 4 {
		t.Fatalf("Available() = %d, want 4", a.Available())
	}
	p, err := a.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	if a.Available() != 3 {
		t.Fatalf("Available() after alloc = %d, want 3", a.Available())
	}
	p.Bytes()[0] = 0xAB
	a.FreePage(p)
	if a.Available() != 4 {
		t.Fatalf("Available() after free = %d, want 4", a.Available())
	}
}

func TestAllocPageIsZeroed(t *testing.T) {
	a := New(2)
	p1, _ := a.AllocPage()
	for i := range p1.Bytes() {
		p1.Bytes()[i] = 0xFF
	}
	a.FreePage(p1)
	p2, _ := a.AllocPage()
	for i, b := range p2.Bytes() {
		if b != 0 {
			t.Fatalf("byte %d not zeroed on alloc: %#x", i, b)
		}
	}
}

func TestAllocExhaustion(t *testing.T) {
	a := New(1)
	if _, err := a.AllocPage(); err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	if _, err := a.AllocPage(); err != ErrOutOfMemory {
		t.Fatalf("AllocPage on exhausted allocator = %v, want ErrOutOfMemory", err)
	}
}

func TestFreeingZeroPagePanics(t *testing.T) {
	a := New(1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when freeing the sentinel zero page")
		}
	}()
	a.FreePage(a.ZeroPage())
}
