package cpu

import "testing"

func TestSanitizeEFlags(t *testing.T) {
	tf := &TrapFrame{EFlags: 0xFFFFFFFF}
	tf.SanitizeEFlags()
	if tf.EFlags != FLUser {
		t.Fatalf("SanitizeEFlags() = %#x, want %#x", tf.EFlags, FLUser)
	}
}

func TestInstallRecoveryRoundTrip(t *testing.T) {
	c := New(0)
	if c.Recover != nil {
		t.Fatal("new CPU should have no recovery handler installed")
	}
	var called bool
	disarm := c.InstallRecovery(func(data interface{}, trapno, err uint32) {
		called = true
	}, "cookie")
	if c.Recover == nil || c.RecoverData != "cookie" {
		t.Fatal("InstallRecovery did not arm the recovery slot")
	}
	c.Recover(c.RecoverData, 14, 0)
	if !called {
		t.Fatal("recovery handler was not invoked")
	}
	disarm()
	if c.Recover != nil || c.RecoverData != nil {
		t.Fatal("disarm did not clear the recovery slot")
	}
}

func TestCountTrap(t *testing.T) {
	c := New(3)
	for i := 0; i < 5; i++ {
		c.CountTrap()
	}
	if c.TrapCount != 5 {
		t.Fatalf("TrapCount = %d, want 5", c.TrapCount)
	}
	if c.CPUID() != 3 {
		t.Fatalf("CPUID() = %d, want 3", c.CPUID())
	}
}
