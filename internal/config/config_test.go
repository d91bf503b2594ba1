package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pios.toml")
	body := `
ncpu = 4
mem_pages = 2048
root_elf = "/boot/root.elf"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NCPU != 4 {
		t.Errorf("NCPU = %d, want 4", cfg.NCPU)
	}
	if cfg.MemPages != 2048 {
		t.Errorf("MemPages = %d, want 2048", cfg.MemPages)
	}
	if cfg.RootELF != "/boot/root.elf" {
		t.Errorf("RootELF = %q, want /boot/root.elf", cfg.RootELF)
	}
	// MaxProcs and LogLevel were not set in the file; defaults carry
	// through.
	if cfg.MaxProcs != Default().MaxProcs {
		t.Errorf("MaxProcs = %d, want default %d", cfg.MaxProcs, Default().MaxProcs)
	}
	if cfg.LogLevel != Default().LogLevel {
		t.Errorf("LogLevel = %q, want default %q", cfg.LogLevel, Default().LogLevel)
	}
}

func TestLoadRejectsInvalidNCPU(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pios.toml")
	if err := os.WriteFile(path, []byte("ncpu = 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load with ncpu = 0 should fail validation")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("Load of a missing file should fail")
	}
}
