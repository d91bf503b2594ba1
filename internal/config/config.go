// Package config loads the boot-time configuration for a pios kernel
// instance from a TOML file: a handful of knobs that shape how many
// simulated CPUs and how much simulated physical memory a boot gets,
// kept out of the CLI flags themselves.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the parsed contents of a pios.toml boot file.
type Config struct {
	// NCPU is the number of simulated CPU goroutines to start.
	NCPU int `toml:"ncpu"`
	// MemPages is the size, in pages, of the simulated physical memory
	// arena handed to the page allocator.
	MemPages int `toml:"mem_pages"`
	// MaxProcs bounds the process table.
	MaxProcs int `toml:"max_procs"`
	// RootELF is the path to the statically linked root-process image.
	RootELF string `toml:"root_elf"`
	// LogLevel is a logrus level name: "debug", "info", "warn", "error".
	LogLevel string `toml:"log_level"`
}

// Default returns a Config with the values a fresh pios.toml should start
// from; Load layers the file's settings over it.
func Default() Config {
	return Config{
		NCPU:     1,
		MemPages: 1024,
		MaxProcs: 64,
		RootELF:  "root.elf",
		LogLevel: "info",
	}
}

// Load parses path into a Config layered over Default, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first configuration error found, if any.
func (c Config) Validate() error {
	if c.NCPU < 1 {
		return fmt.Errorf("config: ncpu must be >= 1, got %d", c.NCPU)
	}
	if c.MemPages < 1 {
		return fmt.Errorf("config: mem_pages must be >= 1, got %d", c.MemPages)
	}
	if c.MaxProcs < 1 {
		return fmt.Errorf("config: max_procs must be >= 1, got %d", c.MaxProcs)
	}
	if c.RootELF == "" {
		return fmt.Errorf("config: root_elf must be set")
	}
	return nil
}
