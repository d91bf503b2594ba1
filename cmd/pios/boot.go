package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/northlake-os/pios/internal/config"
	"github.com/northlake-os/pios/internal/kernel"
	"github.com/northlake-os/pios/internal/kernel/control"
)

// bootCmd loads a pios.toml, boots the root process it names, and runs
// the kernel until its context is canceled or a CPU reports a fatal
// error.
type bootCmd struct {
	configPath string
	sockPath   string
}

func (*bootCmd) Name() string     { return "boot" }
func (*bootCmd) Synopsis() string { return "boot a pios kernel instance from a config file" }
func (*bootCmd) Usage() string {
	return "boot [-config=pios.toml] [-control=/tmp/pios.sock]:\n" +
		"\tload the named root-process image and run until interrupted.\n"
}

func (c *bootCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "pios.toml", "path to a boot configuration file")
	f.StringVar(&c.sockPath, "control", "/tmp/pios.sock", "control socket for `pios ps` to dial")
}

func (c *bootCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		newLogger("info").WithError(err).Error("load config")
		return subcommands.ExitFailure
	}
	log := newLogger(cfg.LogLevel)

	k := kernel.New(cfg, log.WithField("component", "kernel"))
	if _, err := k.Boot(); err != nil {
		log.WithError(err).Error("boot root process")
		return subcommands.ExitFailure
	}

	srv, err := control.Listen(c.sockPath, k.Table, k.Console, cfg.MaxProcs)
	if err != nil {
		log.WithError(err).Error("open control socket")
		return subcommands.ExitFailure
	}
	defer srv.Close()
	go func() {
		if err := srv.Serve(); err != nil {
			log.WithError(err).Debug("control server stopped")
		}
	}()

	if err := k.Run(ctx); err != nil {
		log.WithError(err).Error("kernel halted")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
