// Command pios is the entrypoint for the process-control core: boot a
// kernel instance from a TOML config, run its built-in correctness
// scenarios, or query a running instance's process table and console
// history.
//
// Subcommands are registered help-and-flags first, then the user-facing
// verbs, all via google/subcommands.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(&bootCmd{}, "")
	subcommands.Register(&selftestCmd{}, "")
	subcommands.Register(&psCmd{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

// newLogger builds a logrus.Logger at the named level, defaulting to Info
// on an unrecognized name rather than failing the whole command over a
// typo'd flag.
func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log
}
