package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/northlake-os/pios/internal/kernel/control"
)

// psCmd dumps the process table and console history of a running kernel
// instance, dialing its control socket.
type psCmd struct {
	sockPath string
}

func (*psCmd) Name() string     { return "ps" }
func (*psCmd) Synopsis() string { return "dump the process table and console history of a running kernel" }
func (*psCmd) Usage() string {
	return "ps [-control=/tmp/pios.sock]:\n\tprint a snapshot of a running kernel's processes and console.\n"
}

func (c *psCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.sockPath, "control", "/tmp/pios.sock", "control socket to query")
}

func (c *psCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	snap, err := control.Dial(c.sockPath).Snapshot()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tSTATE\tEIP\tPARENT\tNAME")
	for _, p := range snap.Procs {
		parent := "-"
		if p.HasParent {
			parent = strconv.Itoa(p.ParentOf)
		}
		fmt.Fprintf(w, "%d\t%s\t%#08x\t%s\t%s\n", p.Index, p.State, p.EIP, parent, p.Name)
	}
	w.Flush()

	for _, line := range snap.Console {
		fmt.Printf("[cpu%d proc%d] %s\n", line.CPUID, line.Proc, line.Text)
	}
	return subcommands.ExitSuccess
}
