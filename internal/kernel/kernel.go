// Package kernel wires the process-control collaborators -- the page
// allocator, process table, console, and syscall dispatcher -- into a
// bootable instance, and supervises one goroutine per simulated CPU,
// built on golang.org/x/sync/errgroup rather than a hand-rolled channel
// fan-in.
package kernel

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/northlake-os/pios/internal/config"
	"github.com/northlake-os/pios/internal/kernel/console"
	"github.com/northlake-os/pios/internal/kernel/cpu"
	"github.com/northlake-os/pios/internal/kernel/loader"
	"github.com/northlake-os/pios/internal/kernel/mem"
	"github.com/northlake-os/pios/internal/kernel/proc"
	"github.com/northlake-os/pios/internal/kernel/spinlock"
	"github.com/northlake-os/pios/internal/kernel/syscall"
)

// idlePoll bounds how long a CPU goroutine sleeps between Sched attempts
// when the ready queue is empty. This core has no real instruction
// executor to drive further syscalls once a process is scheduled (fetch-
// decode-execute of x86 instructions is an architecture-specific concern
// this core treats as an external collaborator), so the loop's only
// observable work is scheduling and fatal-error reporting; the scenarios
// that exercise PUT/GET/RET/CPUTS drive syscall.Dispatcher directly, the
// way `pios selftest` does.
const idlePoll = time.Millisecond

// Kernel holds one booted instance: its collaborators and the simulated
// CPUs that will run it.
type Kernel struct {
	Config  config.Config
	Alloc   *mem.Allocator
	Table   *proc.Table
	Console *console.Console
	Dispatcher *syscall.Dispatcher

	cpus []*cpu.CPU
	log  *logrus.Entry
}

// New builds an unbooted Kernel from cfg.
func New(cfg config.Config, log *logrus.Entry) *Kernel {
	alloc := mem.New(cfg.MemPages)
	table := proc.NewTable(alloc, cfg.MaxProcs)
	con := console.New(log.WithField("component", "console"), 256)
	disp := syscall.New(table, con)

	cpus := make([]*cpu.CPU, cfg.NCPU)
	for i := range cpus {
		cpus[i] = cpu.New(i)
	}

	return &Kernel{
		Config:     cfg,
		Alloc:      alloc,
		Table:      table,
		Console:    con,
		Dispatcher: disp,
		cpus:       cpus,
		log:        log,
	}
}

// CPUs returns the kernel's simulated CPU descriptors.
func (k *Kernel) CPUs() []*cpu.CPU { return k.cpus }

// Boot loads the root-process image named by k.Config.RootELF and marks
// it READY on the first CPU's behalf.
func (k *Kernel) Boot() (*proc.Proc, error) {
	img, err := loader.Open(k.Config.RootELF)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	root, err := img.Load(k.Table)
	if err != nil {
		return nil, fmt.Errorf("kernel: load root process: %w", err)
	}
	k.Table.Ready(root, k.cpus[0])
	k.log.WithField("entry", fmt.Sprintf("%#x", root.TrapFrame().EIP)).Info("root process ready")
	return root, nil
}

// Run starts one goroutine per configured CPU and blocks until ctx is
// canceled or a CPU goroutine reports a fatal kernel error, in which case
// every other CPU goroutine is stopped and that error is returned --
// the Go analogue of "halt the current CPU with a diagnostic print"
// scaled to "halt the machine", since a real single-CPU halt would leave
// the Go runtime's other goroutines in an inconsistent state.
func (k *Kernel) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, cp := range k.cpus {
		cp := cp
		g.Go(func() error { return k.runCPU(gctx, cp) })
	}
	return g.Wait()
}

func (k *Kernel) runCPU(ctx context.Context, cp *cpu.CPU) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = k.reportFatal(cp, r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		p := k.Table.Sched(cp)
		if p == nil {
			time.Sleep(idlePoll)
			continue
		}
		k.log.WithFields(logrus.Fields{
			"cpu":  cp.CPUID(),
			"proc": p.Index(),
		}).Debug("scheduled")
	}
}

// reportFatal converts a recovered panic from spinlock or syscall's
// *FatalError types into a logged, returned error. Any other panic value
// is a kernel bug and is re-raised rather than swallowed.
func (k *Kernel) reportFatal(cp *cpu.CPU, r interface{}) error {
	entry := k.log.WithField("cpu", cp.CPUID())

	switch e := r.(type) {
	case *spinlock.FatalError:
		entry.WithField("lock", e.Lock.Name()).Error(e.Error())
		return e
	case *syscall.FatalError:
		entry.WithField("kind", e.Kind.String()).Error(e.Error())
		return e
	default:
		panic(r)
	}
}
