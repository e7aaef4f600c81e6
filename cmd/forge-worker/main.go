// Command forge-worker is the distribution worker daemon (spec.md §6): it
// advertises itself in a brokerage directory, accepts the distribution wire
// protocol (dist.Worker) from coordinators, and compiles jobs dispatched to
// it within a configurable degree of parallelism.
//
// Flags are grounded on the original's FBuildWorkerOptions: CPU allocation,
// work mode, minimum free memory, periodic restart and console-vs-GUI are
// carried as the same knobs even though this daemon has no GUI surface of
// its own; override-IP retains its original meaning. There is no
// subprocess-copy flag: this daemon never relaunches itself.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	forge "github.com/forgebuild/forge"
	"github.com/forgebuild/forge/dist"
)

// workMode mirrors WorkerSettings::Mode: whether this worker accepts jobs
// at all, and if so under what local-activity condition.
type workMode string

const (
	modeDisabled   workMode = "disabled"
	modeIdleOnly   workMode = "idle-only"
	modeDedicated  workMode = "dedicated"
	modeProportion workMode = "proportional"
)

var (
	toolchainRoot = flag.String("toolchain-root", "", "directory to materialize synced toolchains into (defaults to a temp dir)")
	listenAddr    = flag.String("listen", ":31264", "address to accept coordinator connections on")
	overrideIP    = flag.String("override-ip", "", "advertise this address instead of the listener's own")
	brokerage     = flag.String("brokerage", "", "\";\"-separated brokerage directories to advertise into")
	cpuAllocation = flag.Int("cpus", runtime.NumCPU(), "number of CPUs this worker may use")
	mode          = flag.String("mode", string(modeIdleOnly), "work mode: disabled, idle-only, dedicated, proportional")
	minFreeMemMiB = flag.Int("min-free-memory-mib", 512, "minimum free memory, in MiB (accepted; free memory is not checked)")
	restartHours  = flag.Float64("restart-after-hours", 0, "exit the daemon after this many hours of uptime; it does not relaunch itself (0 disables)")
	consoleMode   = flag.Bool("console", true, "run attached to a console rather than as a background service")
)

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	out := []string{}
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ';' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// exit codes: -1 already running, -2 local setup or serve failure (toolchain
// temp dir, listener, Serve error; there is no subprocess copy to launch),
// -3 bad command line.
const (
	exitAlreadyRunning   = 255 // -1 as an os.Exit code, which only accepts uint8 on some platforms
	exitSubprocessFailed = 254 // -2
	exitBadCommandLine   = 253 // -3
)

func main() {
	flag.Parse()

	m := workMode(*mode)
	switch m {
	case modeDisabled, modeIdleOnly, modeDedicated, modeProportion:
	default:
		fmt.Fprintf(os.Stderr, "forge-worker: bad -mode %q\n", *mode)
		os.Exit(exitBadCommandLine)
	}
	if m == modeDisabled {
		fmt.Fprintln(os.Stderr, "forge-worker: mode is disabled, exiting")
		return
	}

	mutex, err := dist.AcquireWithGrace("forge-worker", 5*time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitAlreadyRunning)
	}
	defer mutex.Unlock()

	root := *toolchainRoot
	if root == "" {
		dir, err := os.MkdirTemp("", "forge-worker-toolchains-")
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitSubprocessFailed)
		}
		defer os.RemoveAll(dir)
		root = dir
	}

	parallelism := *cpuAllocation
	if parallelism < 1 {
		parallelism = 1
	}
	if m == modeProportion {
		// Leave headroom for whatever local interactive work is running,
		// the same half-and-half split WorkerSettings defaults proportional
		// mode to.
		parallelism = (parallelism + 1) / 2
	}

	ctx, cancel := forge.InterruptibleContext()
	defer cancel()

	ln, addr, err := dist.ListenAddr(*listenAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitSubprocessFailed)
	}
	if *overrideIP != "" {
		addr = *overrideIP
	}

	w := &dist.Worker{
		ToolchainRoot: root,
		Parallelism:   parallelism,
		ID:            addr,
		Log:           newLogger(*consoleMode),
	}

	var stops []func() error
	for _, dir := range splitList(*brokerage) {
		stop, err := dist.Advertise(dir, addr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "forge-worker: advertise in %s: %v\n", dir, err)
			continue
		}
		stops = append(stops, stop)
	}
	defer func() {
		for _, stop := range stops {
			stop()
		}
	}()

	if *restartHours > 0 {
		go func() {
			select {
			case <-time.After(time.Duration(*restartHours * float64(time.Hour))):
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	if w.Log != nil {
		w.Log(fmt.Sprintf("forge-worker: listening on %s (%d CPUs, mode %s)", addr, parallelism, m))
	}
	if err := w.Serve(ctx, ln); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitSubprocessFailed)
	}
}

func newLogger(console bool) func(string) {
	if !console {
		return nil
	}
	return func(line string) {
		fmt.Fprintln(os.Stderr, line)
	}
}
