package runner

import (
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ProcessRegistry tracks every live task subprocess so that shutdown paths
// can always find and signal them. The scheduler owns a single registry for
// the whole run and hands it to each Runner invocation.
//
// Usage pattern (typically in main):
//
//	reg := runner.NewProcessRegistry()
//	sup := supervisor.New(reg, log)
//	ctx, cancel := sup.Context(context.Background())
//	defer cancel()
type ProcessRegistry struct {
	mu    sync.Mutex
	procs map[int]*exec.Cmd
}

// NewProcessRegistry creates an empty registry.
func NewProcessRegistry() *ProcessRegistry {
	return &ProcessRegistry{
		procs: make(map[int]*exec.Cmd),
	}
}

// Track registers a subprocess. Must be called after cmd.Start() succeeds,
// when cmd.Process is available.
func (r *ProcessRegistry) Track(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[cmd.Process.Pid] = cmd
}

// Untrack removes a subprocess. Should be called once the process has been
// reaped.
func (r *ProcessRegistry) Untrack(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.procs, cmd.Process.Pid)
}

// Count returns the number of currently tracked processes.
func (r *ProcessRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// KillAll force-kills every tracked process group with no grace period and
// clears the registry. This is the signal-driven abort path: correctness
// under signal delivery trumps any remaining bookkeeping.
func (r *ProcessRegistry) KillAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for pid, cmd := range r.procs {
		if err := signalGroup(cmd, syscall.SIGKILL); err != nil {
			errs = append(errs, fmt.Errorf("kill process group %d: %w", pid, err))
		}
	}
	r.procs = make(map[int]*exec.Cmd)

	if len(errs) > 0 {
		return fmt.Errorf("errors killing process groups: %v", errs)
	}
	return nil
}

// TerminateAll is the graceful variant used on normal completion: every
// tracked group gets SIGTERM, then up to grace to exit before SIGKILL.
// Processes that exit during the grace window are expected to be untracked
// by their owning Runner.
func (r *ProcessRegistry) TerminateAll(grace time.Duration) {
	r.mu.Lock()
	cmds := make([]*exec.Cmd, 0, len(r.procs))
	for _, cmd := range r.procs {
		cmds = append(cmds, cmd)
	}
	r.mu.Unlock()

	if len(cmds) == 0 {
		return
	}

	for _, cmd := range cmds {
		_ = signalGroup(cmd, syscall.SIGTERM)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) && r.Count() > 0 {
		time.Sleep(50 * time.Millisecond)
	}

	// Whatever survived the grace window gets no further chances. ESRCH
	// from already-gone groups is ignored.
	for _, cmd := range cmds {
		_ = signalGroup(cmd, syscall.SIGKILL)
	}
}
