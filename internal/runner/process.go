package runner

import (
	"errors"
	"os/exec"
	"syscall"
)

// newCommand creates an exec.Cmd running the given shell command with process
// group isolation. The Setpgid: true flag puts the child (and every process it
// spawns) into a fresh group keyed by the child's pid, so a single signal to
// the negative pid reaches the entire subprocess tree.
func newCommand(command string) *exec.Cmd {
	cmd := exec.Command("sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true, // Create new process group for signal propagation
	}
	return cmd
}

// signalGroup delivers sig to the whole process group of a started command.
// Signaling -pid instead of pid is what prevents orphaned grandchildren.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return errors.New("process not started")
	}
	return syscall.Kill(-cmd.Process.Pid, sig)
}
