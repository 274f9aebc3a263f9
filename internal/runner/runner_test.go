package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestRunner() (*Runner, *ProcessRegistry) {
	reg := NewProcessRegistry()
	return New(reg, zerolog.Nop()), reg
}

// TestRun_Success verifies a clean exit produces a successful result and a
// log containing the header and the streamed output.
func TestRun_Success(t *testing.T) {
	r, reg := newTestRunner()
	logPath := filepath.Join(t.TempDir(), "container.log")

	res, err := r.Run(context.Background(), "echo hello; echo world", logPath, 10*time.Second)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Success || res.ExitCode != 0 {
		t.Errorf("Expected success with exit code 0, got success=%v code=%d", res.Success, res.ExitCode)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Reading log: %v", err)
	}
	log := string(data)
	if !strings.Contains(log, "running: echo hello") {
		t.Errorf("Log missing header line, got:\n%s", log)
	}
	if !strings.Contains(log, "hello\n") || !strings.Contains(log, "world\n") {
		t.Errorf("Log missing streamed output, got:\n%s", log)
	}

	if reg.Count() != 0 {
		t.Errorf("Process still tracked after Run returned: count=%d", reg.Count())
	}
}

// TestRun_OversizedLine verifies a single output line far larger than any
// internal buffer streams through to the log instead of failing the run.
func TestRun_OversizedLine(t *testing.T) {
	r, reg := newTestRunner()
	logPath := filepath.Join(t.TempDir(), "container.log")

	// One 2MB line with no intermediate newline, then a clean exit.
	cmd := "head -c 2097152 /dev/zero | tr '\\0' a; echo"
	res, err := r.Run(context.Background(), cmd, logPath, 30*time.Second)
	if err != nil {
		t.Fatalf("Run failed on long line: %v", err)
	}
	if !res.Success {
		t.Errorf("Expected success, got exit code %d", res.ExitCode)
	}

	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatalf("Stat log: %v", err)
	}
	if info.Size() < 2*1024*1024 {
		t.Errorf("Log holds %d bytes, expected the full 2MB line", info.Size())
	}
	if reg.Count() != 0 {
		t.Errorf("Process still tracked after Run returned: count=%d", reg.Count())
	}
}

// TestRun_NonZeroExit verifies a failing command is a valid (non-error)
// outcome with its exit code preserved.
func TestRun_NonZeroExit(t *testing.T) {
	r, _ := newTestRunner()
	logPath := filepath.Join(t.TempDir(), "container.log")

	res, err := r.Run(context.Background(), "exit 3", logPath, 10*time.Second)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Success {
		t.Error("Expected Success=false for exit 3")
	}
	if res.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", res.ExitCode)
	}
}

// TestRun_Stderr verifies stderr is merged into the same log stream.
func TestRun_Stderr(t *testing.T) {
	r, _ := newTestRunner()
	logPath := filepath.Join(t.TempDir(), "container.log")

	if _, err := r.Run(context.Background(), "echo oops >&2", logPath, 10*time.Second); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, _ := os.ReadFile(logPath)
	if !strings.Contains(string(data), "oops\n") {
		t.Errorf("Log missing stderr output, got:\n%s", data)
	}
}

// TestRun_Timeout verifies the timeout kills the process group, appends the
// TIMEOUT marker, and returns ErrTimeout.
func TestRun_Timeout(t *testing.T) {
	r, reg := newTestRunner()
	logPath := filepath.Join(t.TempDir(), "container.log")

	start := time.Now()
	_, err := r.Run(context.Background(), "echo started; sleep 30", logPath, 1*time.Second)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	// 1s budget + up to 3s SIGTERM grace; sleep dies on SIGTERM immediately.
	if elapsed > 5*time.Second {
		t.Errorf("Timeout took too long: %v", elapsed)
	}

	data, _ := os.ReadFile(logPath)
	log := string(data)
	if !strings.Contains(log, "started\n") {
		t.Errorf("Output before the timeout was not streamed, got:\n%s", log)
	}
	if !strings.Contains(log, "TIMEOUT\n") {
		t.Errorf("Log missing TIMEOUT marker, got:\n%s", log)
	}

	if reg.Count() != 0 {
		t.Errorf("Process still tracked after timeout: count=%d", reg.Count())
	}
}

// TestRun_TimeoutKillsDescendants verifies that the whole process group dies
// on timeout, including children spawned by the command.
func TestRun_TimeoutKillsDescendants(t *testing.T) {
	if _, err := exec.LookPath("pgrep"); err != nil {
		t.Skip("pgrep not available")
	}

	r, _ := newTestRunner()
	logPath := filepath.Join(t.TempDir(), "container.log")

	marker := fmt.Sprintf("benchrunner-test-%d", time.Now().UnixNano())
	command := fmt.Sprintf("sleep 30 & sleep 30 # %s", marker)

	_, err := r.Run(context.Background(), command, logPath, 1*time.Second)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}

	// Give the kill a moment to settle, then look for survivors.
	time.Sleep(500 * time.Millisecond)
	out, _ := exec.Command("pgrep", "-f", marker).Output()
	if len(strings.TrimSpace(string(out))) > 0 {
		t.Errorf("Descendant processes survived the group kill: pids %s", out)
	}
}

// TestRun_SpawnFailure verifies a command that cannot start is reported as a
// spawn error with an ERROR marker, never reaching the kill paths.
func TestRun_SpawnFailure(t *testing.T) {
	r, reg := newTestRunner()
	// Unopenable log path forces the earliest failure mode.
	_, err := r.Run(context.Background(), "echo hi", filepath.Join(t.TempDir(), "missing", "container.log"), time.Second)
	if err == nil {
		t.Fatal("Expected error for unwritable log path")
	}

	// A command that fails inside the shell is a normal non-zero exit, but a
	// missing shell-level binary still produces a log marker.
	logPath := filepath.Join(t.TempDir(), "container.log")
	res, err := r.Run(context.Background(), "definitely-not-a-command-12345", logPath, 5*time.Second)
	if err != nil {
		t.Fatalf("sh should run and exit non-zero, got error: %v", err)
	}
	if res.Success {
		t.Error("Expected failure exit code for missing command")
	}

	if reg.Count() != 0 {
		t.Errorf("Registry not empty: count=%d", reg.Count())
	}
}

// TestRun_ContextCancellation verifies cancelling the run context kills the
// process and surfaces the context error.
func TestRun_ContextCancellation(t *testing.T) {
	r, _ := newTestRunner()
	logPath := filepath.Join(t.TempDir(), "container.log")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.Run(ctx, "sleep 30", logPath, 60*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("Cancellation took too long: %v", time.Since(start))
	}

	data, _ := os.ReadFile(logPath)
	if !strings.Contains(string(data), "ERROR: context canceled") {
		t.Errorf("Log missing cancellation marker, got:\n%s", data)
	}
}
