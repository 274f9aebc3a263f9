package runner

import (
	"testing"
	"time"
)

// TestProcessRegistry_TrackUntrack verifies the basic bookkeeping cycle.
func TestProcessRegistry_TrackUntrack(t *testing.T) {
	reg := NewProcessRegistry()

	cmd := newCommand("sleep 5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	reg.Track(cmd)
	if reg.Count() != 1 {
		t.Errorf("Expected 1 tracked process, got %d", reg.Count())
	}

	reg.Untrack(cmd)
	if reg.Count() != 0 {
		t.Errorf("Expected 0 tracked processes, got %d", reg.Count())
	}
}

// TestProcessRegistry_TrackUnstarted verifies tracking an unstarted command
// is a harmless no-op.
func TestProcessRegistry_TrackUnstarted(t *testing.T) {
	reg := NewProcessRegistry()
	reg.Track(newCommand("true"))
	if reg.Count() != 0 {
		t.Errorf("Unstarted command must not be tracked, count=%d", reg.Count())
	}
}

// TestProcessRegistry_KillAll verifies the force-kill path terminates a
// tracked process group and clears the registry.
func TestProcessRegistry_KillAll(t *testing.T) {
	reg := NewProcessRegistry()

	cmd := newCommand("sleep 30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	reg.Track(cmd)

	if err := reg.KillAll(); err != nil {
		t.Fatalf("KillAll failed: %v", err)
	}
	if reg.Count() != 0 {
		t.Errorf("Registry not cleared after KillAll, count=%d", reg.Count())
	}

	// The process must be reapable promptly after SIGKILL.
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Process survived KillAll")
	}
}

// TestProcessRegistry_TerminateAll verifies the graceful path falls through
// to SIGKILL for processes that outlive the grace window.
func TestProcessRegistry_TerminateAll(t *testing.T) {
	reg := NewProcessRegistry()

	// Ignore SIGTERM so only the SIGKILL escalation can end it.
	cmd := newCommand("trap '' TERM; while :; do sleep 0.1; done")
	if err := cmd.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	reg.Track(cmd)

	start := time.Now()
	reg.TerminateAll(300 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Process survived TerminateAll escalation")
	}

	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("TerminateAll took too long: %v", elapsed)
	}
}
