package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// ErrTimeout reports that a task subprocess exceeded its wall-clock budget
// and its process group was killed.
var ErrTimeout = errors.New("task timed out")

const (
	// exitGrace is how long to keep waiting for the exit code after the
	// output stream reaches EOF.
	exitGrace = 5 * time.Second
	// killGrace is how long a process group gets to react to SIGTERM
	// before escalation to SIGKILL.
	killGrace = 3 * time.Second
)

// RunResult is the outcome of a subprocess run that terminated on its own.
type RunResult struct {
	Success  bool // exit code was zero
	ExitCode int
	LogPath  string
}

// Runner spawns task commands in their own process groups and streams their
// combined output into per-task log files.
type Runner struct {
	registry *ProcessRegistry
	log      zerolog.Logger
}

// New creates a Runner. Every spawned process is registered with the given
// registry for the duration of its run so external cleanup code can always
// find and kill it.
func New(registry *ProcessRegistry, log zerolog.Logger) *Runner {
	return &Runner{
		registry: registry,
		log:      log.With().Str("component", "runner").Logger(),
	}
}

// Run executes command under `sh -c` with a wall-clock timeout.
//
// The child's stdout and stderr share one pipe whose read side is drained
// line by line into the log file as output arrives, so an external tail is
// always current even on a mid-run crash. The run races stream EOF against
// the timeout; after EOF the process gets a short grace to deliver its exit
// code. On timeout the whole process group is terminated gracefully, then
// forcibly, a TIMEOUT marker line is appended to the log, and ErrTimeout is
// returned. Spawn failures never reach the kill paths: the process handle is
// only used after a confirmed successful start.
func (r *Runner) Run(ctx context.Context, command, logPath string, timeout time.Duration) (*RunResult, error) {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", logPath, err)
	}
	defer logFile.Close()

	fmt.Fprintf(logFile, "[%s] running: %s\n", time.Now().Format(time.RFC3339), command)

	// A plain os.Pipe (rather than cmd.StdoutPipe) keeps pipe lifetime out
	// of cmd.Wait's hands, so waiting and draining can proceed concurrently.
	pr, pw, err := os.Pipe()
	if err != nil {
		appendLine(logFile, "ERROR: "+err.Error())
		return nil, fmt.Errorf("create output pipe: %w", err)
	}
	defer pr.Close()

	cmd := newCommand(command)
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		appendLine(logFile, "ERROR: "+err.Error())
		return nil, fmt.Errorf("spawn command: %w", err)
	}
	// The parent's write end must be closed so that EOF arrives once the
	// child tree has exited and released its copies.
	pw.Close()

	r.registry.Track(cmd)
	defer r.registry.Untrack(cmd)

	streamDone := make(chan error, 1)
	go func() {
		// ReadSlice rather than a Scanner: a child may emit arbitrarily
		// long lines (agent trajectory dumps), which must stream through
		// in chunks instead of being treated as a stream error.
		br := bufio.NewReaderSize(pr, 64*1024)
		for {
			chunk, rerr := br.ReadSlice('\n')
			if len(chunk) > 0 {
				if _, werr := logFile.Write(chunk); werr != nil {
					streamDone <- werr
					return
				}
			}
			switch rerr {
			case nil, bufio.ErrBufferFull:
			case io.EOF:
				streamDone <- nil
				return
			default:
				streamDone <- rerr
				return
			}
		}
	}()

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case serr := <-streamDone:
		if serr != nil {
			r.terminate(cmd, waitDone)
			appendLine(logFile, "ERROR: "+serr.Error())
			return nil, fmt.Errorf("stream output: %w", serr)
		}
		// Output closed within budget. Allow a short grace for the exit
		// code: descendants may briefly outlive the direct child.
		select {
		case werr := <-waitDone:
			return finishRun(logFile, logPath, werr)
		case <-time.After(exitGrace):
			r.terminate(cmd, waitDone)
			appendLine(logFile, "ERROR: process did not exit after closing its output")
			return nil, errors.New("process did not exit after closing its output")
		}

	case <-timer.C:
		r.terminate(cmd, waitDone)
		appendLine(logFile, "TIMEOUT")
		return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)

	case <-ctx.Done():
		r.terminate(cmd, waitDone)
		appendLine(logFile, "ERROR: "+ctx.Err().Error())
		return nil, ctx.Err()
	}
}

// terminate performs the two-phase kill of a started command's process
// group: SIGTERM, a bounded grace window, then SIGKILL. It always reaps the
// process before returning.
func (r *Runner) terminate(cmd *exec.Cmd, waitDone <-chan error) {
	_ = signalGroup(cmd, syscall.SIGTERM)

	select {
	case <-waitDone:
		return
	case <-time.After(killGrace):
	}

	r.log.Warn().Int("pid", cmd.Process.Pid).Msg("process group survived SIGTERM, sending SIGKILL")
	_ = signalGroup(cmd, syscall.SIGKILL)
	<-waitDone
}

// finishRun classifies a reaped process. A non-zero exit code is a valid
// outcome, not an error; anything else returned by Wait is.
func finishRun(logFile *os.File, logPath string, waitErr error) (*RunResult, error) {
	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			appendLine(logFile, "ERROR: "+waitErr.Error())
			return nil, fmt.Errorf("wait for command: %w", waitErr)
		}
		exitCode = exitErr.ExitCode()
	}
	return &RunResult{
		Success:  exitCode == 0,
		ExitCode: exitCode,
		LogPath:  logPath,
	}, nil
}

func appendLine(f *os.File, line string) {
	fmt.Fprintln(f, line)
}
