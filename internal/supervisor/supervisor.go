// Package supervisor owns the run-wide context and the cleanup performed
// when the harness is told to stop, from the outside or by finishing.
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/benchrunner/internal/runner"
)

// shutdownGrace is how long surviving process groups get to exit after
// SIGTERM on the graceful path.
const shutdownGrace = 3 * time.Second

// Supervisor reacts to interrupt/termination signals with a synchronous
// force-kill of every tracked process group followed by an immediate exit.
// On normal completion the same cleanup runs asynchronously with a grace
// period instead.
type Supervisor struct {
	registry *runner.ProcessRegistry
	log      zerolog.Logger
	signals  chan os.Signal
	exit     func(int)
	grace    time.Duration
}

// New installs handlers for SIGINT and SIGTERM.
func New(registry *runner.ProcessRegistry, log zerolog.Logger) *Supervisor {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return newSupervisor(registry, log, ch, os.Exit)
}

// newSupervisor is the seam for tests: the signal source and exit function
// are injected so the emergency path can run without OS signal delivery.
func newSupervisor(registry *runner.ProcessRegistry, log zerolog.Logger, signals chan os.Signal, exit func(int)) *Supervisor {
	return &Supervisor{
		registry: registry,
		log:      log.With().Str("component", "supervisor").Logger(),
		signals:  signals,
		exit:     exit,
		grace:    shutdownGrace,
	}
}

// Context derives the run context. On the first signal it cancels the
// context, synchronously force-kills all tracked process groups, and
// terminates the program with exit code 1. No further work is attempted:
// correctness under signal delivery trumps remaining bookkeeping.
func (s *Supervisor) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		select {
		case sig := <-s.signals:
			s.log.Warn().Str("signal", sig.String()).Msg("Emergency cleanup")
			cancel()
			if err := s.registry.KillAll(); err != nil {
				s.log.Error().Err(err).Msg("emergency kill failed")
			}
			s.exit(1)
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// Shutdown runs the graceful cleanup used on normal completion or an
// escaped scheduler error: surviving process groups get SIGTERM and a short
// grace window before SIGKILL, off the caller's goroutine.
func (s *Supervisor) Shutdown() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.registry.TerminateAll(s.grace)
	}()
	return done
}

// Close stops signal delivery to this supervisor.
func (s *Supervisor) Close() {
	signal.Stop(s.signals)
}
