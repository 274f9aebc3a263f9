// Package scheduler runs a batch of independent benchmark tasks under
// bounded concurrency while holding tasks that share an external resource
// to mutual exclusion.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/aristath/benchrunner/internal/events"
	"github.com/aristath/benchrunner/internal/runner"
	"github.com/aristath/benchrunner/internal/status"
)

// LogFileName is the streamed subprocess log kept in each task's output
// directory.
const LogFileName = "container.log"

// EvalFileName is the evaluation artifact the task command must produce.
const EvalFileName = "eval_res.json"

// Config carries the run-wide parameters shared by every task command.
type Config struct {
	TasksFolder      string
	Tag              string
	Model            string
	Provider         string
	MaxStep          int
	Workers          int
	Timeout          time.Duration
	DumpRoot         string
	EvalConfig       string
	ImageName        string
	ProgressInterval time.Duration

	// CommandBuilder overrides the task command assembly (for testing).
	CommandBuilder func(task Task) string
}

// Scheduler owns the admission semaphore, the conflict lock table, and the
// live counters for one batch run. A single Scheduler drives the whole
// batch; RunSingleTask is designed to be called concurrently for all tasks
// at once.
type Scheduler struct {
	cfg      Config
	locks    *ConflictLockTable
	sem      *semaphore.Weighted
	registry *runner.ProcessRegistry
	runner   *runner.Runner
	breaker  *spawnBreaker
	bus      *events.Bus
	log      zerolog.Logger

	mu      sync.Mutex
	stats   Stats
	waiting map[string]struct{}
	records []RunRecord
	start   time.Time
}

// New creates a Scheduler. groups is the static conflict-group
// configuration; bus may be nil when no consumer cares about events.
func New(cfg Config, groups [][]string, registry *runner.ProcessRegistry, bus *events.Bus, log zerolog.Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1800 * time.Second
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = time.Minute
	}

	slog := log.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		cfg:      cfg,
		locks:    NewConflictLockTable(groups),
		sem:      semaphore.NewWeighted(int64(cfg.Workers)),
		registry: registry,
		runner:   runner.New(registry, log),
		breaker:  newSpawnBreaker(slog),
		bus:      bus,
		log:      slog,
		waiting:  make(map[string]struct{}),
	}
}

// Registry exposes the live-process registry so the signal supervisor can
// reach every spawned process group.
func (s *Scheduler) Registry() *runner.ProcessRegistry {
	return s.registry
}

// RunAll launches every task as its own unit of work immediately; actual
// subprocess parallelism is capped by the admission semaphore, not by how
// many units exist. It blocks until all tasks have finished or the context
// is cancelled, and returns the records of every task that actually ran.
func (s *Scheduler) RunAll(ctx context.Context, tasks []Task) []RunRecord {
	s.mu.Lock()
	s.stats.Total = len(tasks)
	s.start = time.Now()
	s.mu.Unlock()

	stopProgress := s.startProgress(ctx)
	defer stopProgress()

	g := new(errgroup.Group)
	for _, task := range tasks {
		t := task
		g.Go(func() error {
			s.RunSingleTask(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunRecord, len(s.records))
	copy(out, s.records)
	return out
}

// RunSingleTask resolves conflict locking, runs the task's subprocess under
// a worker slot, and classifies the outcome. Timeouts and execution errors
// are converted into the returned record, never propagated: one task's
// failure must not abort the batch. The return is nil only when the run was
// cancelled, whether before the subprocess started or while it was running;
// such tasks are abandoned, not recorded.
func (s *Scheduler) RunSingleTask(ctx context.Context, task Task) *RunRecord {
	lock := s.locks.LockFor(task.ID)
	lockHeld := false
	if lock != nil {
		if !lock.TryAcquire() {
			// The lock is busy: wait on the lock alone. Reserving a worker
			// slot here would let lock contention starve unrelated tasks.
			s.setWaiting(task.ID, true)
			err := lock.Acquire(ctx)
			s.setWaiting(task.ID, false)
			if err != nil {
				return nil
			}
		}
		lockHeld = true
		defer lock.Release()
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil
	}
	defer s.sem.Release(1)

	s.addRunning(1)
	defer s.addRunning(-1)

	rec := s.executeTask(ctx, task, lockHeld)
	if rec == nil {
		return nil
	}

	s.recordOutcome(*rec)
	return rec
}

// executeTask performs the work done while holding a worker slot: artifact
// archival, the subprocess run, and outcome classification.
func (s *Scheduler) executeTask(ctx context.Context, task Task, lockHeld bool) *RunRecord {
	rec := RunRecord{
		TaskID:   task.ID,
		LogPath:  filepath.Join(task.OutDir, LogFileName),
		EvalPath: filepath.Join(task.OutDir, EvalFileName),
		LockHeld: lockHeld,
	}

	if err := os.MkdirAll(task.OutDir, 0o755); err != nil {
		rec.Status = StatusFailed
		rec.Err = fmt.Sprintf("create output dir: %v", err)
		return &rec
	}
	if err := archiveLegacyResults(task.OutDir); err != nil {
		s.log.Warn().Err(err).Str("task", task.ID).Msg("could not archive prior results")
	}

	s.publish(events.TopicTask, events.TaskStartedEvent{
		ID:        task.ID,
		LockHeld:  lockHeld,
		Timestamp: time.Now(),
	})
	s.log.Debug().Str("task", task.ID).Bool("lock", lockHeld).Msg("task starting")

	started := time.Now()
	res, err := s.breaker.execute(ctx, func() (*runner.RunResult, error) {
		return s.runner.Run(ctx, s.buildCommand(task), rec.LogPath, s.cfg.Timeout)
	})
	rec.Elapsed = time.Since(started)

	switch {
	case err == nil && res.Success:
		rec.Status = StatusSuccess

	case err == nil:
		rec.Status = StatusFailed
		rec.Err = fmt.Sprintf("exit code %d", res.ExitCode)

	case errors.Is(err, runner.ErrTimeout):
		rec.Status = StatusTimeout
		rec.Err = err.Error()
		// Best effort: a marker write failure must not mask the timeout.
		if merr := status.MarkRunningTimeout(task.OutDir); merr != nil {
			s.log.Warn().Err(merr).Str("task", task.ID).Msg("could not persist timeout status marker")
		}

	case errors.Is(err, context.Canceled):
		// Killed by run-wide cancellation mid-flight. An interrupted task
		// has no outcome: it is abandoned, not recorded.
		return nil

	default:
		rec.Status = StatusFailed
		rec.Err = err.Error()
	}

	return &rec
}

// recordOutcome updates counters, archives the record, and publishes the
// finish event. Counter updates happen under the mutex: task completions
// land on arbitrary OS threads.
func (s *Scheduler) recordOutcome(rec RunRecord) {
	verdict := ""
	var eval evalResult
	if rec.Status == StatusSuccess {
		// Read the artifact before taking the mutex; counter updates must
		// stay free of filesystem waits.
		eval = evalVerdict(rec.EvalPath)
	}

	s.mu.Lock()
	switch rec.Status {
	case StatusSuccess:
		s.stats.Completed++
		switch eval {
		case verdictPass:
			s.stats.Correct++
			verdict = "correct"
		case verdictFail:
			s.stats.Incorrect++
			verdict = "incorrect"
		default:
			s.stats.Unknown++
			verdict = "unknown"
		}
	case StatusTimeout:
		s.stats.Timeout++
	case StatusFailed:
		s.stats.Failed++
	}
	s.records = append(s.records, rec)
	s.mu.Unlock()

	s.publish(events.TopicTask, events.TaskFinishedEvent{
		ID:        rec.TaskID,
		Status:    string(rec.Status),
		Elapsed:   rec.Elapsed,
		LogPath:   rec.LogPath,
		LockHeld:  rec.LockHeld,
		Err:       rec.Err,
		Timestamp: time.Now(),
	})

	ev := s.log.Info().
		Str("task", rec.TaskID).
		Str("status", string(rec.Status)).
		Dur("elapsed", rec.Elapsed)
	if verdict != "" {
		ev = ev.Str("verdict", verdict)
	}
	ev.Msg("task finished")
}

// buildCommand assembles the single shell command that preprocesses, runs,
// and evaluates one task. The command is opaque to the scheduler; its only
// contract is the artifacts it leaves in the task's output directory.
func (s *Scheduler) buildCommand(task Task) string {
	if s.cfg.CommandBuilder != nil {
		return s.cfg.CommandBuilder(task)
	}
	return fmt.Sprintf(
		"python -m harness.run_task --task_dir %s --tag %s --model %s --provider %s --maxstep %d --eval_config %s --dump_path %s --image %s",
		task.Dir, s.cfg.Tag, s.cfg.Model, s.cfg.Provider, s.cfg.MaxStep,
		s.cfg.EvalConfig, s.cfg.DumpRoot, s.cfg.ImageName,
	)
}

// Snapshot returns the current counters.
func (s *Scheduler) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.WaitingOnLock = len(s.waiting)
	return st
}

// WaitingOnLock lists the ids of tasks currently blocked on a busy conflict
// lock (and, by the scheduling contract, holding no worker slot).
func (s *Scheduler) WaitingOnLock() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.waiting))
	for id := range s.waiting {
		ids = append(ids, id)
	}
	return ids
}

func (s *Scheduler) setWaiting(taskID string, waiting bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if waiting {
		s.waiting[taskID] = struct{}{}
	} else {
		delete(s.waiting, taskID)
	}
}

func (s *Scheduler) addRunning(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Running += delta
}

func (s *Scheduler) publish(topic string, ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(topic, ev)
	}
}

type evalResult int

const (
	verdictUnknown evalResult = iota
	verdictPass
	verdictFail
)

// evalVerdict reads a task's evaluation artifact. Anything short of a
// boolean "pass" field is unknown-but-finished; the final report deals with
// the finer distinctions.
func evalVerdict(path string) evalResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return verdictUnknown
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return verdictUnknown
	}
	pass, ok := fields["pass"].(bool)
	if !ok {
		return verdictUnknown
	}
	if pass {
		return verdictPass
	}
	return verdictFail
}
