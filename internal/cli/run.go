package cli

import (
	"context"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/benchrunner/internal/config"
	"github.com/aristath/benchrunner/internal/events"
	"github.com/aristath/benchrunner/internal/filter"
	"github.com/aristath/benchrunner/internal/history"
	"github.com/aristath/benchrunner/internal/logging"
	"github.com/aristath/benchrunner/internal/report"
	"github.com/aristath/benchrunner/internal/runner"
	"github.com/aristath/benchrunner/internal/scheduler"
	"github.com/aristath/benchrunner/internal/supervisor"
)

// runBatch is the whole batch lifecycle: enumerate, filter, schedule, run,
// report. It returns nil (exit 0) after any completed batch regardless of
// individual task outcomes; only startup errors and signals fail the
// process.
func runBatch(cmd *cobra.Command, args []string) error {
	log := logging.New(flagLogLevel)

	tag := flagTag
	if tag == "" {
		tag = uuid.NewString()[:8]
	}

	cfg := scheduler.Config{
		TasksFolder:      flagTasksFolder,
		Tag:              tag,
		Model:            flagModel,
		Provider:         flagProvider,
		MaxStep:          flagMaxStep,
		Workers:          flagWorkers,
		Timeout:          time.Duration(flagTimeout) * time.Second,
		DumpRoot:         flagDumpPath,
		EvalConfig:       flagEvalConfig,
		ImageName:        flagImageName,
		ProgressInterval: config.DefaultProgressInterval,
	}

	var nameFilter []string
	if flagTaskList != "" {
		var err error
		nameFilter, err = config.LoadTaskList(flagTaskList)
		if err != nil {
			return err
		}
	}

	allTasks, err := enumerateTasks(cfg.TasksFolder, cfg.DumpRoot, nameFilter)
	if err != nil {
		return err
	}

	groups, err := config.LoadConflictGroups(cfg.TasksFolder)
	if err != nil {
		return err
	}

	toRun, alreadyDone := filter.New(log).Partition(allTasks)
	// Shuffling spreads tasks of one conflict group across the batch so a
	// group does not form one long serial convoy at the front.
	rand.Shuffle(len(toRun), func(i, j int) {
		toRun[i], toRun[j] = toRun[j], toRun[i]
	})

	log.Info().
		Str("tag", tag).
		Int("total", len(allTasks)).
		Int("to_run", len(toRun)).
		Int("already_done", len(alreadyDone)).
		Int("conflict_groups", len(groups)).
		Int("workers", cfg.Workers).
		Msg("batch starting")

	registry := runner.NewProcessRegistry()
	sup := supervisor.New(registry, log)
	defer sup.Close()
	ctx, cancel := sup.Context(context.Background())
	defer cancel()

	bus := events.NewBus()

	store, err := history.Open(ctx, filepath.Join(cfg.DumpRoot, "history.db"))
	if err != nil {
		return err
	}
	defer store.Close()
	recorderDone := store.StartRecorder(ctx, bus, tag, log)

	sched := scheduler.New(cfg, groups, registry, bus, log)
	records := sched.RunAll(ctx, toRun)

	// Graceful cleanup of anything still tracked, then let the recorder
	// drain before the store closes.
	<-sup.Shutdown()
	bus.Close()
	<-recorderDone
	logHistory(ctx, store, tag, log)

	summary := report.Analyze(allTasks)
	reportPath, err := report.WriteReport(filepath.Join(cfg.DumpRoot, "results"), cfg, summary)
	if err != nil {
		log.Error().Err(err).Msg("could not write execution report")
	} else {
		log.Info().Str("path", reportPath).Msg("execution report written")
	}

	st := sched.Snapshot()
	log.Info().
		Int("ran", len(records)).
		Int("completed", st.Completed).
		Int("failed", st.Failed).
		Int("timeout", st.Timeout).
		Int("correct", st.Correct).
		Int("incorrect", st.Incorrect).
		Int("unknown", st.Unknown).
		Int("passed", len(summary.Passed)).
		Int("not_executed", len(summary.NotExecuted)).
		Float64("pass_rate_all", summary.PassRateAll()).
		Float64("pass_rate_executed", summary.PassRateExecuted()).
		Msg("batch finished")

	return nil
}

// logHistory reports how this run's archived records broke down by status,
// read back from the history store rather than the live counters.
func logHistory(ctx context.Context, store *history.Store, tag string, log zerolog.Logger) {
	counts, err := store.CountByStatus(ctx, tag)
	if err != nil {
		log.Warn().Err(err).Msg("could not read run history")
		return
	}
	ev := log.Info().Str("tag", tag)
	for status, n := range counts {
		ev = ev.Int(status, n)
	}
	ev.Msg("run records archived")
}
