// Package cli carries the benchrunner command-line surface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/aristath/benchrunner/internal/config"
)

var (
	flagTasksFolder string
	flagTag         string
	flagModel       string
	flagProvider    string
	flagMaxStep     int
	flagWorkers     int
	flagTimeout     int
	flagDumpPath    string
	flagTaskList    string
	flagEvalConfig  string
	flagImageName   string
	flagLogLevel    string
)

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "benchrunner",
		Short: "Concurrent agent-benchmark task harness",
		Long: `benchrunner runs a folder of benchmark tasks as containerized
subprocesses under bounded concurrency, serializing tasks that share an
external resource, enforcing per-task timeouts, and skipping work already
completed by a previous run.

Individual task failures never fail the run: the process exits 0 after any
completed batch and writes an execution report with per-bucket pass rates.`,
		RunE:         runBatch,
		SilenceUsage: true,
	}

	root.Flags().StringVar(&flagTasksFolder, "tasks_folder", "", "folder with one subdirectory per task (required)")
	root.Flags().StringVar(&flagTag, "tag", "", "run identifier (default: random short id)")
	root.Flags().StringVar(&flagModel, "model_short_name", "", "model short name passed through to the task command")
	root.Flags().StringVar(&flagProvider, "provider", "", "provider passed through to the task command")
	root.Flags().IntVar(&flagMaxStep, "maxstep", 0, "step budget passed through to the task command")
	root.Flags().IntVar(&flagWorkers, "workers", config.DefaultWorkers, "maximum concurrently executing task subprocesses")
	root.Flags().IntVar(&flagTimeout, "timeout", config.DefaultTimeoutSeconds, "per-task timeout in seconds")
	root.Flags().StringVar(&flagDumpPath, "dump_path", config.DefaultDumpPath, "root directory for task outputs")
	root.Flags().StringVar(&flagTaskList, "task_list", "", "optional newline-delimited task filter file (# comments ignored)")
	root.Flags().StringVar(&flagEvalConfig, "eval_config", "", "evaluation config path passed through to the task command")
	root.Flags().StringVar(&flagImageName, "image_name", "", "container image passed through to the task command")
	root.Flags().StringVar(&flagLogLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	_ = root.MarkFlagRequired("tasks_folder")

	return root
}
