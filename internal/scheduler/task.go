package scheduler

import "time"

// RunStatus classifies how a task's execution ended.
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusTimeout RunStatus = "timeout"
	StatusFailed  RunStatus = "failed"
)

// Task is one unit of benchmark work, enumerated at startup and immutable
// for the run.
type Task struct {
	ID     string // "<folder>/<name>", e.g. "shopping/change_address"
	Name   string // trailing component of ID
	Dir    string // task definition directory under the tasks folder
	OutDir string // output directory under the dump root
}

// RunRecord is the immutable outcome of one task execution. It is created
// when the run terminates (normally, by timeout, or by error) and never
// mutated afterwards.
type RunRecord struct {
	TaskID   string
	Status   RunStatus
	Elapsed  time.Duration
	LogPath  string
	EvalPath string
	LockHeld bool
	Err      string
}

// Stats is a point-in-time snapshot of run progress. Completed counts
// only clean subprocess exits; correct/incorrect/unknown further classify
// them by their evaluation artifact.
type Stats struct {
	Total         int
	Completed     int
	Failed        int
	Timeout       int
	Correct       int
	Incorrect     int
	Unknown       int
	Running       int
	WaitingOnLock int
}
