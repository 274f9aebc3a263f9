package filter

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/aristath/benchrunner/internal/scheduler"
	"github.com/aristath/benchrunner/internal/status"
)

// Decision is one classifier's verdict about a task's output directory.
type Decision int

const (
	DecisionUnknown Decision = iota // cannot tell; defer to the next classifier
	DecisionRun                     // task needs (re-)execution
	DecisionDone                    // prior work already covers this task
)

// Classifier inspects a task's output directory and decides whether prior
// work already covers it. Classifiers are tried in priority order; the
// first non-Unknown decision wins.
type Classifier interface {
	Name() string
	Classify(taskDir string) Decision
}

// statusMarkerClassifier is the preferred source: a parseable status marker
// is definitive either way. A task is done when a prior run timed out or
// exhausted its step budget, or when all three stages completed.
type statusMarkerClassifier struct{}

func (statusMarkerClassifier) Name() string { return "status-marker" }

func (statusMarkerClassifier) Classify(taskDir string) Decision {
	m, err := status.Load(taskDir)
	if err != nil {
		return DecisionUnknown
	}
	if m.Terminal() || m.Completed() {
		return DecisionDone
	}
	return DecisionRun
}

// maxTurnsMarker is the line legacy runs wrote to the container log when the
// agent exhausted its turn budget.
const maxTurnsMarker = "Reached max turns"

// legacyLogClassifier covers runs that predate the status marker: a log
// recording an exhausted turn budget means the task finished and must not
// be retried.
type legacyLogClassifier struct{}

func (legacyLogClassifier) Name() string { return "legacy-log" }

func (legacyLogClassifier) Classify(taskDir string) Decision {
	data, err := os.ReadFile(filepath.Join(taskDir, scheduler.LogFileName))
	if err != nil {
		return DecisionUnknown
	}
	if bytes.Contains(data, []byte(maxTurnsMarker)) {
		return DecisionDone
	}
	return DecisionUnknown
}

// trajFileName is the trajectory artifact legacy runs wrote next to the
// evaluation result.
const trajFileName = "traj.json"

// legacyArtifactClassifier is the last resort for marker-less runs: an
// evaluation result paired with a trajectory whose status is "success"
// means the run went end to end.
type legacyArtifactClassifier struct{}

func (legacyArtifactClassifier) Name() string { return "legacy-artifacts" }

func (legacyArtifactClassifier) Classify(taskDir string) Decision {
	if _, err := os.Stat(filepath.Join(taskDir, scheduler.EvalFileName)); err != nil {
		return DecisionUnknown
	}

	data, err := os.ReadFile(filepath.Join(taskDir, trajFileName))
	if err != nil {
		return DecisionUnknown
	}
	var traj struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &traj); err != nil {
		return DecisionUnknown
	}
	if traj.Status == "success" {
		return DecisionDone
	}
	return DecisionUnknown
}
