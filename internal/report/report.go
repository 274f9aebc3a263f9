// Package report classifies per-task evaluation artifacts and persists the
// end-of-run execution report.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/benchrunner/internal/scheduler"
)

// Outcome classifies a single evaluation artifact.
type Outcome int

const (
	OutcomeNotExecuted Outcome = iota
	OutcomePassed
	OutcomeFailed
	OutcomeError
)

// ClassifyArtifact inspects one task's evaluation result file. A missing
// file means the task never ran end to end; an unreadable or malformed file,
// or one without a boolean "pass" field, is an artifact error.
func ClassifyArtifact(path string) Outcome {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return OutcomeNotExecuted
		}
		return OutcomeError
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return OutcomeError
	}

	pass, ok := fields["pass"].(bool)
	if !ok {
		return OutcomeError
	}
	if pass {
		return OutcomePassed
	}
	return OutcomeFailed
}

// Summary buckets every task of the batch by the state of its evaluation
// artifact.
type Summary struct {
	Total       int
	NotExecuted []string
	Passed      []string
	Failed      []string
	Error       []string
}

// Analyze scans each task's output directory and buckets it by artifact
// state.
func Analyze(tasks []scheduler.Task) *Summary {
	s := &Summary{Total: len(tasks)}
	for _, task := range tasks {
		switch ClassifyArtifact(filepath.Join(task.OutDir, scheduler.EvalFileName)) {
		case OutcomePassed:
			s.Passed = append(s.Passed, task.ID)
		case OutcomeFailed:
			s.Failed = append(s.Failed, task.ID)
		case OutcomeError:
			s.Error = append(s.Error, task.ID)
		default:
			s.NotExecuted = append(s.NotExecuted, task.ID)
		}
	}
	return s
}

// PassRateAll is passed/total. Not-executed tasks drag this down, which is
// exactly why PassRateExecuted exists alongside it.
func (s *Summary) PassRateAll() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(len(s.Passed)) / float64(s.Total)
}

// PassRateExecuted is passed/(passed+failed): of the tasks that actually
// produced a verdict, how many passed.
func (s *Summary) PassRateExecuted() float64 {
	executed := len(s.Passed) + len(s.Failed)
	if executed == 0 {
		return 0
	}
	return float64(len(s.Passed)) / float64(executed)
}

// maxListed caps how many task ids of each bucket are echoed into the
// report file; the buckets can hold hundreds of entries.
const maxListed = 50

// ExecutionReport is the persisted JSON report.
type ExecutionReport struct {
	TasksFolder string    `json:"tasks_folder"`
	Model       string    `json:"model"`
	Provider    string    `json:"provider"`
	Tag         string    `json:"tag"`
	Workers     int       `json:"workers"`
	TimeoutSecs int       `json:"timeout_seconds"`
	GeneratedAt time.Time `json:"generated_at"`

	Total            int     `json:"total"`
	PassedCount      int     `json:"passed_count"`
	FailedCount      int     `json:"failed_count"`
	NotExecutedCount int     `json:"not_executed_count"`
	ErrorCount       int     `json:"error_count"`
	PassRateAll      float64 `json:"pass_rate_all"`
	PassRateExecuted float64 `json:"pass_rate_executed"`

	Passed      []string `json:"passed"`
	Failed      []string `json:"failed"`
	NotExecuted []string `json:"not_executed"`
	Error       []string `json:"error"`
}

// WriteReport persists the execution report under dir and returns its path.
// The filename embeds folder, model, and tag so successive runs never
// clobber each other.
func WriteReport(dir string, cfg scheduler.Config, sum *Summary) (string, error) {
	rep := ExecutionReport{
		TasksFolder:      cfg.TasksFolder,
		Model:            cfg.Model,
		Provider:         cfg.Provider,
		Tag:              cfg.Tag,
		Workers:          cfg.Workers,
		TimeoutSecs:      int(cfg.Timeout.Seconds()),
		GeneratedAt:      time.Now(),
		Total:            sum.Total,
		PassedCount:      len(sum.Passed),
		FailedCount:      len(sum.Failed),
		NotExecutedCount: len(sum.NotExecuted),
		ErrorCount:       len(sum.Error),
		PassRateAll:      sum.PassRateAll(),
		PassRateExecuted: sum.PassRateExecuted(),
		Passed:           truncate(sum.Passed),
		Failed:           truncate(sum.Failed),
		NotExecuted:      truncate(sum.NotExecuted),
		Error:            truncate(sum.Error),
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir %s: %w", dir, err)
	}

	name := fmt.Sprintf("execution_report_%s_%s_%s.json",
		filepath.Base(cfg.TasksFolder), cfg.Model, cfg.Tag)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	return path, nil
}

func truncate(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	if len(ids) > maxListed {
		return ids[:maxListed]
	}
	return ids
}
