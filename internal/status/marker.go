// Package status reads and writes the per-task status marker that lets
// interrupted batches resume without repeating finished work.
package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// FileName is the marker file kept in each task's output directory.
const FileName = "status.json"

// Stage states recorded by the preprocessing/run/evaluation collaborators.
const (
	StateRunning  = "running"
	StateDone     = "done"
	StateFail     = "fail"
	StateTimeout  = "timeout"
	StateMaxSteps = "max_steps_exceeded"
)

// Marker is the per-task progress record. Evaluation is schemaless because
// historical writers stored both "pass"/"fail" strings and raw booleans;
// completion checks only care whether a verdict is present at all.
type Marker struct {
	Preprocess string `json:"preprocess,omitempty"`
	Running    string `json:"running,omitempty"`
	Evaluation any    `json:"evaluation,omitempty"`
}

// Load reads the marker from a task output directory.
// Returns an error satisfying os.IsNotExist when no marker has been written.
func Load(dir string) (*Marker, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}

	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", FileName, err)
	}
	return &m, nil
}

// Save writes the marker via a temp file + rename so concurrent readers
// never observe a half-written marker.
func Save(dir string, m *Marker) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}

	tmp := filepath.Join(dir, FileName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, FileName)); err != nil {
		return fmt.Errorf("rename marker: %w", err)
	}
	return nil
}

// Completed reports whether every stage finished: preprocessing and the run
// are done and an evaluation verdict (of either legacy shape) is present.
func (m *Marker) Completed() bool {
	return m.Preprocess == StateDone && m.Running == StateDone && m.Evaluation != nil
}

// Terminal reports whether the run ended in a state that must not be
// re-executed even though it never completed: a prior timeout or an
// exhausted step budget.
func (m *Marker) Terminal() bool {
	return m.Running == StateTimeout || m.Running == StateMaxSteps
}

// MarkRunningTimeout rewrites only the running field to "timeout",
// preserving whatever the other stages recorded, so future filtering runs
// skip the task without re-executing it. Transient filesystem errors are
// retried with exponential backoff; an unparseable marker is replaced
// outright, since an unreadable marker cannot prevent anything.
func MarkRunningTimeout(dir string) error {
	op := func() error {
		m, err := Load(dir)
		if err != nil {
			if !os.IsNotExist(err) && !isParseError(err) {
				return err
			}
			m = &Marker{}
		}
		m.Running = StateTimeout
		return Save(dir, m)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = 2 * time.Second
	return backoff.Retry(op, policy)
}

func isParseError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
