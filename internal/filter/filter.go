// Package filter excludes tasks whose prior on-disk state shows they are
// already fully completed, so interrupted batches resume where they left
// off instead of repeating finished work.
package filter

import (
	"github.com/rs/zerolog"

	"github.com/aristath/benchrunner/internal/scheduler"
)

// CompletionFilter partitions candidate tasks into those needing execution
// and those already finished.
type CompletionFilter struct {
	chain []Classifier
	log   zerolog.Logger
}

// New builds the filter with the default classifier chain, ordered from the
// authoritative status marker down to the legacy heuristics.
func New(log zerolog.Logger) *CompletionFilter {
	return &CompletionFilter{
		chain: []Classifier{
			statusMarkerClassifier{},
			legacyLogClassifier{},
			legacyArtifactClassifier{},
		},
		log: log.With().Str("component", "filter").Logger(),
	}
}

// Partition splits candidates into (toRun, alreadyDone). It only reads the
// filesystem and never mutates it, so running it twice over an unmodified
// output tree yields the same partition.
func (f *CompletionFilter) Partition(tasks []scheduler.Task) (toRun, alreadyDone []scheduler.Task) {
	for _, task := range tasks {
		if f.isDone(task) {
			alreadyDone = append(alreadyDone, task)
		} else {
			toRun = append(toRun, task)
		}
	}
	return toRun, alreadyDone
}

func (f *CompletionFilter) isDone(task scheduler.Task) bool {
	for _, c := range f.chain {
		switch c.Classify(task.OutDir) {
		case DecisionDone:
			f.log.Debug().Str("task", task.ID).Str("classifier", c.Name()).Msg("already completed, skipping")
			return true
		case DecisionRun:
			return false
		}
	}
	// No classifier recognized prior work; schedule it.
	return false
}
