// Package config loads the static run configuration: harness defaults, the
// optional conflict-group file, and the optional task-list filter.
package config

import "time"

// Harness defaults, overridable from the command line.
const (
	DefaultWorkers          = 100
	DefaultTimeoutSeconds   = 1800
	DefaultDumpPath         = "./dumps"
	DefaultProgressInterval = time.Minute
)

// ConflictFileName is the optional per-folder conflict-group configuration.
const ConflictFileName = "task_conflict.json"
