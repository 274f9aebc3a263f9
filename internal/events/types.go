package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
}

// Topic constants
const (
	TopicTask = "task"
	TopicRun  = "run"
)

// Event type constants
const (
	EventTypeTaskStarted  = "task.started"
	EventTypeTaskFinished = "task.finished"
	EventTypeRunProgress  = "run.progress"
)

// TaskStartedEvent is published when a task has acquired its worker slot and
// its subprocess is about to spawn.
type TaskStartedEvent struct {
	ID        string
	LockHeld  bool
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }

// TaskFinishedEvent is published when a task's execution terminates,
// whether normally or by timeout or error.
type TaskFinishedEvent struct {
	ID        string
	Status    string
	Elapsed   time.Duration
	LogPath   string
	LockHeld  bool
	Err       string
	Timestamp time.Time
}

func (e TaskFinishedEvent) EventType() string { return EventTypeTaskFinished }

// RunProgressEvent is the periodic counter snapshot for the whole batch.
type RunProgressEvent struct {
	Total         int
	Completed     int
	Failed        int
	Timeout       int
	Correct       int
	Incorrect     int
	Unknown       int
	Running       int
	WaitingOnLock int
	Elapsed       time.Duration
	Timestamp     time.Time
}

func (e RunProgressEvent) EventType() string { return EventTypeRunProgress }
