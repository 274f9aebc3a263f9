package scheduler

import (
	"context"
	"path"
)

// ConflictLock serializes execution of the tasks in one conflict group.
// It is channel-based so acquisition can be probed without blocking and
// abandoned on context cancellation, neither of which sync.Mutex offers.
type ConflictLock struct {
	ch chan struct{}
}

func newConflictLock() *ConflictLock {
	return &ConflictLock{ch: make(chan struct{}, 1)}
}

// TryAcquire takes the lock if it is currently free.
func (l *ConflictLock) TryAcquire() bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Acquire blocks until the lock is free or ctx is cancelled.
func (l *ConflictLock) Acquire(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the lock. Releasing an unheld lock is a no-op.
func (l *ConflictLock) Release() {
	select {
	case <-l.ch:
	default:
	}
}

// ConflictLockTable maps task identifiers to shared conflict-group locks.
// Every member of a group gets the same lock instance for the life of the
// run; tasks not named in any group get none and run unconstrained.
type ConflictLockTable struct {
	locks map[string]*ConflictLock
}

// NewConflictLockTable allocates exactly one lock per group and associates
// it with every task name in that group.
func NewConflictLockTable(groups [][]string) *ConflictLockTable {
	t := &ConflictLockTable{locks: make(map[string]*ConflictLock)}
	for _, group := range groups {
		lock := newConflictLock()
		for _, name := range group {
			t.locks[path.Base(name)] = lock
		}
	}
	return t
}

// LockFor returns the group lock for a task, or nil if the task is
// unconstrained. Matching is by the trailing path component of the task id,
// so "shopping/change_address" matches a group entry "change_address".
func (t *ConflictLockTable) LockFor(taskID string) *ConflictLock {
	return t.locks[path.Base(taskID)]
}
