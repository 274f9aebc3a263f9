package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/benchrunner/internal/events"
)

// Record is one archived task outcome.
type Record struct {
	Tag       string
	TaskID    string
	Status    string
	Elapsed   time.Duration
	LogPath   string
	LockHeld  bool
	Err       string
	CreatedAt time.Time
}

// SaveFinished archives a task-finished event under its run tag.
func (s *Store) SaveFinished(ctx context.Context, tag string, ev events.TaskFinishedEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_records (tag, task_id, status, elapsed_ms, log_path, lock_held, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tag, ev.ID, ev.Status, ev.Elapsed.Milliseconds(), ev.LogPath, boolToInt(ev.LockHeld), ev.Err,
	)
	if err != nil {
		return fmt.Errorf("insert run record: %w", err)
	}
	return nil
}

// ListRecords returns the archived records for one run tag, oldest first.
func (s *Store) ListRecords(ctx context.Context, tag string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag, task_id, status, elapsed_ms, log_path, lock_held, error, created_at
		 FROM run_records WHERE tag = ? ORDER BY id`,
		tag,
	)
	if err != nil {
		return nil, fmt.Errorf("query run records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var elapsedMS int64
		var lockHeld int
		var logPath, errMsg, createdAt sql.NullString
		if err := rows.Scan(&r.Tag, &r.TaskID, &r.Status, &elapsedMS, &logPath, &lockHeld, &errMsg, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run record: %w", err)
		}
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		r.LogPath = logPath.String
		r.Err = errMsg.String
		r.LockHeld = lockHeld != 0
		// CURRENT_TIMESTAMP stores text, not a driver-native time value.
		if t, perr := time.Parse("2006-01-02 15:04:05", createdAt.String); perr == nil {
			r.CreatedAt = t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountByStatus returns per-status record counts for one run tag.
func (s *Store) CountByStatus(ctx context.Context, tag string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM run_records WHERE tag = ? GROUP BY status`,
		tag,
	)
	if err != nil {
		return nil, fmt.Errorf("query status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// StartRecorder consumes task-finished events from the bus and archives
// them until the bus closes or ctx is cancelled. The returned channel
// closes once the recorder has drained.
func (s *Store) StartRecorder(ctx context.Context, bus *events.Bus, tag string, log zerolog.Logger) <-chan struct{} {
	ch := bus.Subscribe(events.TopicTask, 1024)
	done := make(chan struct{})

	go func() {
		defer close(done)
		rlog := log.With().Str("component", "history").Logger()
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				fin, ok := ev.(events.TaskFinishedEvent)
				if !ok {
					continue
				}
				if err := s.SaveFinished(ctx, tag, fin); err != nil {
					rlog.Warn().Err(err).Str("task", fin.ID).Msg("could not archive run record")
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return done
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
