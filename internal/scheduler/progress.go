package scheduler

import (
	"context"
	"time"

	"github.com/aristath/benchrunner/internal/events"
)

// startProgress launches the periodic progress reporter. It logs a one-line
// counter summary every interval and mirrors it onto the event bus. The
// returned stop function is idempotent for the RunAll defer path.
func (s *Scheduler) startProgress(ctx context.Context) func() {
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(s.cfg.ProgressInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.reportProgress()
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	var stopped bool
	return func() {
		if !stopped {
			stopped = true
			close(done)
		}
	}
}

func (s *Scheduler) reportProgress() {
	st := s.Snapshot()
	elapsed := time.Since(s.start).Round(time.Second)

	s.log.Info().
		Int("total", st.Total).
		Int("completed", st.Completed).
		Int("failed", st.Failed).
		Int("timeout", st.Timeout).
		Int("correct", st.Correct).
		Int("incorrect", st.Incorrect).
		Int("unknown", st.Unknown).
		Int("running", st.Running).
		Int("waiting_on_lock", st.WaitingOnLock).
		Dur("elapsed", elapsed).
		Msg("progress")

	s.publish(events.TopicRun, events.RunProgressEvent{
		Total:         st.Total,
		Completed:     st.Completed,
		Failed:        st.Failed,
		Timeout:       st.Timeout,
		Correct:       st.Correct,
		Incorrect:     st.Incorrect,
		Unknown:       st.Unknown,
		Running:       st.Running,
		WaitingOnLock: st.WaitingOnLock,
		Elapsed:       elapsed,
		Timestamp:     time.Now(),
	})
}
