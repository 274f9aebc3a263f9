package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/aristath/benchrunner/internal/runner"
)

// spawnBreaker guards subprocess execution with a circuit breaker. When the
// container runtime is down, every spawn fails the same way; tripping after
// a run of consecutive execution errors lets the remaining tasks fail fast
// instead of each burning a full timeout against a dead daemon.
type spawnBreaker struct {
	cb *gobreaker.CircuitBreaker
}

func newSpawnBreaker(log zerolog.Logger) *spawnBreaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "task-exec",
		MaxRequests: 3, // Allow 3 test requests in half-open state
		Interval:    0, // Don't clear counts automatically
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			// Timeouts are valid task outcomes and cancellation is not the
			// runtime's fault; only genuine execution errors count.
			if err == nil || errors.Is(err, runner.ErrTimeout) {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})
	return &spawnBreaker{cb: cb}
}

// execute runs fn through the breaker. While the circuit is open, execute
// returns gobreaker.ErrOpenState immediately and the task is recorded as
// failed without spawning anything.
func (b *spawnBreaker) execute(ctx context.Context, fn func() (*runner.RunResult, error)) (*runner.RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return out.(*runner.RunResult), nil
}
