// Package poller provides the bounded polling primitive underneath every
// wait in the engine: it evaluates a condition on a fixed interval until
// the condition is satisfied, the timeout elapses, or the context is
// cancelled. Transient evaluation errors never abort the loop.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/cglendenning/percona-operator-eks-sub000/pkg/log"
)

// ConditionStatus is the outcome of a single condition evaluation
type ConditionStatus int

const (
	// NotYetSatisfied means the condition evaluated cleanly but does not hold yet
	NotYetSatisfied ConditionStatus = iota
	// Satisfied means the condition holds and the wait can stop
	Satisfied
)

// Condition is evaluated once per tick. Returning a non-nil error marks the
// tick as an observation error: it is logged and treated as not-yet-satisfied
// rather than failing the wait.
type Condition func(ctx context.Context) (ConditionStatus, error)

// Stats describes how a wait concluded
type Stats struct {
	Elapsed time.Duration
	Polls   int
}

// TimeoutExceeded is returned when the condition stayed unsatisfied for the
// whole timeout. LastErr carries the most recent observation error, if any.
type TimeoutExceeded struct {
	Description string
	Elapsed     time.Duration
	Polls       int
	LastErr     error
}

func (e *TimeoutExceeded) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("timed out waiting for %s after %v (%d polls), last observation error: %v", e.Description, e.Elapsed.Round(time.Second), e.Polls, e.LastErr)
	}
	return fmt.Sprintf("timed out waiting for %s after %v (%d polls)", e.Description, e.Elapsed.Round(time.Second), e.Polls)
}

// Settings controls a single wait
type Settings struct {
	// Timeout bounds the whole wait; zero means a single evaluation
	Timeout time.Duration
	// Interval is the sleep between evaluations, must be > 0
	Interval time.Duration
	// Description names the awaited condition in diagnostics
	Description string
	// ProgressEvery emits a progress line every N polls to keep logs
	// bounded; defaults to 4 when unset
	ProgressEvery int
}

// WaitUntil evaluates cond immediately and then once per interval until it
// is satisfied, the timeout elapses, or ctx is cancelled. A cancelled
// context is surfaced as ctx.Err(), distinct from *TimeoutExceeded.
func WaitUntil(ctx context.Context, settings Settings, cond Condition) (Stats, error) {
	if settings.Interval <= 0 {
		return Stats{}, fmt.Errorf("poll interval must be positive, got %v", settings.Interval)
	}
	progressEvery := settings.ProgressEvery
	if progressEvery <= 0 {
		progressEvery = 4
	}

	start := time.Now()
	var polls int
	var lastErr error

	for {
		if err := ctx.Err(); err != nil {
			return Stats{Elapsed: time.Since(start), Polls: polls}, err
		}

		polls++
		status, err := cond(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return Stats{Elapsed: time.Since(start), Polls: polls}, ctx.Err()
			}
			// transient observation error, keep polling
			lastErr = err
			log.Warnf("[Wait]: Transient error while checking %s, err: %v", settings.Description, err)
		case status == Satisfied:
			return Stats{Elapsed: time.Since(start), Polls: polls}, nil
		}

		elapsed := time.Since(start)
		if elapsed >= settings.Timeout {
			return Stats{Elapsed: elapsed, Polls: polls}, &TimeoutExceeded{
				Description: settings.Description,
				Elapsed:     elapsed,
				Polls:       polls,
				LastErr:     lastErr,
			}
		}

		if polls%progressEvery == 0 {
			log.Infof("[Wait]: Still waiting for %s, elapsed: %v, remaining budget: %v", settings.Description, elapsed.Round(time.Second), (settings.Timeout - elapsed).Round(time.Second))
		}

		sleep := settings.Interval
		if remaining := settings.Timeout - elapsed; remaining < sleep {
			sleep = remaining
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Stats{Elapsed: time.Since(start), Polls: polls}, ctx.Err()
		case <-timer.C:
		}
	}
}
