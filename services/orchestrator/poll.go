package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloudbench/services/workload"
)

// WorkloadTimeoutError is returned when the workload does not reach a terminal state
// before the maximum wait elapses.
type WorkloadTimeoutError struct {
	Handle    string
	MaxWait   time.Duration
	Elapsed   time.Duration
	LastState workload.State
}

func (e *WorkloadTimeoutError) Error() string {
	return fmt.Sprintf("workload %q not terminal after %s (max wait %s, last state %q)",
		e.Handle, e.Elapsed, e.MaxWait, e.LastState)
}

// PollResult is the terminal observation of a workload.
type PollResult struct {
	State   workload.State
	Elapsed time.Duration
	Probes  int
}

// Poller checks a workload at a fixed interval until it is terminal or MaxWait elapses.
// There is no backoff and no jitter.
type Poller struct {
	Interval time.Duration
	MaxWait  time.Duration

	// Now and Sleep default to the wall clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Poll probes handle until it reports a terminal state. A terminal state observed at an
// elapsed time strictly below MaxWait is a success; at or after MaxWait the result is a
// *WorkloadTimeoutError.
func (p Poller) Poll(ctx context.Context, prober workload.Prober, handle string) (PollResult, error) {
	if prober == nil {
		return PollResult{}, errors.New("prober is required")
	}
	if p.Interval <= 0 {
		return PollResult{}, fmt.Errorf("poll interval must be positive, got %s", p.Interval)
	}
	if p.MaxWait <= 0 {
		return PollResult{}, fmt.Errorf("max wait must be positive, got %s", p.MaxWait)
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	start := now()
	var (
		last   workload.State
		probes int
	)
	for {
		elapsed := now().Sub(start)
		if elapsed >= p.MaxWait {
			return PollResult{State: last, Elapsed: elapsed, Probes: probes},
				&WorkloadTimeoutError{Handle: handle, MaxWait: p.MaxWait, Elapsed: elapsed, LastState: last}
		}

		state, err := prober.Probe(ctx, handle)
		probes++
		if err != nil {
			return PollResult{State: last, Elapsed: now().Sub(start), Probes: probes}, err
		}
		last = state

		elapsed = now().Sub(start)
		if state.Terminal() {
			if elapsed >= p.MaxWait {
				return PollResult{State: state, Elapsed: elapsed, Probes: probes},
					&WorkloadTimeoutError{Handle: handle, MaxWait: p.MaxWait, Elapsed: elapsed, LastState: state}
			}
			return PollResult{State: state, Elapsed: elapsed, Probes: probes}, nil
		}

		wait := p.Interval
		if remaining := p.MaxWait - elapsed; remaining < wait {
			wait = remaining
		}
		if err := sleep(ctx, wait); err != nil {
			return PollResult{State: last, Elapsed: now().Sub(start), Probes: probes}, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
