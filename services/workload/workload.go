// Package workload observes and prepares the remote scraper workload: status probers for
// the poll stage and the registry image pusher.
package workload

import (
	"context"
	"fmt"
)

// State is the observed lifecycle state of a remote workload.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateErrored   State = "errored"
)

// Terminal reports whether the workload has stopped.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrored
}

// Prober reports the current state of the workload identified by handle.
type Prober interface {
	Probe(ctx context.Context, handle string) (State, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, handle string) (State, error)

func (f ProberFunc) Probe(ctx context.Context, handle string) (State, error) {
	return f(ctx, handle)
}

// ProbeError reports a failed status check.
type ProbeError struct {
	Handle string
	Err    error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe workload %q: %v", e.Handle, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }
