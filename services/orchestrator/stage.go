package orchestrator

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of one stage within a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// StageRecord is the timing and outcome of one stage. Only the sequencer mutates it.
type StageRecord struct {
	Name      string     `json:"name"`
	Action    string     `json:"action"`
	Status    Status     `json:"status"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Duration is the wall time between start and end, or zero while unfinished.
func (r StageRecord) Duration() time.Duration {
	if r.StartTime == nil || r.EndTime == nil {
		return 0
	}
	return r.EndTime.Sub(*r.StartTime)
}

func newStageRecord(spec StageSpec) *StageRecord {
	return &StageRecord{Name: spec.Name, Action: spec.Action, Status: StatusPending}
}

// start moves the record from pending to running.
func (r *StageRecord) start(now time.Time) error {
	if err := r.transition(StatusPending, StatusRunning); err != nil {
		return err
	}
	now = now.UTC()
	r.StartTime = &now
	return nil
}

// finish moves the record from running to a terminal status and sets end_time once.
func (r *StageRecord) finish(now time.Time, err error) error {
	to := StatusSucceeded
	if err != nil {
		to = StatusFailed
	}
	if terr := r.transition(StatusRunning, to); terr != nil {
		return terr
	}
	if r.EndTime == nil {
		now = now.UTC()
		r.EndTime = &now
	}
	if err != nil {
		r.Error = err.Error()
	}
	return nil
}

func (r *StageRecord) transition(from, to Status) error {
	if r.Status != from {
		return fmt.Errorf("invalid transition for stage %q: expected %s, got %s", r.Name, from, r.Status)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for stage %q: %s -> %s", r.Name, from, to)
	}
	r.Status = to
	return nil
}

func isAllowedTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusSucceeded || to == StatusFailed
	default:
		return false
	}
}
