package domain

import (
	"fmt"
	"time"
)

// RunState is a collection run's position in its lifecycle.
type RunState string

const (
	RunIdle       RunState = "idle"
	RunFetching   RunState = "fetching"
	RunExtracting RunState = "extracting"
	RunAdmitting  RunState = "admitting"
	RunAborted    RunState = "aborted"
)

var runTransitions = map[RunState][]RunState{
	RunIdle:       {RunFetching, RunAborted},
	RunFetching:   {RunExtracting, RunIdle, RunAborted},
	RunExtracting: {RunAdmitting, RunIdle, RunAborted},
	RunAdmitting:  {RunIdle, RunAborted},
	RunAborted:    {},
}

// Transition validates a state change.
func (s RunState) Transition(next RunState) (RunState, error) {
	for _, allowed := range runTransitions[s] {
		if allowed == next {
			return next, nil
		}
	}
	return s, fmt.Errorf("invalid run transition %s -> %s", s, next)
}

// RunReport summarizes one collection run.
type RunReport struct {
	RunID      string         `json:"run_id"`
	State      RunState       `json:"state"`
	Running    bool           `json:"running"`
	Rounds     int            `json:"rounds"`
	Target     int            `json:"target"`
	Fetched    map[string]int `json:"fetched"`
	Admitted   int            `json:"admitted"`
	Duplicates int            `json:"duplicates"`
	Failures   map[string]int `json:"failures"`
	FinalCount int            `json:"final_count"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
}

// Clone returns a copy safe to hand to another goroutine.
func (r RunReport) Clone() RunReport {
	out := r
	out.Fetched = make(map[string]int, len(r.Fetched))
	for k, v := range r.Fetched {
		out.Fetched[k] = v
	}
	out.Failures = make(map[string]int, len(r.Failures))
	for k, v := range r.Failures {
		out.Failures[k] = v
	}
	return out
}
