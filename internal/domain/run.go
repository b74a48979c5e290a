package domain

import "time"

// RunResult captures the outcome of a finished agent run.
type RunResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// AgentRun represents a single execution attempt of a task by an
// external worker process.
type AgentRun struct {
	ID          string
	TaskID      string
	Queue       Queue
	PID         int
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Output      []string
	Result      *RunResult
}

// Duration returns the wall time of the run, using now for runs that
// have not finished.
func (r *AgentRun) Duration(now time.Time) time.Duration {
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(r.StartedAt)
	}
	return now.Sub(r.StartedAt)
}

// Completion is published by the spawner when a run reaches a terminal
// state. The evaluator consumes it to settle task status and feed the
// learning engine.
type Completion struct {
	RunID       string
	TaskID      string
	Queue       Queue
	TaskType    string
	Description string
	Status      RunStatus
	DurationMs  int64
	Success     bool
	Error       string
}
