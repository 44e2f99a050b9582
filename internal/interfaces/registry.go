package interfaces

import "errors"

// ErrCancelled is returned by pipeline phases that stop early because
// the job's cancellation flag was set. Callers must distinguish it from
// failure: a cancelled job ends in status "cancelled", not "failed".
var ErrCancelled = errors.New("import cancelled")

// JobRegistry tracks cancellation tokens for running import jobs.
// Token creation and removal is part of the job lifecycle: the
// orchestrator registers a job before its first phase and releases it
// after the terminal status is persisted.
type JobRegistry interface {
	// Register creates a cancellation token for a job
	Register(jobID string)

	// Cancel sets the cancellation flag; returns false when the job is
	// not registered (already finished or never started)
	Cancel(jobID string) bool

	// IsCancelled reports the flag; polled between discrete units of work
	IsCancelled(jobID string) bool

	// Release removes the token once the job reaches a terminal status
	Release(jobID string)

	// Active returns the ids of all registered jobs
	Active() []string
}
