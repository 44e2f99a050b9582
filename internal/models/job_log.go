package models

import "time"

// JobLogEntry is one timestamped log line scoped to an import job,
// served by the status API for operator diagnosis.
type JobLogEntry struct {
	ID        uint64    `json:"id" badgerhold:"key"`
	JobID     string    `json:"job_id" badgerholdIndex:"JobID"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
