package report

import "time"

// JobStatus is the primary status of a run or step, following the grid
// job-state vocabulary.
type JobStatus string

const (
	StatusSubmitting JobStatus = "Submitting"
	StatusWaiting    JobStatus = "Waiting"
	StatusRunning    JobStatus = "Running"
	StatusCompleting JobStatus = "Completing"
	StatusDone       JobStatus = "Done"
	StatusFailed     JobStatus = "Failed"
	StatusKilled     JobStatus = "Killed"
)

// Common minor statuses.
const (
	MinorInputResolution = "Input Data Resolution"
	MinorApplication     = "Application"
	MinorExecComplete    = "Execution Complete"
	MinorOutputRegister  = "Output Data Registration"
)

// Run is one workflow execution tracked by the status store.
type Run struct {
	ID         string     `json:"id"`
	Workflow   string     `json:"workflow"`
	Status     JobStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StatusUpdate is one status transition of a run. Empty fields carry the
// previous value forward when recorded through a Report.
type StatusUpdate struct {
	RunID       string    `json:"run_id"`
	Step        string    `json:"step,omitempty"`
	Status      JobStatus `json:"status"`
	Minor       string    `json:"minor_status,omitempty"`
	Application string    `json:"application_status,omitempty"`
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
}

// MergeEvent records one catalog merge performed after a step completed.
type MergeEvent struct {
	RunID     string    `json:"run_id"`
	Step      string    `json:"step"`
	New       int       `json:"new"`
	Updated   int       `json:"updated"`
	Timestamp time.Time `json:"timestamp"`
}
