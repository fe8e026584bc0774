// Package report tracks run and step status the way a grid job wrapper
// reports to the workload management system: a primary status, a minor
// status and an application status per transition, persisted for later
// inspection.
package report

import "context"

// Store defines the persistence layer for run status.
type Store interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context) ([]*Run, error)
	FinishRun(ctx context.Context, id string, status JobStatus) error

	RecordStatus(ctx context.Context, u StatusUpdate) error
	ListStatus(ctx context.Context, runID string) ([]StatusUpdate, error)

	RecordMerge(ctx context.Context, e MergeEvent) error
	ListMerges(ctx context.Context, runID string) ([]MergeEvent, error)

	Close() error
	Migrate(ctx context.Context) error
}
