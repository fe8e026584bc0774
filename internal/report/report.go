package report

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Report accumulates status transitions for one run and persists them
// through a Store. Safe for concurrent use; parallel steps report through
// the same instance.
type Report struct {
	mu     sync.Mutex
	run    *Run
	store  Store
	logger *slog.Logger
	source string
	last   StatusUpdate
}

// NewReport registers a new run and returns its report. A nil store keeps
// the report purely in-memory.
func NewReport(ctx context.Context, store Store, workflow, source string, logger *slog.Logger) (*Report, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Workflow:  workflow,
		Status:    StatusSubmitting,
		StartedAt: time.Now().UTC(),
	}
	if store != nil {
		if err := store.CreateRun(ctx, run); err != nil {
			return nil, err
		}
	}
	return &Report{
		run:    run,
		store:  store,
		logger: logger.With("component", "report", "run", run.ID),
		source: source,
	}, nil
}

// RunID returns the identifier assigned to this run.
func (r *Report) RunID() string {
	return r.run.ID
}

// SetStatus records one transition. Empty minor and application statuses
// carry the previous values forward.
func (r *Report) SetStatus(ctx context.Context, step string, status JobStatus, minor, application string) {
	r.mu.Lock()
	if minor == "" {
		minor = r.last.Minor
	}
	if application == "" {
		application = r.last.Application
	}
	u := StatusUpdate{
		RunID:       r.run.ID,
		Step:        step,
		Status:      status,
		Minor:       minor,
		Application: application,
		Source:      r.source,
		Timestamp:   time.Now().UTC(),
	}
	r.last = u
	r.mu.Unlock()

	r.logger.Info("status update",
		"step", step, "status", status, "minor", minor, "application", application)
	if r.store != nil {
		if err := r.store.RecordStatus(ctx, u); err != nil {
			r.logger.Error("failed to record status update", "err", err)
		}
	}
}

// RecordMerge records a catalog merge event for a completed step.
func (r *Report) RecordMerge(ctx context.Context, step string, newEntries, updated int) {
	e := MergeEvent{
		RunID:     r.run.ID,
		Step:      step,
		New:       newEntries,
		Updated:   updated,
		Timestamp: time.Now().UTC(),
	}
	if r.store != nil {
		if err := r.store.RecordMerge(ctx, e); err != nil {
			r.logger.Error("failed to record merge event", "err", err)
		}
	}
}

// Finish closes out the run with its terminal status.
func (r *Report) Finish(ctx context.Context, status JobStatus) {
	r.mu.Lock()
	r.run.Status = status
	r.mu.Unlock()

	r.logger.Info("run finished", "status", status)
	if r.store != nil {
		if err := r.store.FinishRun(ctx, r.run.ID, status); err != nil {
			r.logger.Error("failed to finish run", "err", err)
		}
	}
}
