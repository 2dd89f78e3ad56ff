// Package jobstore keeps the status record of each processing job so a
// client can poll it while the pipeline runs.
package jobstore

import (
	"context"
	"errors"
	"time"

	"interview-insights-go/internal/logger"
	"interview-insights-go/internal/types"
)

// ErrNotFound is returned by Read for a job id that was never written.
var ErrNotFound = errors.New("jobstore: job not found")

// Store is a last-write-wins key/value store of Job records.
type Store interface {
	// Write merges u into the stored record, creating it when absent, and
	// returns the merged record.
	Write(ctx context.Context, jobID string, u types.JobUpdate) (types.Job, error)
	Read(ctx context.Context, jobID string) (types.Job, error)
}

// merge applies u to current (or to a fresh record when !found) and stamps
// UpdatedAt so it strictly increases per record.
func merge(current types.Job, found bool, jobID string, u types.JobUpdate, now time.Time) types.Job {
	now = now.UTC()
	if !found {
		current = types.Job{
			ID:        jobID,
			Stage:     types.StageTranscribing,
			CreatedAt: now,
		}
	}
	next := current.Merge(u)
	if !now.After(current.UpdatedAt) {
		now = current.UpdatedAt.Add(time.Microsecond)
	}
	next.UpdatedAt = now
	return next
}

// Reporter writes progress on behalf of the pipeline. Store failures are
// logged and swallowed so status reporting never fails a run.
type Reporter struct {
	store Store
	log   *logger.Logger
}

func NewReporter(store Store, log *logger.Logger) *Reporter {
	return &Reporter{store: store, log: log.Component("job-status")}
}

func (r *Reporter) Report(ctx context.Context, jobID string, u types.JobUpdate) {
	if r == nil || r.store == nil || jobID == "" {
		return
	}
	if _, err := r.store.Write(ctx, jobID, u); err != nil {
		r.log.WithJob(jobID).WithError(err).Warn("job status write failed")
	}
}
