// Package statuspoll follows a job's status record until it finishes,
// disappears or stops making progress.
package statuspoll

import (
	"context"
	"errors"
	"time"

	"interview-insights-go/internal/jobstore"
	"interview-insights-go/internal/logger"
	"interview-insights-go/internal/types"
)

var (
	// ErrAbandoned means the job record no longer exists.
	ErrAbandoned = errors.New("job abandoned")
	// ErrStalled means a non-terminal job stopped advancing.
	ErrStalled = errors.New("job stalled")
)

// Source reads the current job record. A missing record is jobstore.ErrNotFound.
type Source interface {
	Read(ctx context.Context, jobID string) (types.Job, error)
}

type Poller struct {
	source       Source
	interval     time.Duration
	stallTimeout time.Duration
	now          func() time.Time
	log          *logger.Logger
}

func New(source Source, interval, stallTimeout time.Duration, log *logger.Logger) *Poller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if stallTimeout <= 0 {
		stallTimeout = 10 * time.Minute
	}
	return &Poller{source: source, interval: interval, stallTimeout: stallTimeout, now: time.Now, log: log.Component("poller")}
}

// Watch polls jobID until it reaches done or error and returns the final
// record. onUpdate, if set, sees every record whose UpdatedAt changed.
// Read errors other than not-found are tolerated; they count as no progress.
func (p *Poller) Watch(ctx context.Context, jobID string, onUpdate func(types.Job)) (types.Job, error) {
	log := p.log.WithJob(jobID)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last types.Job
	lastChange := p.now()
	for {
		job, err := p.source.Read(ctx, jobID)
		switch {
		case errors.Is(err, jobstore.ErrNotFound):
			return last, ErrAbandoned
		case err != nil:
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			log.WithError(err).Debug("status read failed - will retry")
		default:
			if !job.UpdatedAt.Equal(last.UpdatedAt) || job.Stage != last.Stage {
				lastChange = p.now()
				if onUpdate != nil {
					onUpdate(job)
				}
			}
			last = job
			if job.Stage.Terminal() {
				return job, nil
			}
		}

		if p.now().Sub(lastChange) >= p.stallTimeout {
			log.WithField("stage", last.Stage).Warn("job made no progress - giving up")
			return last, ErrStalled
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}
