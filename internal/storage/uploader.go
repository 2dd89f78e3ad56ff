package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"interview-insights-go/internal/audio"
	"interview-insights-go/internal/logger"
)

// ObjectPutter stores one object and returns its fetch URL.
type ObjectPutter interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// UploadError reports which segment failed to upload.
type UploadError struct {
	Index int
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("segment %d upload failed: %v", e.Index, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// ObjectName is audio/<jobID>/<index>-<random>.<ext>.
func ObjectName(jobID string, index int, ext string) string {
	return fmt.Sprintf("audio/%s/%03d-%s.%s", jobID, index, uuid.NewString()[:8], ext)
}

type Uploader struct {
	store   ObjectPutter
	workers int
	log     *logger.Logger
}

func NewUploader(store ObjectPutter, workers int, log *logger.Logger) *Uploader {
	if workers <= 0 {
		workers = 4
	}
	return &Uploader{store: store, workers: workers, log: log.Component("uploader")}
}

// UploadSegments uploads every segment concurrently and returns their fetch
// URLs in segment order. The first failure cancels the rest of the batch.
func (u *Uploader) UploadSegments(ctx context.Context, jobID string, segments []audio.Segment) ([]string, error) {
	start := time.Now()
	urls := make([]string, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.workers)
	for i, seg := range segments {
		g.Go(func() error {
			name := ObjectName(jobID, seg.Index, seg.Ext)
			url, err := u.store.Upload(gctx, name, seg.Data, audio.MIMEType(seg.Ext))
			if err != nil {
				return &UploadError{Index: seg.Index, Err: err}
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		u.log.WithJob(jobID).WithError(err).Warn("segment upload failed")
		return nil, err
	}

	u.log.WithJob(jobID).WithField("segments", len(segments)).
		WithField("duration_ms", time.Since(start).Milliseconds()).Info("segments uploaded")
	return urls, nil
}
