package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"interview-insights-go/internal/storage"
	"interview-insights-go/internal/types"
)

// ObjectStore is the subset of storage.Blob the blob-backed store needs.
type ObjectStore interface {
	Write(ctx context.Context, key string, data []byte) error
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// BlobStore keeps each job as the object jobs/<id>.json.
type BlobStore struct {
	objects ObjectStore
	clock   func() time.Time
}

func NewBlobStore(objects ObjectStore) *BlobStore {
	return &BlobStore{objects: objects, clock: time.Now}
}

func blobKey(jobID string) string { return "jobs/" + jobID + ".json" }

func (s *BlobStore) Write(ctx context.Context, jobID string, u types.JobUpdate) (types.Job, error) {
	cur, err := s.Read(ctx, jobID)
	found := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return types.Job{}, err
	}

	next := merge(cur, found, jobID, u, s.clock())
	data, err := json.Marshal(next)
	if err != nil {
		return types.Job{}, fmt.Errorf("encode job: %w", err)
	}
	if err := s.objects.Write(ctx, blobKey(jobID), data); err != nil {
		return types.Job{}, err
	}
	return next, nil
}

func (s *BlobStore) Read(ctx context.Context, jobID string) (types.Job, error) {
	data, err := s.objects.Fetch(ctx, blobKey(jobID))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return types.Job{}, ErrNotFound
	}
	if err != nil {
		return types.Job{}, err
	}
	var job types.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return types.Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}
