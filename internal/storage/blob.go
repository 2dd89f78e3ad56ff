package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"interview-insights-go/internal/config"
)

// ErrObjectNotFound is returned by Fetch for a missing key.
var ErrObjectNotFound = errors.New("storage: object not found")

// Blob is an S3-compatible bucket reached through MinIO's client.
type Blob struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
	fetchTTL      time.Duration
}

func NewBlob(cfg config.StorageConfig) (*Blob, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return &Blob{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		fetchTTL:      cfg.FetchTTL,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (b *Blob) EnsureBucket(ctx context.Context) error {
	ok, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if ok {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	return nil
}

// UploadTarget is one object a client may write with a plain HTTP PUT.
type UploadTarget struct {
	Name      string `json:"name"`
	UploadURL string `json:"uploadUrl"`
	FetchURL  string `json:"fetchUrl"`
}

// Credential is a short-lived write grant for a fixed set of object names.
type Credential struct {
	ExpiresAt time.Time      `json:"expiresAt"`
	Targets   []UploadTarget `json:"targets"`
}

// IssueCredential presigns a PUT for every name. Nothing is written.
func (b *Blob) IssueCredential(ctx context.Context, names []string, ttl time.Duration) (Credential, error) {
	cred := Credential{ExpiresAt: time.Now().Add(ttl).UTC()}
	for _, name := range names {
		put, err := b.client.PresignedPutObject(ctx, b.bucket, name, ttl)
		if err != nil {
			return Credential{}, fmt.Errorf("presigned put object: %w", err)
		}
		fetch, err := b.URL(ctx, name)
		if err != nil {
			return Credential{}, err
		}
		cred.Targets = append(cred.Targets, UploadTarget{Name: name, UploadURL: put.String(), FetchURL: fetch})
	}
	return cred, nil
}

// Upload stores data under name and returns a URL the pipeline can fetch it from.
func (b *Blob) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	_, err := b.client.PutObject(ctx, b.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	return b.URL(ctx, name)
}

// Write stores a small JSON document.
func (b *Blob) Write(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

// Fetch reads a whole object. Missing keys return ErrObjectNotFound.
func (b *Blob) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapNotFound(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return data, nil
}

// URL returns the public URL of name, or a presigned GET when the bucket is private.
func (b *Blob) URL(ctx context.Context, name string) (string, error) {
	if b.publicBaseURL != "" {
		return b.publicBaseURL + "/" + name, nil
	}
	u, err := b.client.PresignedGetObject(ctx, b.bucket, name, b.fetchTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presigned get object: %w", err)
	}
	return u.String(), nil
}

func mapNotFound(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrObjectNotFound
	}
	return fmt.Errorf("s3 get object: %w", err)
}
