package storage

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"interview-insights-go/internal/apiclient"
)

// URLFetcher downloads uploaded segments by URL.
type URLFetcher struct {
	api *apiclient.Client
}

func NewURLFetcher(timeout time.Duration) *URLFetcher {
	return &URLFetcher{api: apiclient.New("blob", timeout)}
}

func (f *URLFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	return f.api.Do(req)
}
