package statuspoll

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"interview-insights-go/internal/apiclient"
	"interview-insights-go/internal/jobstore"
	"interview-insights-go/internal/types"
)

// HTTPSource reads job records from the service's status endpoint.
type HTTPSource struct {
	api     *apiclient.Client
	baseURL string
}

func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{api: apiclient.New("status", timeout), baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *HTTPSource) Read(ctx context.Context, jobID string) (types.Job, error) {
	u := s.baseURL + "/api/interview/status?jobId=" + url.QueryEscape(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return types.Job{}, fmt.Errorf("build status request: %w", err)
	}
	var job types.Job
	if err := s.api.DoJSON(req, &job); err != nil {
		var pe *types.ProviderError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound {
			return types.Job{}, jobstore.ErrNotFound
		}
		return types.Job{}, err
	}
	return job, nil
}
