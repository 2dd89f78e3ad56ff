// Package api exposes the pipeline, job status and record management over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"interview-insights-go/internal/audio"
	"interview-insights-go/internal/extractor"
	"interview-insights-go/internal/logger"
	"interview-insights-go/internal/notify"
	"interview-insights-go/internal/pipeline"
	"interview-insights-go/internal/records"
	"interview-insights-go/internal/storage"
	"interview-insights-go/internal/types"
)

type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (types.JobResult, error)
}

type JobReader interface {
	Read(ctx context.Context, jobID string) (types.Job, error)
}

// Records is the record store surface the HTTP API manages.
type Records interface {
	ListSubjects(ctx context.Context, f records.SubjectFilter) ([]types.Subject, error)
	GetSubject(ctx context.Context, id string) (types.Subject, error)
	CreateSubject(ctx context.Context, in records.SubjectInput) (types.Subject, error)
	UpdateSubject(ctx context.Context, id string, u records.SubjectUpdate) error
	ListSessions(ctx context.Context, f records.SessionFilter) ([]types.Session, error)
	ArchiveSession(ctx context.Context, id string) error
}

type CredentialIssuer interface {
	IssueCredential(ctx context.Context, names []string, ttl time.Duration) (storage.Credential, error)
}

type Normalizer interface {
	Normalize(ctx context.Context, data []byte, filename string) ([]audio.Segment, error)
}

type SegmentUploader interface {
	UploadSegments(ctx context.Context, jobID string, segments []audio.Segment) ([]string, error)
}

type Chatter interface {
	Chat(ctx context.Context, question string, cc extractor.ChatContext, history []extractor.Message) (string, error)
}

type BotHandler interface {
	Handle(ctx context.Context, u notify.Update) error
}

type RequestCounter interface {
	CountRequest(ctx context.Context, route string, status int)
}

// Deps wires the handlers. Storage-backed and optional collaborators may be
// nil; their routes then answer 503.
type Deps struct {
	Runner     Runner
	Jobs       JobReader
	Records    Records
	Issuer     CredentialIssuer
	Objects    storage.ObjectPutter
	Normalizer Normalizer
	Uploader   SegmentUploader
	Chat       Chatter
	Bot        BotHandler
	Redis      *redis.Client
	Metrics    RequestCounter
	MetricsUI  http.Handler
}

type Options struct {
	Budget         time.Duration
	MaxUploadBytes int64
	CredentialTTL  time.Duration
	RecentLimit    int
	RateLimit      int
	MetricsPath    string
}

type Server struct {
	deps Deps
	opts Options
	log  *logger.Logger
}

func NewServer(deps Deps, opts Options, log *logger.Logger) *Server {
	if opts.Budget <= 0 {
		opts.Budget = 300 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 200 << 20
	}
	if opts.CredentialTTL <= 0 {
		opts.CredentialTTL = 15 * time.Minute
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 10
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	return &Server{deps: deps, opts: opts, log: log.Component("api")}
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))
	if s.deps.Metrics != nil {
		r.Use(countRequests(s.deps.Metrics))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if s.deps.MetricsUI != nil {
		r.GET(s.opts.MetricsPath, gin.WrapH(s.deps.MetricsUI))
	}

	// status is polled every few seconds by every open client; it stays outside the limiter
	r.GET("/api/interview/status", s.status)

	interview := r.Group("/api/interview")
	if s.deps.Redis != nil && s.opts.RateLimit > 0 {
		interview.Use(rateLimiter(rateLimiterConfig{
			Client:    s.deps.Redis,
			Limit:     s.opts.RateLimit,
			Window:    time.Minute,
			KeyPrefix: "rl:interview:",
		}))
	}
	interview.POST("/process", s.process)
	interview.POST("/upload", s.issueUpload)
	interview.POST("/ingest", s.ingest)
	interview.POST("/chat", s.chat)

	r.POST("/api/upload", s.uploadFile)

	persons := r.Group("/api/persons")
	persons.GET("", s.listSubjects)
	persons.POST("", s.createSubject)
	persons.GET("/export", s.exportRoster)
	persons.POST("/import", s.importRoster)
	persons.GET("/:id", s.getSubject)
	persons.PUT("/:id", s.updateSubject)
	persons.PATCH("/:id/status", s.patchSubjectStatus)
	persons.GET("/:id/interviews", s.subjectSessions)

	r.GET("/api/interviews", s.listSessions)
	r.DELETE("/api/interviews/:id", s.archiveSession)

	r.POST("/api/telegram/webhook", s.telegramWebhook)
	return r
}

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error  string             `json:"error"`
	Detail *types.ErrorDetail `json:"detail,omitempty"`
	JobID  string             `json:"jobId,omitempty"`
}

// statusFor maps a domain error to an HTTP status and the diagnostic block.
func statusFor(err error) (int, *types.ErrorDetail) {
	var pe *types.ProviderError
	hasProvider := errors.As(err, &pe)
	var detail *types.ErrorDetail
	if hasProvider {
		d := pe.Detail()
		detail = &d
	}

	switch {
	case errors.Is(err, pipeline.ErrInvalidInput), errors.Is(err, records.ErrInvalidInput):
		return http.StatusBadRequest, nil
	case errors.Is(err, records.ErrMissingField):
		return http.StatusUnprocessableEntity, nil
	case hasProvider && pe.StatusCode == http.StatusNotFound:
		return http.StatusNotFound, detail
	case hasProvider && pe.Provider == "notion":
		return http.StatusBadGateway, detail
	default:
		return http.StatusInternalServerError, detail
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	code, detail := statusFor(err)
	entry := s.log.WithRequest(c.Request).WithField("error", err.Error()).WithField("status", code)
	if code >= 500 {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}
	c.JSON(code, errorBody{Error: err.Error(), Detail: detail})
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, errorBody{Error: what + " is not configured"})
}
