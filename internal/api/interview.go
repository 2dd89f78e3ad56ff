package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"interview-insights-go/internal/audio"
	"interview-insights-go/internal/extractor"
	"interview-insights-go/internal/jobstore"
	"interview-insights-go/internal/pipeline"
	"interview-insights-go/internal/storage"
	"interview-insights-go/internal/types"
)

type runOutcome struct {
	res types.JobResult
	err error
}

// process starts the pipeline detached from the request, bounded by the
// pipeline budget, and answers with its outcome if the client is still there.
func (s *Server) process(c *gin.Context) {
	var in pipeline.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if in.JobID == "" {
		in.JobID = uuid.NewString()
	}
	if err := in.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error(), JobID: in.JobID})
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), s.opts.Budget)
	done := make(chan runOutcome, 1)
	go func() {
		defer cancel()
		res, err := s.deps.Runner.Run(ctx, in)
		done <- runOutcome{res, err}
	}()

	select {
	case <-c.Request.Context().Done():
		s.log.WithJob(in.JobID).Info("client went away - pipeline continues in background")
		return
	case out := <-done:
		if out.err != nil {
			code, detail := statusFor(out.err)
			if code < http.StatusInternalServerError && code != http.StatusBadRequest {
				code = http.StatusInternalServerError
			}
			c.JSON(code, errorBody{Error: out.err.Error(), Detail: detail, JobID: in.JobID})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "jobId": in.JobID, "result": out.res})
	}
}

func (s *Server) status(c *gin.Context) {
	jobID := strings.TrimSpace(c.Query("jobId"))
	if jobID == "" {
		c.JSON(http.StatusBadRequest, errorBody{Error: "jobId is required"})
		return
	}
	job, err := s.deps.Jobs.Read(c.Request.Context(), jobID)
	if errors.Is(err, jobstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorBody{Error: "job not found", JobID: jobID})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, job)
}

type uploadRequest struct {
	JobID string `json:"jobId"`
	Ext   string `json:"ext"`
	Count int    `json:"count"`
}

// issueUpload hands the client presigned PUT URLs for count segments.
func (s *Server) issueUpload(c *gin.Context) {
	if s.deps.Issuer == nil {
		unavailable(c, "blob storage")
		return
	}
	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if req.Count < 1 || req.Count > 100 {
		c.JSON(http.StatusBadRequest, errorBody{Error: "count must be between 1 and 100"})
		return
	}
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	ext := normalizeExt(req.Ext)

	names := make([]string, req.Count)
	for i := range names {
		names[i] = storage.ObjectName(req.JobID, i, ext)
	}
	cred, err := s.deps.Issuer.IssueCredential(c.Request.Context(), names, s.opts.CredentialTTL)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobId": req.JobID, "ext": ext, "credential": cred})
}

// readUpload returns the bytes and filename of the multipart "file" field.
func (s *Server) readUpload(c *gin.Context) ([]byte, string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("%w: file is required", pipeline.ErrInvalidInput)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: file is empty", pipeline.ErrInvalidInput)
	}
	return data, fh.Filename, nil
}

// uploadFile stores one file server-side and returns its fetch URL.
func (s *Server) uploadFile(c *gin.Context) {
	if s.deps.Objects == nil {
		unavailable(c, "blob storage")
		return
	}
	data, filename, err := s.readUpload(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	jobID := c.PostForm("jobId")
	if jobID == "" {
		jobID = uuid.NewString()
	}
	ext := normalizeExt(filepath.Ext(filename))
	url, err := s.deps.Objects.Upload(c.Request.Context(), storage.ObjectName(jobID, 0, ext), data, audio.MIMEType(ext))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobId": jobID, "url": url, "ext": ext})
}

// ingest normalizes an uploaded recording and stores its segments.
func (s *Server) ingest(c *gin.Context) {
	if s.deps.Normalizer == nil || s.deps.Uploader == nil {
		unavailable(c, "blob storage")
		return
	}
	data, filename, err := s.readUpload(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	jobID := c.PostForm("jobId")
	if jobID == "" {
		jobID = uuid.NewString()
	}

	segments, err := s.deps.Normalizer.Normalize(c.Request.Context(), data, filename)
	if err != nil {
		s.fail(c, err)
		return
	}
	if len(segments) == 0 {
		c.JSON(http.StatusBadRequest, errorBody{Error: "audio contains no samples", JobID: jobID})
		return
	}
	urls, err := s.deps.Uploader.UploadSegments(c.Request.Context(), jobID, segments)
	if err != nil {
		s.fail(c, err)
		return
	}

	var seconds float64
	for _, seg := range segments {
		seconds += float64(seg.Samples) / 16000
	}
	c.JSON(http.StatusOK, gin.H{
		"jobId":     jobID,
		"chunkUrls": urls,
		"ext":       segments[0].Ext,
		"duration":  seconds,
	})
}

type chatRequest struct {
	Question string                `json:"question"`
	Context  extractor.ChatContext `json:"context"`
	History  []extractor.Message   `json:"history"`
}

func (s *Server) chat(c *gin.Context) {
	if s.deps.Chat == nil {
		unavailable(c, "analysis provider")
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, errorBody{Error: "question is required"})
		return
	}
	answer, err := s.deps.Chat.Chat(c.Request.Context(), req.Question, req.Context, req.History)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" {
		return "wav"
	}
	return ext
}
