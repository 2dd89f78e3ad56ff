package transcription

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"interview-insights-go/internal/apiclient"
	"interview-insights-go/internal/config"
	"interview-insights-go/internal/logger"
)

// Request is one audio segment to transcribe.
type Request struct {
	Audio    []byte
	Filename string
	MIMEType string
	Language string
	Prompt   string
}

// Client calls an OpenAI-compatible /v1/audio/transcriptions endpoint.
type Client struct {
	api     *apiclient.Client
	baseURL string
	apiKey  string
	model   string
	mock    bool
	log     *logger.Logger
}

func New(cfg config.OpenAIConfig, log *logger.Logger) *Client {
	return &Client{
		api:     apiclient.New("whisper", cfg.Timeout),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		mock:    cfg.Mock,
		log:     log.Component("transcription"),
	}
}

// Transcribe uploads one segment and returns its plain-text transcript.
// It makes a single attempt; callers wrap it in a retry policy.
func (c *Client) Transcribe(ctx context.Context, r Request) (string, error) {
	if c.mock {
		c.log.Info("mock STT mode ON - returning deterministic transcript")
		return "안녕하세요 테스트입니다", nil
	}

	body, contentType, err := buildMultipart(c.model, r)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/transcriptions", body)
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	out, err := c.api.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("filename", r.Filename).Warn("transcription request failed")
		return "", err
	}

	c.log.WithField("filename", r.Filename).
		WithField("bytes", len(r.Audio)).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Debug("segment transcribed")
	return strings.TrimSpace(string(out)), nil
}

// buildMultipart encodes the form fields and the audio part.
func buildMultipart(model string, r Request) (*bytes.Buffer, string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fields := [][2]string{
		{"model", model},
		{"response_format", "text"},
		{"language", r.Language},
		{"prompt", r.Prompt},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(r.Filename)))
	h.Set("Content-Type", r.MIMEType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(r.Audio); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &b, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
