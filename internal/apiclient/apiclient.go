// Package apiclient is the shared request/response plumbing for the outbound
// provider clients. Every non-2xx answer and every transport failure comes
// back as a *types.ProviderError.
package apiclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"interview-insights-go/internal/types"
)

const maxMessageLen = 300

type Client struct {
	Provider string
	HTTP     *http.Client
}

func New(provider string, timeout time.Duration) *Client {
	return &Client{
		Provider: provider,
		HTTP:     &http.Client{Timeout: timeout},
	}
}

// Do sends req and returns the body of a 2xx response.
func (c *Client) Do(req *http.Request) ([]byte, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &types.ProviderError{
			Provider: c.Provider,
			Kind:     types.KindNetwork,
			Message:  err.Error(),
			Err:      err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.ProviderError{
			Provider:   c.Provider,
			Kind:       types.KindNetwork,
			StatusCode: resp.StatusCode,
			Message:    "read body: " + err.Error(),
			Err:        err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, StatusError(c.Provider, resp.StatusCode, body)
	}
	return body, nil
}

// DoJSON sends req and decodes a 2xx JSON body into out.
func (c *Client) DoJSON(req *http.Request, out any) error {
	body, err := c.Do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &types.ProviderError{
			Provider: c.Provider,
			Kind:     types.KindDecode,
			Message:  fmt.Sprintf("json decode error: %v body=%s", err, clip(string(body))),
			Err:      err,
		}
	}
	return nil
}

// StatusError builds the ProviderError for a non-2xx answer, pulling message,
// code and type out of the common provider error envelopes.
func StatusError(provider string, status int, body []byte) *types.ProviderError {
	pe := &types.ProviderError{
		Provider:   provider,
		Kind:       types.KindStatus,
		StatusCode: status,
	}

	var env map[string]any
	if json.Unmarshal(body, &env) == nil {
		switch e := env["error"].(type) {
		case map[string]any: // {"error":{"message","type","code"}}
			pe.Message = str(e["message"])
			pe.Type = str(e["type"])
			pe.Code = str(e["code"])
		case string:
			pe.Message = e
		}
		if pe.Message == "" {
			pe.Message = str(env["message"]) // notion style
		}
		if pe.Message == "" {
			pe.Message = str(env["description"]) // telegram style
		}
		if pe.Code == "" {
			pe.Code = str(env["code"])
		}
		if pe.Code == "" {
			pe.Code = str(env["error_code"])
		}
		if pe.Type == "" && str(env["type"]) != "error" {
			pe.Type = str(env["type"])
		}
	}

	if pe.Message == "" {
		pe.Message = strings.TrimSpace(clip(string(body)))
	}
	if pe.Message == "" {
		pe.Message = http.StatusText(status)
	}
	return pe
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprint(t)
	}
}

// clip keeps the first maxMessageLen runes of s.
func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxMessageLen {
		return s
	}
	return string(r[:maxMessageLen]) + "..."
}
