package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"interview-insights-go/internal/apiclient"
	"interview-insights-go/internal/config"
	"interview-insights-go/internal/logger"
	"interview-insights-go/internal/types"
)

const anthropicVersion = "2023-06-01"

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client calls an Anthropic Messages-compatible endpoint.
type Client struct {
	api     *apiclient.Client
	baseURL string
	apiKey  string
	model   string
	mock    bool
	log     *logger.Logger
}

func NewClient(cfg config.AnthropicConfig, log *logger.Logger) *Client {
	return &Client{
		api:     apiclient.New("anthropic", cfg.Timeout),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		mock:    cfg.Mock,
		log:     log.Component("extractor"),
	}
}

// Complete sends one system prompt plus the conversation and returns the
// assistant's text. Single attempt; callers own retries.
func (c *Client) Complete(ctx context.Context, system string, messages []Message, maxTokens int) (string, error) {
	if c.mock {
		c.log.Info("mock LLM mode ON - returning deterministic analysis")
		return mockAnalysis, nil
	}

	reqBody := map[string]any{
		"model":      c.model,
		"max_tokens": maxTokens,
		"system":     system,
		"messages":   messages,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encode llm request: %w", err)
	}
	c.log.WithField("payload_len", len(data)).Debug("llm request")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build llm request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	body, err := c.api.Do(req)
	if err != nil {
		c.log.WithError(err).Warn("llm request failed")
		return "", err
	}

	text := extractText(body)
	if text == "" {
		return "", &types.ProviderError{
			Provider: "anthropic",
			Kind:     types.KindDecode,
			Message:  "no text content in llm response",
		}
	}
	c.log.WithField("duration_ms", time.Since(start).Milliseconds()).
		WithField("text_len", len(text)).Debug("llm response")
	return text, nil
}

// extractText returns the first text block of a Messages response, falling
// back to choices[0].message.content for OpenAI-style gateways.
func extractText(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}

	if blocks, ok := obj["content"].([]any); ok {
		for _, b := range blocks {
			block, _ := b.(map[string]any)
			if block == nil || block["type"] != "text" {
				continue
			}
			if text, _ := block["text"].(string); text != "" {
				return text
			}
		}
	}

	choices, ok := obj["choices"].([]any)
	if !ok || len(choices) == 0 {
		return ""
	}
	c0, _ := choices[0].(map[string]any)
	if c0 == nil {
		return ""
	}
	msg, _ := c0["message"].(map[string]any)
	if msg == nil {
		return ""
	}
	content, _ := msg["content"].(string)
	return content
}

const mockAnalysis = `## 전체 요약
테스트 면담이 진행되었습니다.

## 핵심 포인트
- 인사

## 다음 미팅 준비사항
- 후속 일정 확인

## 추천 질문
1. 최근 업무는 어떻습니까?`
