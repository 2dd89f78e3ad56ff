// Package records stores subjects and analyzed sessions in two Notion
// databases and decodes pages back into typed records.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"interview-insights-go/internal/apiclient"
	"interview-insights-go/internal/config"
	"interview-insights-go/internal/logger"
)

const notionVersion = "2022-06-28"

// Property names of the subjects database.
const (
	propName          = "이름"
	propCategory      = "유형"
	propRank          = "직급"
	propAffiliation   = "소속"
	propStatus        = "상태"
	propNextQuestions = "다음질문"
	propLastSession   = "최근면담일"
	propNotes         = "메모"
)

// Property names of the sessions database.
const (
	propTitle          = "제목"
	propSubject        = "대상자"
	propSessionType    = "유형"
	propDate           = "날짜"
	propSummary        = "요약"
	propKeyPoints      = "핵심포인트"
	propActionItems    = "액션아이템"
	propSuggestedNext  = "다음질문제안"
	propTranscript     = "전문텍스트"
	propAudioURL       = "녹음파일URL"
	propDurationMinute = "소요시간"
)

type textContent struct {
	Content string `json:"content"`
}

type richText struct {
	Type      string       `json:"type,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
	Text      *textContent `json:"text,omitempty"`
}

type selectValue struct {
	Name string `json:"name"`
}

type dateValue struct {
	Start string `json:"start"`
}

type relationRef struct {
	ID string `json:"id"`
}

type property struct {
	Type     string        `json:"type,omitempty"`
	Title    []richText    `json:"title,omitempty"`
	RichText []richText    `json:"rich_text,omitempty"`
	Select   *selectValue  `json:"select,omitempty"`
	Date     *dateValue    `json:"date,omitempty"`
	URL      *string       `json:"url,omitempty"`
	Number   *float64      `json:"number,omitempty"`
	Relation []relationRef `json:"relation,omitempty"`
}

type page struct {
	ID         string              `json:"id"`
	URL        string              `json:"url,omitempty"`
	Archived   bool                `json:"archived"`
	Properties map[string]property `json:"properties"`
}

type queryResponse struct {
	Results    []page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

func titleProp(s string) property {
	return property{Title: []richText{{Text: &textContent{Content: s}}}}
}

func textProp(s string) property {
	return property{RichText: []richText{{Text: &textContent{Content: s}}}}
}

func selectProp(name string) property {
	return property{Select: &selectValue{Name: name}}
}

func dateProp(start string) property {
	return property{Date: &dateValue{Start: start}}
}

func plain(parts []richText) string {
	var b strings.Builder
	for _, p := range parts {
		if p.PlainText != "" {
			b.WriteString(p.PlainText)
		} else if p.Text != nil {
			b.WriteString(p.Text.Content)
		}
	}
	return b.String()
}

// text reads a title or rich_text property as plain text.
func (p property) text() string {
	if len(p.Title) > 0 {
		return plain(p.Title)
	}
	return plain(p.RichText)
}

// Client talks to the Notion REST API.
type Client struct {
	api        *apiclient.Client
	baseURL    string
	apiKey     string
	subjectsDB string
	sessionsDB string
	webURL     string
	fieldLimit int
	log        *logger.Logger
}

func New(cfg config.NotionConfig, fieldLimit int, log *logger.Logger) *Client {
	if fieldLimit <= 0 {
		fieldLimit = 2000
	}
	return &Client{
		api:        apiclient.New("notion", cfg.Timeout),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		subjectsDB: cfg.SubjectsDB,
		sessionsDB: cfg.SessionsDB,
		webURL:     strings.TrimRight(cfg.NotionWebURL, "/"),
		fieldLimit: fieldLimit,
		log:        log.Component("records"),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode notion request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", notionVersion)
	req.Header.Set("Content-Type", "application/json")
	return c.api.DoJSON(req, out)
}

// query pages through a database, following cursors until limit results
// (0 = all) have been collected.
func (c *Client) query(ctx context.Context, dbID string, filter any, sorts []map[string]string, limit int) ([]page, error) {
	var out []page
	var cursor string
	for {
		body := map[string]any{"sorts": sorts}
		if filter != nil {
			body["filter"] = filter
		}
		if cursor != "" {
			body["start_cursor"] = cursor
		}
		if limit > 0 {
			body["page_size"] = min(limit-len(out), 100)
		}

		var resp queryResponse
		if err := c.do(ctx, http.MethodPost, "/v1/databases/"+dbID+"/query", body, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Results...)

		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			return out, nil
		}
		cursor = *resp.NextCursor
	}
}

// pageURL is the browser link of a page id.
func (c *Client) pageURL(id string) string {
	return c.webURL + "/" + strings.ReplaceAll(id, "-", "")
}

// truncate caps s at the per-field limit, counted in characters.
func (c *Client) truncate(s string) string {
	r := []rune(s)
	if len(r) <= c.fieldLimit {
		return s
	}
	return string(r[:c.fieldLimit])
}
