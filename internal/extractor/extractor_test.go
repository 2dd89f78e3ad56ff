package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"interview-insights-go/internal/config"
	"interview-insights-go/internal/logger"
	"interview-insights-go/internal/types"
)

// TestParseAnalysisAllSections verifies each section runs to the next heading and is trimmed.
func TestParseAnalysisAllSections(t *testing.T) {
	text := "서론 문장\n## 전체 요약\n  요약 본문입니다.  \n\n## 핵심 포인트\n- 하나\n- 둘\n## 다음 미팅 준비사항\n- 자료 준비\n## 추천 질문\n1. 질문?\n"
	got := ParseAnalysis(text)
	want := types.Analysis{
		Summary:       "요약 본문입니다.",
		KeyPoints:     "- 하나\n- 둘",
		ActionItems:   "- 자료 준비",
		NextQuestions: "1. 질문?",
	}
	if got != want {
		t.Fatalf("ParseAnalysis = %+v, want %+v", got, want)
	}
}

// TestParseAnalysisMissingSections verifies absent sections come back empty without failing.
func TestParseAnalysisMissingSections(t *testing.T) {
	text := "## 핵심 포인트\n- 예산 확정\n\n## 추천 질문\n- 일정은?"
	got := ParseAnalysis(text)
	if got.Summary != "" || got.ActionItems != "" {
		t.Fatalf("missing sections = %q / %q, want empty", got.Summary, got.ActionItems)
	}
	if got.KeyPoints != "- 예산 확정" || got.NextQuestions != "- 일정은?" {
		t.Fatalf("present sections = %+v", got)
	}
}

// TestParseAnalysisUnknownHeadingEndsSection verifies any "## " heading closes the previous section.
func TestParseAnalysisUnknownHeadingEndsSection(t *testing.T) {
	got := ParseAnalysis("## 전체 요약\nA\n## 기타\nB")
	if got.Summary != "A" {
		t.Fatalf("Summary = %q, want %q", got.Summary, "A")
	}
	if ParseAnalysis("no headings at all") != (types.Analysis{}) {
		t.Fatal("expected empty analysis for unstructured text")
	}
}

// TestAnalyzeCallsMessagesAPI verifies request shape, headers and parsing of the text block.
func TestAnalyzeCallsMessagesAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "key" || r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("headers = %v", r.Header)
		}
		var body struct {
			Model     string    `json:"model"`
			MaxTokens int       `json:"max_tokens"`
			System    string    `json:"system"`
			Messages  []Message `json:"messages"`
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Model != "claude-test" || body.MaxTokens != 3000 {
			t.Errorf("model/max_tokens = %q/%d", body.Model, body.MaxTokens)
		}
		if !strings.Contains(body.System, "광고주") || !strings.Contains(body.System, "## 추천 질문") {
			t.Errorf("system prompt missing client hint or headings: %q", body.System)
		}
		if len(body.Messages) != 1 || !strings.Contains(body.Messages[0].Content, "녹취 내용") {
			t.Errorf("messages = %+v", body.Messages)
		}
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"## 전체 요약\n좋은 미팅\n## 추천 질문\n- 다음은?"}]}`)
	}))
	defer srv.Close()

	c := NewClient(config.AnthropicConfig{BaseURL: srv.URL, APIKey: "key", Model: "claude-test", Timeout: time.Second}, logger.Discard())
	a := NewAnalyzer(c, 3000, 2000)

	got, err := a.Analyze(context.Background(), "녹취 내용", AnalysisContext{
		InterviewerName: "대표", SubjectName: "이영희", Category: types.CategoryClient,
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.Summary != "좋은 미팅" || got.NextQuestions != "- 다음은?" || got.KeyPoints != "" {
		t.Fatalf("analysis = %+v", got)
	}
}

// TestCompleteRejectsEmptyContent verifies a response without text is a decode error.
func TestCompleteRejectsEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"content":[{"type":"tool_use","id":"x"}]}`)
	}))
	defer srv.Close()

	c := NewClient(config.AnthropicConfig{BaseURL: srv.URL, Timeout: time.Second}, logger.Discard())
	_, err := c.Complete(context.Background(), "s", []Message{{Role: "user", Content: "q"}}, 10)
	var pe *types.ProviderError
	if !errors.As(err, &pe) || pe.Kind != types.KindDecode {
		t.Fatalf("err = %v, want decode ProviderError", err)
	}
}

func TestExtractTextChoicesFallback(t *testing.T) {
	body := []byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`)
	if got := extractText(body); got != "hello" {
		t.Fatalf("extractText = %q", got)
	}
}

// TestChatSendsHistoryAndContext verifies the chat prompt carries the prior analysis and history.
func TestChatSendsHistoryAndContext(t *testing.T) {
	var got struct {
		System    string    `json:"system"`
		MaxTokens int       `json:"max_tokens"`
		Messages  []Message `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"답변"}]}`)
	}))
	defer srv.Close()

	c := NewClient(config.AnthropicConfig{BaseURL: srv.URL, Timeout: time.Second}, logger.Discard())
	a := NewAnalyzer(c, 3000, 2000)

	answer, err := a.Chat(context.Background(), "예산은?", ChatContext{
		SubjectName: "이영희",
		Analysis:    types.Analysis{Summary: "예산 논의"},
	}, []Message{{Role: "user", Content: "안녕"}, {Role: "assistant", Content: "네"}, {Role: "system", Content: "drop"}})
	if err != nil || answer != "답변" {
		t.Fatalf("Chat = %q, %v", answer, err)
	}
	if got.MaxTokens != 2000 || len(got.Messages) != 3 || got.Messages[2].Content != "예산은?" {
		t.Fatalf("request = %+v", got)
	}
	if !strings.Contains(got.System, "예산 논의") || !strings.Contains(got.System, "이영희") {
		t.Fatalf("system = %q", got.System)
	}
}
