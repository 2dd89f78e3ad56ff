package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"interview-insights-go/internal/types"
)

// TestStatusErrorEnvelopes verifies message/code/type extraction for each provider envelope.
func TestStatusErrorEnvelopes(t *testing.T) {
	cases := []struct {
		name              string
		body              string
		wantMsg, wantCode string
		wantType          string
	}{
		{"openai", `{"error":{"message":"bad file","type":"invalid_request_error","code":"invalid_file"}}`, "bad file", "invalid_file", "invalid_request_error"},
		{"anthropic", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, "Overloaded", "", "overloaded_error"},
		{"notion", `{"object":"error","status":400,"code":"validation_error","message":"body failed validation"}`, "body failed validation", "validation_error", ""},
		{"telegram", `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`, "Bad Request: chat not found", "400", ""},
		{"plain", `upstream exploded`, "upstream exploded", "", ""},
		{"empty", ``, "Bad Gateway", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pe := StatusError("p", http.StatusBadGateway, []byte(tc.body))
			if pe.Message != tc.wantMsg || pe.Code != tc.wantCode || pe.Type != tc.wantType {
				t.Fatalf("got message=%q code=%q type=%q", pe.Message, pe.Code, pe.Type)
			}
			if pe.Kind != types.KindStatus || pe.StatusCode != http.StatusBadGateway {
				t.Fatalf("unexpected kind/status: %+v", pe)
			}
		})
	}
}

// TestDoJSON verifies decoding on success and ProviderError on failure.
func TestDoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"down"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New("test", 5*time.Second)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/ok", nil)
	var out struct{ OK bool }
	if err := c.DoJSON(req, &out); err != nil || !out.OK {
		t.Fatalf("DoJSON = %v, out=%+v", err, out)
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/fail", nil)
	err := c.DoJSON(req, &out)
	var pe *types.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.StatusCode != 500 || pe.Message != "down" || !pe.Temporary() {
		t.Fatalf("unexpected provider error: %+v", pe)
	}
}

// TestDoCanceledContext verifies a canceled request surfaces the context error, not a network error.
func TestDoCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	_, err := New("test", time.Second).Do(req)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// TestClipKeepsRunesWhole verifies long provider messages are cut on rune boundaries.
func TestClipKeepsRunesWhole(t *testing.T) {
	msg := strings.Repeat("가", maxMessageLen+50)
	got := clip(msg)
	if !utf8.ValidString(got) {
		t.Fatalf("clip produced invalid UTF-8")
	}
	if n := utf8.RuneCountInString(strings.TrimSuffix(got, "...")); n != maxMessageLen {
		t.Fatalf("kept %d runes, want %d", n, maxMessageLen)
	}
	if short := "짧은 오류"; clip(short) != short {
		t.Fatalf("clip(%q) = %q", short, clip(short))
	}
}
