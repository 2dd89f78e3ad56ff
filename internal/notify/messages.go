package notify

import (
	"fmt"
	"html"
	"strings"

	"interview-insights-go/internal/types"
)

// Outcome is what a finished run reports to the chat.
type Outcome struct {
	SubjectName string
	SessionType string
	Date        string
	Analysis    types.Analysis
	RecordURL   string
}

// SuccessMessage renders a completed session for the chat.
func SuccessMessage(o Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ <b>%s</b> %s 분석 완료 (%s)\n\n", esc(o.SubjectName), esc(o.SessionType), esc(o.Date))
	fmt.Fprintf(&b, "<b>요약</b>\n%s\n", esc(clip(o.Analysis.Summary, 800)))
	if o.Analysis.NextQuestions != "" {
		fmt.Fprintf(&b, "\n<b>다음 질문</b>\n%s\n", esc(clip(o.Analysis.NextQuestions, 800)))
	}
	if o.RecordURL != "" {
		fmt.Fprintf(&b, "\n<a href=\"%s\">노션에서 보기</a>", esc(o.RecordURL))
	}
	return b.String()
}

// FailureMessage renders a failed run for the chat.
func FailureMessage(subjectName, errMsg string) string {
	if subjectName == "" {
		subjectName = "알 수 없음"
	}
	return fmt.Sprintf("❌ <b>%s</b> 면담 처리 실패\n\n%s", esc(subjectName), esc(clip(errMsg, 500)))
}

func esc(s string) string { return html.EscapeString(s) }

func clip(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "…"
}
