package extractor

import (
	"context"
	"fmt"
	"strings"

	"interview-insights-go/internal/types"
)

// Analyzer turns a transcript into a four-section Analysis.
type Analyzer struct {
	client        *Client
	maxTokens     int
	chatMaxTokens int
}

func NewAnalyzer(client *Client, maxTokens, chatMaxTokens int) *Analyzer {
	return &Analyzer{client: client, maxTokens: maxTokens, chatMaxTokens: chatMaxTokens}
}

func (a *Analyzer) Analyze(ctx context.Context, transcript string, ac AnalysisContext) (types.Analysis, error) {
	text, err := a.client.Complete(ctx, BuildSystemPrompt(ac),
		[]Message{{Role: "user", Content: BuildUserPrompt(transcript)}}, a.maxTokens)
	if err != nil {
		return types.Analysis{}, err
	}
	return ParseAnalysis(text), nil
}

// ChatContext is a prior analysis the follow-up chat is grounded on.
type ChatContext struct {
	SubjectName string         `json:"personName,omitempty"`
	Analysis    types.Analysis `json:"analysis"`
	Transcript  string         `json:"transcript,omitempty"`
}

// Chat answers a follow-up question about an analyzed conversation.
// history holds earlier turns, oldest first.
func (a *Analyzer) Chat(ctx context.Context, question string, cc ChatContext, history []Message) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("empty question")
	}

	msgs := make([]Message, 0, len(history)+1)
	for _, m := range history {
		if (m.Role == "user" || m.Role == "assistant") && strings.TrimSpace(m.Content) != "" {
			msgs = append(msgs, m)
		}
	}
	msgs = append(msgs, Message{Role: "user", Content: question})

	return a.client.Complete(ctx, buildChatPrompt(cc), msgs, a.chatMaxTokens)
}

func buildChatPrompt(cc ChatContext) string {
	var b strings.Builder
	b.WriteString("당신은 면담 분석 결과를 바탕으로 질문에 답하는 비서입니다. 아래 분석 내용에 근거해 간결하게 한국어로 답하세요.\n\n")
	if cc.SubjectName != "" {
		fmt.Fprintf(&b, "대상자: %s\n\n", cc.SubjectName)
	}
	fmt.Fprintf(&b, "## %s\n%s\n\n", HeadingSummary, cc.Analysis.Summary)
	fmt.Fprintf(&b, "## %s\n%s\n\n", HeadingKeyPoints, cc.Analysis.KeyPoints)
	fmt.Fprintf(&b, "## %s\n%s\n\n", HeadingActionItems, cc.Analysis.ActionItems)
	fmt.Fprintf(&b, "## %s\n%s\n", HeadingNextQuestions, cc.Analysis.NextQuestions)
	if cc.Transcript != "" {
		b.WriteString("\n녹취록:\n")
		b.WriteString(cc.Transcript)
	}
	return b.String()
}
