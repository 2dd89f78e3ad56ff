package extractor

import (
	"fmt"
	"strings"

	"interview-insights-go/internal/types"
)

// Section headings the analysis prompt asks for and the parser looks for.
const (
	HeadingSummary       = "전체 요약"
	HeadingKeyPoints     = "핵심 포인트"
	HeadingActionItems   = "다음 미팅 준비사항"
	HeadingNextQuestions = "추천 질문"
)

// AnalysisContext describes who the conversation was with.
type AnalysisContext struct {
	InterviewerName string
	SubjectName     string
	Category        types.Category
	Rank            string
	Affiliation     string
}

func counterpartHint(ac AnalysisContext) string {
	if ac.Category == types.CategoryClient {
		return "광고주(외부 고객사)와의 미팅입니다. 고객의 요구사항, 불만, 계약 및 예산 관련 신호에 주목하세요."
	}
	return "사내 팀장급 구성원과의 1:1 면담입니다. 업무 현황, 팀 분위기, 고충과 성장 의지에 주목하세요."
}

// BuildSystemPrompt builds the instruction block for the analysis call.
func BuildSystemPrompt(ac AnalysisContext) string {
	var who strings.Builder
	who.WriteString(ac.SubjectName)
	if ac.Rank != "" {
		who.WriteString(" " + ac.Rank)
	}
	if ac.Affiliation != "" {
		who.WriteString(" (" + ac.Affiliation + ")")
	}

	return fmt.Sprintf(`당신은 %s의 비서로서 대화 녹취록을 정리합니다.
대화 상대: %s
%s

녹취록에 근거한 내용만 작성하고, 추측은 하지 마세요.
반드시 아래 네 개의 섹션을 이 순서와 제목 그대로 출력하세요.

## %s
(3~5문장 요약)

## %s
(글머리표 목록)

## %s
(다음 만남 전에 챙길 일, 글머리표 목록)

## %s
(다음 대화에서 물어볼 질문 3~5개, 번호 목록)`,
		ac.InterviewerName, who.String(), counterpartHint(ac),
		HeadingSummary, HeadingKeyPoints, HeadingActionItems, HeadingNextQuestions)
}

// BuildUserPrompt wraps the transcript for the analysis call.
func BuildUserPrompt(transcript string) string {
	return "다음은 대화 녹취록입니다.\n\n" + transcript
}

// TranscriptionHint is the vocabulary prompt sent with each segment.
func TranscriptionHint(interviewerName, subjectName string) string {
	return fmt.Sprintf("%s와 %s의 대화입니다.", interviewerName, subjectName)
}
