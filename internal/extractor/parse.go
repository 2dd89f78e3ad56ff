package extractor

import (
	"strings"

	"interview-insights-go/internal/types"
)

// ParseAnalysis extracts the four named sections from free-form model
// output. A section runs from its heading line to the next "## " heading
// or the end of text. Missing sections parse to "".
func ParseAnalysis(text string) types.Analysis {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return types.Analysis{
		Summary:       section(text, HeadingSummary),
		KeyPoints:     section(text, HeadingKeyPoints),
		ActionItems:   section(text, HeadingActionItems),
		NextQuestions: section(text, HeadingNextQuestions),
	}
}

func section(text, heading string) string {
	marker := "## " + heading
	start := -1
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], marker)
		if i < 0 {
			break
		}
		i += offset
		if i == 0 || text[i-1] == '\n' {
			start = i
			break
		}
		offset = i + len(marker)
	}
	if start < 0 {
		return ""
	}

	body := text[start+len(marker):]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		return ""
	}

	if end := nextHeading(body); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func nextHeading(s string) int {
	if strings.HasPrefix(s, "## ") {
		return 0
	}
	if i := strings.Index(s, "\n## "); i >= 0 {
		return i + 1
	}
	return -1
}
