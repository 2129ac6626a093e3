package reflection

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/XiaoConstantine/ace-go/pkg/chats"
	"github.com/XiaoConstantine/ace-go/pkg/feedback"
)

// Reflector analyzes a rated chat turn and produces an insight.
type Reflector interface {
	Reflect(ctx context.Context, turn *chats.Turn, fb *feedback.Record) (*Insight, error)
}

// HeuristicReflector produces insights without any model call. Confidence is
// capped low so heuristic insights reinforce existing bullets more often than
// they mint new ones.
type HeuristicReflector struct{}

// NewHeuristicReflector creates a reflector for offline and test use.
func NewHeuristicReflector() *HeuristicReflector {
	return &HeuristicReflector{}
}

// Reflect derives an insight from the feedback's polarity and comment text.
func (hr *HeuristicReflector) Reflect(ctx context.Context, turn *chats.Turn, fb *feedback.Record) (*Insight, error) {
	comment := strings.TrimSpace(fb.UserFeedback)

	switch {
	case fb.IsNegative():
		approach := "Re-read the question and verify each claim before answering."
		if comment != "" {
			approach = comment
		}
		return &Insight{
			ErrorIdentification: fmt.Sprintf("the response to %q was rated unhelpful", truncate(turn.Question, 80)),
			RootCause:           "the answer did not match what the user needed",
			CorrectApproach:     approach,
			KeyInsight:          approach,
			Confidence:          0.65,
		}, nil

	case fb.IsPositive():
		insight := fmt.Sprintf("The approach used for %q worked well; keep the same structure for similar questions.", truncate(turn.Question, 80))
		if comment != "" {
			insight = comment
		}
		return &Insight{
			ErrorIdentification: "no error, response was successful",
			RootCause:           "the response matched the user's expectations",
			CorrectApproach:     insight,
			KeyInsight:          insight,
			Confidence:          0.6,
		}, nil

	default:
		// Neutral feedback carries too little signal for a confident insight.
		return &Insight{
			ErrorIdentification: "no clear error identified",
			RootCause:           "mixed feedback without a specific complaint",
			CorrectApproach:     comment,
			KeyInsight:          comment,
			Confidence:          0.3,
		}, nil
	}
}

// truncate shortens s to at most n bytes, cutting on a rune boundary so
// multi-byte text never yields invalid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
