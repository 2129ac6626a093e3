package reflection

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/ace-go/pkg/chats"
	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/feedback"
)

func testTurn() *chats.Turn {
	return &chats.Turn{
		FeedbackID:    "fb-1",
		UserID:        "user-1",
		Question:      "Convert 5 miles to kilometers",
		ModelResponse: "About 8 kilometers.",
	}
}

func TestHeuristicReflectorNegative(t *testing.T) {
	reflector := NewHeuristicReflector()
	fb := &feedback.Record{FeedbackID: "fb-1", Rating: 1, UserFeedback: "Always show the conversion factor."}

	insight, err := reflector.Reflect(context.Background(), testTurn(), fb)
	require.NoError(t, err)
	assert.True(t, insight.IsErrorCase())
	assert.Equal(t, "Always show the conversion factor.", insight.KeyInsight)
	assert.Greater(t, insight.Confidence, 0.5)
}

func TestHeuristicReflectorPositive(t *testing.T) {
	reflector := NewHeuristicReflector()
	fb := &feedback.Record{FeedbackID: "fb-1", Rating: 5}

	insight, err := reflector.Reflect(context.Background(), testTurn(), fb)
	require.NoError(t, err)
	assert.False(t, insight.IsErrorCase())
	assert.NotEmpty(t, insight.KeyInsight)
}

func TestHeuristicReflectorHandlesMultiByteQuestions(t *testing.T) {
	reflector := NewHeuristicReflector()
	fb := &feedback.Record{FeedbackID: "fb-1", Rating: 1}

	turn := testTurn()
	turn.Question = strings.Repeat("東京とロンドンの時差を教えて", 5)

	insight, err := reflector.Reflect(context.Background(), turn, fb)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(insight.ErrorIdentification))
}

func TestTruncateCutsOnRuneBoundary(t *testing.T) {
	s := strings.Repeat("日", 40) // 120 bytes
	out := truncate(s, 80)

	assert.True(t, utf8.ValidString(out))
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.LessOrEqual(t, len(out), 80)

	ascii := "plain ascii stays untouched"
	assert.Equal(t, ascii, truncate(ascii, 80))
}

func TestHeuristicReflectorNeutralLowConfidence(t *testing.T) {
	reflector := NewHeuristicReflector()
	fb := &feedback.Record{FeedbackID: "fb-1", Rating: 3, UserFeedback: "meh"}

	insight, err := reflector.Reflect(context.Background(), testTurn(), fb)
	require.NoError(t, err)
	assert.LessOrEqual(t, insight.Confidence, 0.5)
}

func TestParseInsight(t *testing.T) {
	data := []byte(`{
		"error_identification": "no error",
		"root_cause_analysis": "clear question",
		"correct_approach": "state units explicitly",
		"key_insight": "Always state units explicitly when converting.",
		"confidence": 0.8
	}`)

	insight, err := ParseInsight(data)
	require.NoError(t, err)
	assert.Equal(t, 0.8, insight.Confidence)
	assert.False(t, insight.IsErrorCase())
}

func TestParseInsightStripsFences(t *testing.T) {
	data := []byte("```json\n{\"key_insight\": \"Use numbered steps.\", \"confidence\": 0.7}\n```")

	insight, err := ParseInsight(data)
	require.NoError(t, err)
	assert.Equal(t, "Use numbered steps.", insight.KeyInsight)
}

func TestParseInsightMalformed(t *testing.T) {
	_, err := ParseInsight([]byte("not json at all"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.MalformedInsight))
}

func TestParseInsightMissingKeyInsight(t *testing.T) {
	_, err := ParseInsight([]byte(`{"confidence": 0.9}`))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.MalformedInsight))
}

func TestParseInsightConfidenceOutOfRange(t *testing.T) {
	_, err := ParseInsight([]byte(`{"key_insight": "x y z insight", "confidence": 1.5}`))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.MalformedInsight))
}

func TestInsightIsErrorCase(t *testing.T) {
	in := &Insight{ErrorIdentification: "No Error found"}
	assert.False(t, in.IsErrorCase())

	in = &Insight{ErrorIdentification: "the units were wrong"}
	assert.True(t, in.IsErrorCase())

	in = &Insight{}
	assert.False(t, in.IsErrorCase())
}
