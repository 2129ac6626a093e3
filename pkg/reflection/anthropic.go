package reflection

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/XiaoConstantine/ace-go/pkg/chats"
	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/feedback"
)

const reflectionPrompt = `Analyze why this response received feedback and extract actionable insights.

QUESTION: %s

MODEL RESPONSE: %s

USER FEEDBACK: %s
FEEDBACK TYPE: %s
RATING: %d/5

Respond with only a JSON object with these fields:
- error_identification: what went wrong, or "no error" if the response succeeded
- root_cause_analysis: why it happened
- correct_approach: what should be done instead (or kept)
- key_insight: one actionable sentence of reusable strategy
- confidence: 0.0-1.0, how confident you are in the insight`

// AnthropicReflector extracts insights with a Claude model. The prompting is
// deliberately shallow: one user message in, one strict-schema JSON object
// out, parsed by ParseInsight.
type AnthropicReflector struct {
	client *anthropic.Client
	model  anthropic.Model
}

// NewAnthropicReflector creates a reflector using the given API key and model.
func NewAnthropicReflector(apiKey string, model anthropic.Model) *AnthropicReflector {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &AnthropicReflector{
		client: &client,
		model:  model,
	}
}

// Reflect implements Reflector.
func (ar *AnthropicReflector) Reflect(ctx context.Context, turn *chats.Turn, fb *feedback.Record) (*Insight, error) {
	prompt := fmt.Sprintf(reflectionPrompt,
		turn.Question,
		turn.ModelResponse,
		fb.UserFeedback,
		fb.FeedbackType,
		fb.Rating,
	)

	message, err := ar.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model: ar.model,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
		MaxTokens:   1024,
		Temperature: anthropic.Float(0.3),
	})
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.ReflectionFailed, "reflection model call failed"),
			errors.Fields{"model": string(ar.model)},
		)
	}

	if message == nil || len(message.Content) == 0 {
		return nil, errors.New(errors.ReflectionFailed, "empty reflection response")
	}

	block := message.Content[0]
	if block.Type != "text" {
		return nil, errors.New(errors.ReflectionFailed, "unexpected reflection content type")
	}

	return ParseInsight([]byte(block.Text))
}
