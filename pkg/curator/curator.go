package curator

import (
	"context"
	"fmt"

	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
	"github.com/XiaoConstantine/ace-go/pkg/reflection"
)

const (
	// acceptThreshold gates general insight processing: at or below it an
	// insight is silently discarded.
	acceptThreshold = 0.5

	// reinforceThreshold decides whether a matched bullet also earns a
	// helpful increment, not just refreshed content.
	reinforceThreshold = 0.7

	// negativeThreshold gates the explicit anti-pattern path.
	negativeThreshold = 0.6

	// matchTopK bounds the similarity search for dedup/match decisions.
	matchTopK = 5
)

// Curator converts insights into playbook deltas. All decisions are local
// and deterministic apart from the similarity search against the store.
type Curator struct {
	store  *playbook.Store
	logger *logging.Logger
}

// New creates a curator over the given playbook store.
func New(store *playbook.Store) *Curator {
	return &Curator{
		store:  store,
		logger: logging.GetLogger(),
	}
}

// Compute turns an insight into a delta. Nil or low-confidence insights
// produce an empty delta; so does any internal failure. This boundary is
// deliberately fail-soft: one bad insight must not abort feedback
// processing, at the cost of swallowing errors into a warning log.
func (c *Curator) Compute(ctx context.Context, insight *reflection.Insight, feedbackID string) Delta {
	if insight == nil {
		return NewDelta(feedbackID)
	}
	if err := insight.Validate(); err != nil {
		c.logger.Warn(ctx, "discarding malformed insight: %v", err)
		return NewDelta(feedbackID)
	}
	if insight.Confidence <= acceptThreshold {
		c.logger.Debug(ctx, "discarding low-confidence insight (%.2f)", insight.Confidence)
		return NewDelta(feedbackID)
	}

	candidates, err := c.store.Search(ctx, insight.KeyInsight, matchTopK)
	if err != nil {
		c.logger.Warn(ctx, "insight match search failed, emitting empty delta: %v", err)
		return NewDelta(feedbackID)
	}

	content := formatContent(insight.KeyInsight, insight)

	if len(candidates) > 0 {
		match := candidates[0]
		helpfulInc := 0
		if insight.Confidence > reinforceThreshold {
			helpfulInc = 1
		}
		c.logger.Debug(ctx, "insight matches bullet %s, updating", match.ID)
		return NewDelta(feedbackID, Operation{
			Kind:             OpUpdate,
			BulletID:         match.ID,
			Content:          content,
			HelpfulIncrement: helpfulInc,
		})
	}

	section := DetermineSection(insight.KeyInsight)
	c.logger.Debug(ctx, "no matching bullet, adding to section %q", section)
	return NewDelta(feedbackID, Operation{
		Kind:             OpAdd,
		Content:          content,
		Section:          section,
		HelpfulIncrement: 1,
	})
}

// ComputeNegative builds a delta for explicitly negative feedback: one
// anti-pattern bullet phrased as what to avoid. Callers choose this path
// from the feedback's rating or type, the curator does not.
func (c *Curator) ComputeNegative(ctx context.Context, insight *reflection.Insight, feedbackID string) Delta {
	if insight == nil || insight.Confidence <= negativeThreshold {
		return NewDelta(feedbackID)
	}

	content := fmt.Sprintf("AVOID: %s\n\nInstead: %s", insight.ErrorIdentification, insight.CorrectApproach)
	return NewDelta(feedbackID, Operation{
		Kind:             OpAdd,
		Content:          content,
		Section:          AntiPatternsSection,
		HelpfulIncrement: 1,
	})
}

// ComputePositive builds a delta for explicitly positive feedback: one
// success-pattern bullet reinforcing what worked.
func (c *Curator) ComputePositive(ctx context.Context, insight *reflection.Insight, feedbackID string) Delta {
	if insight == nil || insight.Confidence <= acceptThreshold {
		return NewDelta(feedbackID)
	}

	return NewDelta(feedbackID, Operation{
		Kind:             OpAdd,
		Content:          "SUCCESS PATTERN: " + insight.KeyInsight,
		Section:          SuccessPatternsSection,
		HelpfulIncrement: 1,
	})
}
