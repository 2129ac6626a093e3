// Package pipeline runs the feedback processing flow: fetch feedback, fetch
// the originating chat turn, reflect, curate, merge, update usage counters.
// The flow is linear with no retries; a scheduler above decides whether to
// try again.
package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/XiaoConstantine/ace-go/pkg/chats"
	"github.com/XiaoConstantine/ace-go/pkg/curator"
	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/feedback"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
	"github.com/XiaoConstantine/ace-go/pkg/reflection"
)

// Processing outcome for one feedback id.
const (
	StatusCompleted = "completed"
	// StatusInsightUnavailable means the run finished but reflection failed,
	// so no learning happened. Kept distinct from completed so operators can
	// tell "nothing to learn" from "reflector down".
	StatusInsightUnavailable = "insight_unavailable"
	StatusFailed             = "failed"
)

// Result summarizes one pipeline run. Serialized into the processing log.
type Result struct {
	Status            string    `json:"status"`
	FeedbackID        string    `json:"feedback_id"`
	InsightsGenerated int       `json:"insights_generated"`
	BulletsAdded      int       `json:"bullets_added"`
	BulletsUpdated    int       `json:"bullets_updated"`
	ProcessingTime    float64   `json:"processing_time"` // seconds
	ErrorMessage      string    `json:"error_message,omitempty"`
	ProcessedAt       time.Time `json:"processed_at"`
}

// Succeeded reports whether the run reached the end of the flow.
func (r *Result) Succeeded() bool {
	return r.Status != StatusFailed
}

// Pipeline wires the stores, the reflector and the curator together.
type Pipeline struct {
	playbook  *playbook.Store
	feedback  *feedback.Store
	chats     *chats.Store
	reflector reflection.Reflector
	curator   *curator.Curator
	merger    *curator.Merger
	logger    *logging.Logger

	// mutate serializes the curate-merge-count section across concurrent
	// runs. The playbook store locks its own state, but without this lock
	// two runs could both miss a match in search and add near-duplicate
	// bullets.
	mutate sync.Mutex

	logPath string
	logMu   sync.Mutex
}

// Deps lists everything a pipeline needs. All fields are required except
// Logger.
type Deps struct {
	Playbook  *playbook.Store
	Feedback  *feedback.Store
	Chats     *chats.Store
	Reflector reflection.Reflector
	Curator   *curator.Curator
	Merger    *curator.Merger
	Logger    *logging.Logger

	// LogDir holds the processing log. Empty disables run logging.
	LogDir string
}

// New builds a pipeline from its dependencies.
func New(deps Deps) (*Pipeline, error) {
	if deps.Playbook == nil || deps.Feedback == nil || deps.Chats == nil ||
		deps.Reflector == nil || deps.Curator == nil || deps.Merger == nil {
		return nil, errors.New(errors.InvalidInput, "pipeline requires playbook, feedback, chats, reflector, curator and merger")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	logPath := ""
	if deps.LogDir != "" {
		if err := os.MkdirAll(deps.LogDir, 0755); err != nil {
			return nil, errors.Wrap(err, errors.PersistenceFailed, "creating pipeline log directory")
		}
		logPath = filepath.Join(deps.LogDir, "processing_log.json")
	}

	return &Pipeline{
		playbook:  deps.Playbook,
		feedback:  deps.Feedback,
		chats:     deps.Chats,
		reflector: deps.Reflector,
		curator:   deps.Curator,
		merger:    deps.Merger,
		logger:    logger,
		logPath:   logPath,
	}, nil
}

// Process runs the full flow for one feedback id. Failures are reported in
// the Result rather than returned; callers inspect Status.
func (p *Pipeline) Process(ctx context.Context, feedbackID string) Result {
	start := time.Now()
	ctx = logging.WithFeedbackID(ctx, feedbackID)

	result := p.run(ctx, feedbackID)
	result.FeedbackID = feedbackID
	result.ProcessingTime = time.Since(start).Seconds()
	result.ProcessedAt = time.Now().UTC()

	p.logger.Info(ctx, "processed feedback: status=%s added=%d updated=%d",
		result.Status, result.BulletsAdded, result.BulletsUpdated)
	p.appendLog(ctx, result)
	return result
}

func (p *Pipeline) run(ctx context.Context, feedbackID string) Result {
	if err := errors.CheckContext(ctx, "feedback processing"); err != nil {
		return Result{Status: StatusFailed, ErrorMessage: err.Error()}
	}

	fb, err := p.feedback.Get(feedbackID)
	if err != nil {
		p.logger.Warn(ctx, "feedback lookup failed: %v", err)
		return Result{Status: StatusFailed, ErrorMessage: "feedback record not found: " + feedbackID}
	}

	turn, err := p.chats.Get(feedbackID)
	if err != nil {
		p.logger.Warn(ctx, "chat turn lookup failed: %v", err)
		return Result{Status: StatusFailed, ErrorMessage: "chat turn not found for feedback: " + feedbackID}
	}

	insight, rerr := p.reflector.Reflect(ctx, turn, fb)
	if rerr != nil {
		p.logger.Warn(ctx, "reflection failed, continuing without insight: %v", rerr)
		insight = nil
	}

	p.mutate.Lock()
	defer p.mutate.Unlock()

	delta := p.computeDelta(ctx, insight, fb)

	var mergeErr error
	if !delta.Empty() {
		mergeErr = p.merger.Merge(ctx, delta)
		if mergeErr != nil {
			p.logger.Error(ctx, "merge failed (applied operations stand): %v", mergeErr)
		}
	}

	// Usage counters run regardless of what the delta did. The bullets that
	// were surfaced in the original turn earned this feedback even if the
	// insight went nowhere.
	p.updateUsageCounters(ctx, turn, fb)

	result := Result{
		Status:         StatusCompleted,
		BulletsAdded:   delta.AddCount(),
		BulletsUpdated: delta.UpdateCount(),
	}
	if insight != nil {
		result.InsightsGenerated = 1
	}
	if rerr != nil {
		result.Status = StatusInsightUnavailable
	}
	if mergeErr != nil {
		result.Status = StatusFailed
		result.ErrorMessage = mergeErr.Error()
	}
	return result
}

// computeDelta routes to the specialized curator paths based on the
// feedback, not the insight. The curator stays routing-agnostic.
func (p *Pipeline) computeDelta(ctx context.Context, insight *reflection.Insight, fb *feedback.Record) curator.Delta {
	switch {
	case fb.IsNegative():
		return p.curator.ComputeNegative(ctx, insight, fb.FeedbackID)
	case fb.IsPositive():
		return p.curator.ComputePositive(ctx, insight, fb.FeedbackID)
	default:
		return p.curator.Compute(ctx, insight, fb.FeedbackID)
	}
}

func (p *Pipeline) updateUsageCounters(ctx context.Context, turn *chats.Turn, fb *feedback.Record) {
	if len(turn.UsedBullets) == 0 {
		return
	}

	helpful := fb.IsPositive()
	if !helpful && !fb.IsNegative() {
		return // rating 3 or an unmapped type, no signal either way
	}

	updated := 0
	for _, id := range turn.UsedBullets {
		if p.playbook.UpdateCounters(id, helpful) {
			updated++
		} else {
			p.logger.Debug(ctx, "used bullet %s no longer in playbook", id)
		}
	}
	p.logger.Debug(ctx, "usage counters updated for %d/%d bullets (helpful=%t)",
		updated, len(turn.UsedBullets), helpful)
}

// appendLog rewrites the cumulative processing log with the new result
// appended. The log is one JSON array; it stays small enough in practice
// that rewriting it per event has not been worth changing.
func (p *Pipeline) appendLog(ctx context.Context, result Result) {
	if p.logPath == "" {
		return
	}

	p.logMu.Lock()
	defer p.logMu.Unlock()

	var results []Result
	if data, err := os.ReadFile(p.logPath); err == nil {
		if err := json.Unmarshal(data, &results); err != nil {
			p.logger.Warn(ctx, "processing log unreadable, starting fresh: %v", err)
			results = nil
		}
	}
	results = append(results, result)

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		p.logger.Error(ctx, "marshaling processing log: %v", err)
		return
	}
	if err := os.WriteFile(p.logPath, data, 0644); err != nil {
		p.logger.Error(ctx, "writing processing log: %v", err)
	}
}
