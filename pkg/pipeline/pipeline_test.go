package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/ace-go/internal/testutil"
	"github.com/XiaoConstantine/ace-go/pkg/chats"
	"github.com/XiaoConstantine/ace-go/pkg/curator"
	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/feedback"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
	"github.com/XiaoConstantine/ace-go/pkg/reflection"
)

type fixture struct {
	pipeline  *Pipeline
	playbook  *playbook.Store
	feedback  *feedback.Store
	chats     *chats.Store
	reflector *testutil.MockReflector
	logDir    string
}

func newFixture(t *testing.T, insight *reflection.Insight) *fixture {
	t.Helper()
	f := newFixtureWithReflector(t, testutil.NewMockReflector(insight))
	return f
}

func newFixtureWithReflector(t *testing.T, reflector reflection.Reflector) *fixture {
	t.Helper()

	provider := testutil.NewMockEmbeddingProvider(16)
	pb, err := playbook.NewStore(t.TempDir(), provider)
	require.NoError(t, err)

	fs, err := feedback.NewStore(t.TempDir())
	require.NoError(t, err)

	cs, err := chats.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	cur := curator.New(pb)
	merger, err := curator.NewMerger(pb, t.TempDir())
	require.NoError(t, err)

	logDir := t.TempDir()

	p, err := New(Deps{
		Playbook:  pb,
		Feedback:  fs,
		Chats:     cs,
		Reflector: reflector,
		Curator:   cur,
		Merger:    merger,
		LogDir:    logDir,
	})
	require.NoError(t, err)

	f := &fixture{
		pipeline: p,
		playbook: pb,
		feedback: fs,
		chats:    cs,
		logDir:   logDir,
	}
	if mock, ok := reflector.(*testutil.MockReflector); ok {
		f.reflector = mock
	}
	return f
}

func (f *fixture) seed(t *testing.T, rec feedback.Record, usedBullets []string) {
	t.Helper()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	require.NoError(t, f.feedback.Save(rec))
	require.NoError(t, f.chats.Save(chats.Turn{
		FeedbackID:    rec.FeedbackID,
		UserID:        rec.UserID,
		Question:      rec.Question,
		ModelResponse: rec.ModelResponse,
		UsedBullets:   usedBullets,
		CreatedAt:     time.Now(),
	}))
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.InvalidInput))
}

func TestProcessUnknownFeedback(t *testing.T) {
	f := newFixture(t, nil)
	result := f.pipeline.Process(context.Background(), "fb-missing")

	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.ErrorMessage, "fb-missing")
	assert.False(t, result.Succeeded())
}

func TestProcessMissingChatTurn(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.feedback.Save(feedback.Record{
		FeedbackID: "fb-1",
		Rating:     5,
		Timestamp:  time.Now(),
	}))

	result := f.pipeline.Process(context.Background(), "fb-1")
	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.ErrorMessage, "chat turn")
	assert.Equal(t, 0, f.reflector.Calls())
}

func TestProcessPositiveUpdatesUsedBullets(t *testing.T) {
	insight := &reflection.Insight{
		ErrorIdentification: "no error",
		KeyInsight:          "Lead with the direct answer.",
		Confidence:          0.8,
	}
	f := newFixture(t, insight)
	ctx := context.Background()

	b1, err := f.playbook.Add(ctx, "Always confirm units before calculating.", "Calculation Strategies")
	require.NoError(t, err)
	b2, err := f.playbook.Add(ctx, "Cite sources when researching topics.", "Search Strategies")
	require.NoError(t, err)

	f.seed(t, feedback.Record{FeedbackID: "fb-2", Rating: 5}, []string{b1, b2})

	result := f.pipeline.Process(ctx, "fb-2")
	require.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 1, result.InsightsGenerated)
	assert.Equal(t, 1, result.BulletsAdded)
	assert.Equal(t, 0, result.BulletsUpdated)

	for _, id := range []string{b1, b2} {
		b, ok := f.playbook.Get(id)
		require.True(t, ok)
		assert.Equal(t, 1, b.Helpful, id)
		assert.Equal(t, 0, b.Harmful, id)
	}

	// Positive routing adds a success-pattern bullet.
	assert.Equal(t, 3, f.playbook.Len())
}

func TestProcessNegativeAddsAntiPattern(t *testing.T) {
	insight := &reflection.Insight{
		ErrorIdentification: "the answer skipped the unit conversion",
		CorrectApproach:     "Convert to a single unit first.",
		KeyInsight:          "Convert units before comparing.",
		Confidence:          0.7,
	}
	f := newFixture(t, insight)
	ctx := context.Background()

	b1, err := f.playbook.Add(ctx, "Always confirm units before calculating.", "Calculation Strategies")
	require.NoError(t, err)

	f.seed(t, feedback.Record{FeedbackID: "fb-3", Rating: 1}, []string{b1})

	result := f.pipeline.Process(ctx, "fb-3")
	require.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 1, result.BulletsAdded)

	b, ok := f.playbook.Get(b1)
	require.True(t, ok)
	assert.Equal(t, 0, b.Helpful)
	assert.Equal(t, 1, b.Harmful)

	stats := f.playbook.Stats()
	assert.Equal(t, 1, stats.Sections[curator.AntiPatternsSection])
}

func TestProcessNeutralLeavesCountersAlone(t *testing.T) {
	// Confidence above acceptance but below reinforcement: the matched
	// bullet gets an UPDATE with zero increments, so any counter change
	// could only come from the usage step.
	insight := &reflection.Insight{
		ErrorIdentification: "no error",
		KeyInsight:          "Summaries help for long answers.",
		Confidence:          0.6,
	}
	f := newFixture(t, insight)
	ctx := context.Background()

	b1, err := f.playbook.Add(ctx, "Always confirm units before calculating.", "Calculation Strategies")
	require.NoError(t, err)

	f.seed(t, feedback.Record{FeedbackID: "fb-4", Rating: 3}, []string{b1})

	result := f.pipeline.Process(ctx, "fb-4")
	require.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 1, result.BulletsUpdated)

	b, ok := f.playbook.Get(b1)
	require.True(t, ok)
	assert.Equal(t, 0, b.Helpful)
	assert.Equal(t, 0, b.Harmful)
}

func TestProcessReflectionFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.reflector.FailWith(errors.New(errors.ReflectionFailed, "model unreachable"))
	ctx := context.Background()

	b1, err := f.playbook.Add(ctx, "Always confirm units before calculating.", "Calculation Strategies")
	require.NoError(t, err)

	f.seed(t, feedback.Record{FeedbackID: "fb-5", Rating: 5}, []string{b1})

	result := f.pipeline.Process(ctx, "fb-5")
	assert.Equal(t, StatusInsightUnavailable, result.Status)
	assert.Equal(t, 0, result.InsightsGenerated)
	assert.Equal(t, 0, result.BulletsAdded)
	assert.True(t, result.Succeeded())

	// Usage counters run even when reflection is down.
	b, ok := f.playbook.Get(b1)
	require.True(t, ok)
	assert.Equal(t, 1, b.Helpful)
}

func TestProcessingLogAccumulates(t *testing.T) {
	f := newFixture(t, nil)

	f.pipeline.Process(context.Background(), "fb-a")
	f.pipeline.Process(context.Background(), "fb-b")

	data, err := os.ReadFile(filepath.Join(f.logDir, "processing_log.json"))
	require.NoError(t, err)

	var results []Result
	require.NoError(t, json.Unmarshal(data, &results))
	require.Len(t, results, 2)
	assert.Equal(t, "fb-a", results[0].FeedbackID)
	assert.Equal(t, "fb-b", results[1].FeedbackID)
	assert.Equal(t, StatusFailed, results[0].Status)
}

func TestProcessBatch(t *testing.T) {
	insight := &reflection.Insight{
		ErrorIdentification: "no error",
		KeyInsight:          "Lead with the direct answer.",
		Confidence:          0.8,
	}
	f := newFixture(t, insight)
	ctx := context.Background()

	ids := []string{"fb-b1", "fb-b2", "fb-b3"}
	for _, id := range ids {
		f.seed(t, feedback.Record{FeedbackID: id, Rating: 5}, nil)
	}

	summary := f.pipeline.ProcessBatch(ctx, append(ids, "fb-gone"), 2)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Results, 4)
	assert.Equal(t, "fb-gone", summary.Results[3].FeedbackID)

	entries, err := os.ReadDir(f.logDir)
	require.NoError(t, err)
	var batchLogs int
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "batch_") {
			batchLogs++
		}
	}
	assert.Equal(t, 1, batchLogs)
}

// stallingReflector delays one feedback id so its pipeline run finishes
// after later submissions.
type stallingReflector struct {
	insight *reflection.Insight
	stallID string
}

func (r *stallingReflector) Reflect(ctx context.Context, turn *chats.Turn, fb *feedback.Record) (*reflection.Insight, error) {
	if fb.FeedbackID == r.stallID {
		time.Sleep(200 * time.Millisecond)
	}
	return r.insight, nil
}

func TestProcessBatchKeepsSubmissionOrder(t *testing.T) {
	insight := &reflection.Insight{
		ErrorIdentification: "no error",
		KeyInsight:          "Lead with the direct answer.",
		Confidence:          0.8,
	}
	f := newFixtureWithReflector(t, &stallingReflector{insight: insight, stallID: "fb-slow"})
	ctx := context.Background()

	ids := []string{"fb-slow", "fb-q1", "fb-q2", "fb-q3"}
	for _, id := range ids {
		f.seed(t, feedback.Record{FeedbackID: id, Rating: 5}, nil)
	}

	// The first-submitted id completes last; results must still line up
	// with the submitted ids.
	summary := f.pipeline.ProcessBatch(ctx, ids, 2)
	require.Len(t, summary.Results, len(ids))
	for i, id := range ids {
		assert.Equal(t, id, summary.Results[i].FeedbackID)
	}
}

func TestProcessBatchEmpty(t *testing.T) {
	f := newFixture(t, nil)
	summary := f.pipeline.ProcessBatch(context.Background(), nil, 2)
	assert.Equal(t, 0, summary.Total)
	assert.Empty(t, summary.Results)
}
