package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/sourcegraph/conc/pool"
)

const defaultBatchWorkers = 3

// BatchSummary records one batch run over a set of feedback ids.
type BatchSummary struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Total       int       `json:"total"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Results     []Result  `json:"results"`
}

// ProcessBatch runs the pipeline over every id with a bounded worker pool.
// Workers suspend on the embedding and reflection network calls; playbook
// mutations are still serialized by the pipeline's mutation lock. Results
// come back in submission order.
func (p *Pipeline) ProcessBatch(ctx context.Context, feedbackIDs []string, workers int) BatchSummary {
	if workers <= 0 {
		workers = defaultBatchWorkers
	}
	summary := BatchSummary{StartedAt: time.Now().UTC(), Total: len(feedbackIDs)}
	if len(feedbackIDs) == 0 {
		summary.CompletedAt = summary.StartedAt
		return summary
	}

	// Results are written by submission index: conc's result pools collect
	// in completion order, which would misorder the batch log.
	results := make([]Result, len(feedbackIDs))
	runner := pool.New().WithMaxGoroutines(workers)
	for i, id := range feedbackIDs {
		i, id := i, id
		runner.Go(func() {
			results[i] = p.Process(ctx, id)
		})
	}
	runner.Wait()
	summary.Results = results
	summary.CompletedAt = time.Now().UTC()

	for i := range summary.Results {
		if summary.Results[i].Succeeded() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	p.logger.Info(ctx, "batch complete: %d/%d succeeded", summary.Succeeded, summary.Total)
	p.writeBatchLog(ctx, summary)
	return summary
}

// writeBatchLog writes one immutable JSON file per batch run next to the
// processing log.
func (p *Pipeline) writeBatchLog(ctx context.Context, summary BatchSummary) {
	if p.logPath == "" {
		return
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		p.logger.Error(ctx, "marshaling batch log: %v", err)
		return
	}
	name := "batch_" + summary.StartedAt.Format("20060102_150405") + ".json"
	path := filepath.Join(filepath.Dir(p.logPath), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		p.logger.Error(ctx, "writing batch log: %v", err)
	}
}
