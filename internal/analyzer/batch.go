package analyzer

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchResult is one creator's outcome within a batch run.
type BatchResult struct {
	CreatorID int64
	Result    RunResult
	Err       error
}

// AnalyzeBatch runs the pipeline for every creator against one brief
// with a bounded worker pool. One creator's failure never aborts the
// others; each slot carries its own error. Results are ordered like
// the input.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, briefID int64, creatorIDs []int64, opts RunOptions, concurrency int) []BatchResult {
	if concurrency <= 0 {
		concurrency = 3
	}
	results := make([]BatchResult, len(creatorIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, id := range creatorIDs {
		g.Go(func() error {
			res, err := a.AnalyzeCreator(gctx, id, briefID, opts)
			results[i] = BatchResult{CreatorID: id, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
