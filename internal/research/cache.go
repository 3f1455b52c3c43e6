package research

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"brandscout/internal/metrics"
	"brandscout/internal/model"
)

// CacheStore persists research results keyed by query hash.
type CacheStore interface {
	// GetResearchEntry returns the entry for a hash. ok is false when
	// no entry exists.
	GetResearchEntry(ctx context.Context, queryHash string) (model.ResearchCacheEntry, bool, error)
	// PutResearchEntry upserts an entry by query hash, last write wins.
	PutResearchEntry(ctx context.Context, entry model.ResearchCacheEntry) error
}

// Runner deduplicates research jobs through the cache. Identical query
// text within the TTL is served from cache without submitting a job.
type Runner struct {
	client    *Client
	store     CacheStore
	cacheDays int
	log       *logrus.Entry
	now       func() time.Time
}

func NewRunner(client *Client, store CacheStore, cacheDays int, logger *logrus.Entry) *Runner {
	if cacheDays <= 0 {
		cacheDays = 90
	}
	return &Runner{
		client:    client,
		store:     store,
		cacheDays: cacheDays,
		log:       logger.WithField("component", "research"),
		now:       time.Now,
	}
}

// Run executes one research query with cache dedupe. Only completed,
// unexpired entries count as hits; pending or failed entries never do.
func (r *Runner) Run(ctx context.Context, query, queryType string, creatorID, accountID int64) (model.ResearchCacheEntry, error) {
	hash := QueryHash(query)
	now := r.now().UTC()

	if cached, ok, err := r.store.GetResearchEntry(ctx, hash); err != nil {
		return model.ResearchCacheEntry{}, err
	} else if ok && cached.Status == model.JobCompleted && !cached.Expired(now) {
		metrics.ResearchCacheHits.Inc()
		r.log.WithFields(logrus.Fields{"query_type": queryType, "job_id": cached.JobID}).
			Info("research cache hit")
		return cached, nil
	}
	metrics.ResearchCacheMisses.Inc()

	jobID, err := r.client.StartJob(ctx, query)
	if err != nil {
		metrics.ResearchJobFailures.Inc()
		return model.ResearchCacheEntry{}, err
	}

	result, err := r.client.PollUntilDone(ctx, jobID, 0)
	if err != nil {
		metrics.ResearchJobFailures.Inc()
		// Record the failure for inspection. Failed entries are never
		// served as hits.
		_ = r.store.PutResearchEntry(ctx, model.ResearchCacheEntry{
			QueryHash: hash,
			QueryText: query,
			QueryType: queryType,
			CreatorID: creatorID,
			AccountID: accountID,
			JobID:     jobID,
			Status:    model.JobFailed,
			CreatedAt: now,
		})
		return model.ResearchCacheEntry{}, err
	}

	entry := model.ResearchCacheEntry{
		QueryHash:    hash,
		QueryText:    query,
		QueryType:    queryType,
		CreatorID:    creatorID,
		AccountID:    accountID,
		JobID:        jobID,
		Status:       model.JobCompleted,
		Result:       result.Output,
		Cost:         result.Cost,
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
		CreatedAt:    now,
		CompletedAt:  r.now().UTC(),
		ExpiresAt:    r.now().UTC().AddDate(0, 0, r.cacheDays),
	}
	if err := r.store.PutResearchEntry(ctx, entry); err != nil {
		return model.ResearchCacheEntry{}, err
	}
	return entry, nil
}
