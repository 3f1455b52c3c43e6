package analyzer

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"brandscout/internal/config"
	"brandscout/internal/contentai"
	"brandscout/internal/model"
)

// Per-video enrichment pricing.
const (
	transcriptCost   = 0.01 // flat, caption/transcript pass
	videoCostPerMin  = 0.15 // full-video pass, per minute
	methodVideo      = "video"
	methodTranscript = "transcript"
)

// topVideos selects the top-k items by view count. Ties keep fetch
// order, so the stable sort matters.
func topVideos(items []model.Item, k int) []model.Item {
	videos := make([]model.Item, 0, len(items))
	for _, it := range items {
		if it.DurationS > 0 || it.Platform == model.PlatformVideo {
			videos = append(videos, it)
		}
	}
	sort.SliceStable(videos, func(i, j int) bool { return videos[i].Views > videos[j].Views })
	if len(videos) > k {
		videos = videos[:k]
	}
	return videos
}

// enrichmentCost estimates one item's analysis cost: short videos get
// the full-video rate per minute, everything else the transcript rate.
func enrichmentCost(item model.Item, tier config.TierConfig) (string, float64) {
	if item.DurationS > 0 && (tier.MaxVideoSeconds == 0 || item.DurationS <= int64(tier.MaxVideoSeconds)) {
		minutes := float64(item.DurationS) / 60
		if minutes < 1 {
			minutes = 1
		}
		return methodVideo, minutes * videoCostPerMin
	}
	return methodTranscript, transcriptCost
}

// enrichVideos runs the per-video analysis pass over the top items by
// views. One bad item never kills the run.
func (a *Analyzer) enrichVideos(ctx context.Context, pool []model.Item, brandContext string, tier config.TierConfig, log *logrus.Entry) ([]model.VideoInsight, float64) {
	k := tier.MaxVideos
	if k <= 0 {
		return nil, 0
	}
	var (
		insights []model.VideoInsight
		cost     float64
	)
	for _, item := range topVideos(pool, k) {
		insight, usage, err := a.analyzeOne(ctx, item, brandContext)
		if err != nil {
			log.WithError(err).WithField("item", item.ID).Warn("video enrichment failed for item")
			continue
		}
		method, c := enrichmentCost(item, tier)
		insight.Method = method
		cost += c + contentai.Cost(a.cfg.ContentAI.Model, usage)
		insights = append(insights, insight)
		if item.AccountID != 0 {
			if err := a.db.SetItemScores(ctx, item.AccountID, item.ID, insight.SafetyScore, insight.RelevanceScore); err != nil {
				log.WithError(err).WithField("item", item.ID).Warn("item score writeback failed")
			}
		}
	}
	return insights, cost
}

// analyzeOne isolates a single enrichment call so a panic in response
// handling is contained to that item.
func (a *Analyzer) analyzeOne(ctx context.Context, item model.Item, brandContext string) (insight model.VideoInsight, usage model.TokenUsage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &AnalysisError{Stage: "video enrichment", Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return a.scorer.AnalyzeVideo(ctx, item, brandContext)
}
