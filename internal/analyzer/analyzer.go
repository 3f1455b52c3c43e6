package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"brandscout/internal/config"
	"brandscout/internal/contentai"
	"brandscout/internal/metrics"
	"brandscout/internal/model"
	"brandscout/internal/platform"
	"brandscout/internal/research"
	"brandscout/internal/scoring"
	"brandscout/internal/store"
)

// AnalysisError is a pipeline failure that aborts one run. Partial
// platform failures are not AnalysisErrors; the run continues past them.
type AnalysisError struct {
	RunID string
	Stage string
	Err   error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis %s (run %s): %v", e.Stage, e.RunID, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// ContentScorer is the content-analysis surface the pipeline needs.
type ContentScorer interface {
	ScoreContent(ctx context.Context, items []model.Item, brandContext, promptOverride string) (model.ContentScores, error)
	AnalyzeVideo(ctx context.Context, item model.Item, brandContext string) (model.VideoInsight, model.TokenUsage, error)
}

// Researcher runs one deduplicated research query.
type Researcher interface {
	Run(ctx context.Context, query, queryType string, creatorID, accountID int64) (model.ResearchCacheEntry, error)
}

// ClientFactory resolves a platform client. Swappable in tests.
type ClientFactory func(p model.Platform) (platform.Client, error)

// RunOptions control one analysis run.
type RunOptions struct {
	Tier           string
	PromptOverride string
	// Progress receives stage transitions with a fraction in [0,1].
	// Reported fractions never decrease. May be nil.
	Progress func(stage string, frac float64)
}

// RunResult is the outcome of one creator analysis.
type RunResult struct {
	RunID   string
	Report  model.AnalysisReport
	Scores  model.ContentScores
	Fit     model.FitScore
	Skipped []string // platforms that failed and were skipped
	Cost    float64  // total run cost including post-report research
}

// Analyzer orchestrates the full creator analysis pipeline.
type Analyzer struct {
	db         *store.DB
	cfg        config.Config
	scorer     ContentScorer
	engine     *scoring.Engine
	researcher Researcher // nil disables deep research
	clients    ClientFactory
	log        *logrus.Entry
	now        func() time.Time
}

func New(db *store.DB, cfg config.Config, scorer ContentScorer, engine *scoring.Engine, researcher Researcher, clients ClientFactory, logger *logrus.Entry) *Analyzer {
	return &Analyzer{
		db:         db,
		cfg:        cfg,
		scorer:     scorer,
		engine:     engine,
		researcher: researcher,
		clients:    clients,
		log:        logger.WithField("component", "analyzer"),
		now:        time.Now,
	}
}

// progressSink wraps the caller's sink so reported fractions only move
// forward.
type progressSink struct {
	fn   func(stage string, frac float64)
	last float64
}

func (p *progressSink) report(stage string, frac float64) {
	if frac < p.last {
		frac = p.last
	}
	if frac > 1 {
		frac = 1
	}
	p.last = frac
	if p.fn != nil {
		p.fn(stage, frac)
	}
}

// AnalyzeCreator runs the staged pipeline for one (creator, brief)
// pair: profile stats, recent content, aggregated content scoring,
// tier-gated video enrichment, fit scoring, report persistence, then
// optional deep research with demographics writeback.
func (a *Analyzer) AnalyzeCreator(ctx context.Context, creatorID, briefID int64, opts RunOptions) (res RunResult, err error) {
	metrics.AnalysisRuns.Inc()
	start := a.now()
	defer metrics.ObserveAnalysisDuration(start)

	runID := uuid.NewString()
	// A panic anywhere in the pipeline fails this run, never the process.
	// Batch runs hold other creators' goroutines on the same contract.
	defer func() {
		if r := recover(); r != nil {
			metrics.AnalysisErrors.Inc()
			res = RunResult{RunID: runID}
			err = &AnalysisError{RunID: runID, Stage: "pipeline", Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	log := a.log.WithFields(logrus.Fields{"run_id": runID, "creator_id": creatorID, "brief_id": briefID})
	progress := &progressSink{fn: opts.Progress}
	fail := func(stage string, err error) (RunResult, error) {
		metrics.AnalysisErrors.Inc()
		return RunResult{RunID: runID}, &AnalysisError{RunID: runID, Stage: stage, Err: err}
	}

	creator, err := a.db.GetCreator(ctx, creatorID)
	if err != nil {
		return fail("load creator", err)
	}
	brief, err := a.db.GetBrief(ctx, briefID)
	if err != nil {
		return fail("load brief", err)
	}
	tier := a.cfg.Tier(opts.Tier)
	accounts, err := a.db.ListAccounts(ctx, creatorID)
	if err != nil {
		return fail("load accounts", err)
	}
	progress.report("loaded", 0.05)
	log.WithFields(logrus.Fields{"tier": tier.Name, "accounts": len(accounts)}).Info("analysis started")

	var (
		totalFollowers int64
		platformCount  int
		pool           []model.Item
		skipped        []string
	)
	statsSpan := 0.40
	for i, acct := range accounts {
		metrics.PlatformFetches.WithLabelValues(string(acct.Platform)).Inc()
		client, err := a.clients(acct.Platform)
		if err != nil {
			metrics.PlatformErrors.WithLabelValues(string(acct.Platform)).Inc()
			skipped = append(skipped, string(acct.Platform))
			log.WithError(err).WithField("platform", acct.Platform).Warn("no client for platform, skipping")
			continue
		}

		stats, err := client.ProfileStats(ctx, acct.ProfileURL)
		if err != nil {
			metrics.PlatformErrors.WithLabelValues(string(acct.Platform)).Inc()
			skipped = append(skipped, string(acct.Platform))
			log.WithError(err).WithField("platform", acct.Platform).Warn("profile fetch failed, skipping platform")
			continue
		}
		totalFollowers += stats.Followers
		platformCount++
		if _, err := a.db.AddSnapshot(ctx, model.PlatformSnapshot{
			AccountID:      acct.ID,
			Followers:      stats.Followers,
			Following:      stats.Following,
			TotalPosts:     stats.TotalPosts,
			EngagementRate: stats.EngagementRate,
			Source:         stats.Source,
			SnapshotAt:     a.now().UTC(),
		}); err != nil {
			return fail("persist snapshot", err)
		}
		_ = a.db.TouchAccount(ctx, acct.ID, a.now().UTC())

		if tier.MaxItems > 0 {
			items, err := client.RecentItems(ctx, acct.ProfileURL, a.cfg.Platforms.SinceDays, tier.MaxItems)
			if err != nil {
				metrics.PlatformErrors.WithLabelValues(string(acct.Platform)).Inc()
				log.WithError(err).WithField("platform", acct.Platform).Warn("item fetch failed, continuing with stats only")
			} else if len(items) > 0 {
				for j := range items {
					items[j].AccountID = acct.ID
				}
				if err := a.db.SaveItems(ctx, acct.ID, items); err != nil {
					return fail("persist items", err)
				}
				pool = append(pool, items...)
			}
		}
		progress.report("fetching", 0.05+statsSpan*float64(i+1)/float64(len(accounts)))
	}
	progress.report("fetched", 0.45)

	scores, scoringCost, err := a.scorePool(ctx, pool, brief, opts.PromptOverride, log)
	if err != nil {
		return fail("content scoring", err)
	}
	cost := scoringCost
	progress.report("scored", 0.65)

	var insights []model.VideoInsight
	if tier.AnalyzeVideos && len(pool) > 0 {
		var videoCost float64
		insights, videoCost = a.enrichVideos(ctx, pool, brief.BrandContext, tier, log)
		cost += videoCost
	}
	progress.report("enriched", 0.75)

	fit := a.engine.ComputeFitScore(scores.SafetyScore, scores.AuthenticityScore, scores.AlignmentScore, totalFollowers)
	strengths, concerns := scoring.StrengthsConcerns(scores, totalFollowers, platformCount)
	strengths = append(strengths, scores.Strengths...)
	concerns = append(concerns, scores.PotentialConcerns...)
	if len(pool) == 0 {
		concerns = append(concerns, "No recent content available; scores are low confidence")
	}
	recs := scoring.Recommendations(fit, scores)

	report := model.AnalysisReport{
		BriefID:         briefID,
		CreatorID:       creatorID,
		OverallScore:    fit.Overall,
		AlignmentScore:  scores.AlignmentScore,
		Summary:         Summary(creator.Name, fit, scores, platformCount),
		Strengths:       strengths,
		Concerns:        concerns,
		Recommendations: recs,
		Cost:            cost,
		ModelUsed:       a.cfg.ContentAI.Model,
		VideoInsights:   insights,
		GeneratedAt:     a.now().UTC(),
	}
	// The report lands before deep research so a slow or failed job
	// never loses the scoring work.
	reportID, err := a.db.AddReport(ctx, report)
	if err != nil {
		return fail("persist report", err)
	}
	report.ID = reportID
	progress.report("report saved", 0.85)

	if tier.DeepResearch && a.researcher != nil {
		researchCost, err := a.runResearch(ctx, creator, accounts, log)
		if err != nil {
			log.WithError(err).Warn("deep research failed, report already saved")
		}
		cost += researchCost
	}
	progress.report("done", 1.0)
	log.WithFields(logrus.Fields{"overall": fit.Overall, "cost": cost}).Info("analysis finished")

	return RunResult{
		RunID:   runID,
		Report:  report,
		Scores:  scores,
		Fit:     fit,
		Skipped: skipped,
		Cost:    cost,
	}, nil
}

// scorePool scores the aggregated item pool once. An empty pool yields
// neutral scores instead of a service call.
func (a *Analyzer) scorePool(ctx context.Context, pool []model.Item, brief model.Brief, promptOverride string, log *logrus.Entry) (model.ContentScores, float64, error) {
	if len(pool) == 0 {
		log.Warn("no content items fetched, using neutral scores")
		return model.ContentScores{
			SafetyScore:       3.0,
			AuthenticityScore: 3.0,
			AlignmentScore:    3.0,
			Mentions:          model.BrandMentions{Examples: []string{}},
		}, 0, nil
	}
	scores, err := a.scorer.ScoreContent(ctx, pool, brief.BrandContext, promptOverride)
	if err != nil {
		return model.ContentScores{}, 0, err
	}
	return scores, contentai.Cost(a.cfg.ContentAI.Model, scores.Usage), nil
}

// runResearch executes the demographics lookup and writes the result
// onto each account's newest snapshot.
func (a *Analyzer) runResearch(ctx context.Context, creator model.Creator, accounts []model.SocialAccount, log *logrus.Entry) (float64, error) {
	query := research.DemographicsQuery(creator.Name, accounts)
	entry, err := a.researcher.Run(ctx, query, research.QueryDemographics, creator.ID, 0)
	if err != nil {
		return 0, err
	}
	for _, acct := range accounts {
		if err := a.db.SetSnapshotDemographics(ctx, acct.ID, entry.Result); err != nil {
			log.WithError(err).WithField("account_id", acct.ID).Warn("demographics writeback failed")
		}
	}
	return entry.Cost, nil
}
