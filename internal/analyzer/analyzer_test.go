package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"brandscout/internal/config"
	"brandscout/internal/logging"
	"brandscout/internal/model"
	"brandscout/internal/platform"
	"brandscout/internal/scoring"
	"brandscout/internal/store"
)

type fakeClient struct {
	stats    model.Stats
	items    []model.Item
	statsErr error
	itemsErr error
}

func (f *fakeClient) ProfileStats(context.Context, string) (model.Stats, error) {
	return f.stats, f.statsErr
}

func (f *fakeClient) RecentItems(context.Context, string, int, int) ([]model.Item, error) {
	return f.items, f.itemsErr
}

type fakeScorer struct {
	scores   model.ContentScores
	err      error
	videoErr error
	videos   int
}

func (f *fakeScorer) ScoreContent(context.Context, []model.Item, string, string) (model.ContentScores, error) {
	return f.scores, f.err
}

func (f *fakeScorer) AnalyzeVideo(_ context.Context, item model.Item, _ string) (model.VideoInsight, model.TokenUsage, error) {
	f.videos++
	if f.videoErr != nil {
		return model.VideoInsight{}, model.TokenUsage{}, f.videoErr
	}
	return model.VideoInsight{Title: item.Title, URL: item.URL, SafetyScore: 4, RelevanceScore: 4}, model.TokenUsage{}, nil
}

type fakeResearcher struct {
	called       bool
	reportExists func() bool
	sawReport    bool
	result       model.ResearchCacheEntry
	err          error
}

func (f *fakeResearcher) Run(context.Context, string, string, int64, int64) (model.ResearchCacheEntry, error) {
	f.called = true
	if f.reportExists != nil {
		f.sawReport = f.reportExists()
	}
	return f.result, f.err
}

func seed(t *testing.T, db *store.DB, platforms ...model.Platform) (creatorID, briefID int64, accountIDs []int64) {
	t.Helper()
	ctx := context.Background()
	creatorID, err := db.AddCreator(ctx, model.Creator{UserID: 1, Name: "Trail Runner"})
	if err != nil {
		t.Fatal(err)
	}
	briefID, err = db.AddBrief(ctx, model.Brief{UserID: 1, Name: "Gear Launch", BrandContext: "outdoor gear", Status: "active"})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range platforms {
		id, err := db.AddAccount(ctx, model.SocialAccount{
			CreatorID: creatorID, Platform: p,
			ProfileURL: fmt.Sprintf("https://example.com/%s/trail", p), Handle: "trail",
		})
		if err != nil {
			t.Fatal(err)
		}
		accountIDs = append(accountIDs, id)
	}
	return creatorID, briefID, accountIDs
}

func testAnalyzer(t *testing.T, db *store.DB, scorer ContentScorer, researcher Researcher, clients map[model.Platform]platform.Client) *Analyzer {
	t.Helper()
	log := logging.New("test")
	cfg := config.Default()
	factory := func(p model.Platform) (platform.Client, error) {
		if c, ok := clients[p]; ok {
			return c, nil
		}
		return nil, fmt.Errorf("no client for %s", p)
	}
	return New(db, cfg, scorer, scoring.NewEngine(model.DefaultWeights(), log), researcher, factory, log)
}

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func fiveItems() []model.Item {
	now := time.Now().UTC()
	items := make([]model.Item, 5)
	for i := range items {
		items[i] = model.Item{
			ID: fmt.Sprintf("p%d", i), Platform: model.PlatformPhotoFeed,
			Caption: "trail post", PostedAt: now.Add(-time.Duration(i) * time.Hour),
			Likes: int64(10 * (i + 1)),
		}
	}
	return items
}

func TestAnalyzeCreatorEndToEnd(t *testing.T) {
	db := openTestDB(t)
	creatorID, briefID, accountIDs := seed(t, db, model.PlatformPhotoFeed)

	scorer := &fakeScorer{scores: model.ContentScores{
		SafetyScore: 4, AuthenticityScore: 4, AlignmentScore: 2,
		Mentions: model.BrandMentions{Examples: []string{}},
	}}
	clients := map[model.Platform]platform.Client{
		model.PlatformPhotoFeed: &fakeClient{
			stats: model.Stats{Platform: model.PlatformPhotoFeed, Followers: 12, Source: model.SourceScrape},
			items: fiveItems(),
		},
	}
	a := testAnalyzer(t, db, scorer, nil, clients)

	res, err := a.AnalyzeCreator(context.Background(), creatorID, briefID, RunOptions{Tier: "quick"})
	if err != nil {
		t.Fatal(err)
	}
	// quick tier fetches no items, so use standard for the scored path.
	res, err = a.AnalyzeCreator(context.Background(), creatorID, briefID, RunOptions{Tier: "standard"})
	if err != nil {
		t.Fatal(err)
	}
	// 4*0.30 + 4*0.25 + 2*0.25 + reach(12)*0.20 rounds to 2.7.
	if res.Fit.Overall != 2.7 {
		t.Fatalf("overall = %v, want 2.7", res.Fit.Overall)
	}
	if res.RunID == "" {
		t.Fatal("run must carry an ID")
	}

	report, err := db.GetLatestReport(context.Background(), briefID, creatorID)
	if err != nil {
		t.Fatal(err)
	}
	if report.OverallScore != 2.7 {
		t.Fatalf("persisted overall = %v", report.OverallScore)
	}
	if report.Summary == "" {
		t.Fatal("report must carry a summary")
	}

	snap, err := db.LatestSnapshot(context.Background(), accountIDs[0])
	if err != nil {
		t.Fatal(err)
	}
	if snap.Followers != 12 {
		t.Fatalf("snapshot followers = %d, want 12", snap.Followers)
	}
}

func TestAnalyzeCreatorPartialFailure(t *testing.T) {
	db := openTestDB(t)
	creatorID, briefID, _ := seed(t, db, model.PlatformPhotoFeed, model.PlatformVideo)

	scorer := &fakeScorer{scores: model.ContentScores{
		SafetyScore: 4, AuthenticityScore: 4, AlignmentScore: 4,
	}}
	clients := map[model.Platform]platform.Client{
		model.PlatformPhotoFeed: &fakeClient{
			stats: model.Stats{Followers: 50000, Source: model.SourceScrape},
			items: fiveItems(),
		},
		model.PlatformVideo: &fakeClient{
			statsErr: &platform.ClientError{Platform: model.PlatformVideo, Op: "profile stats", Err: errors.New("backend down")},
		},
	}
	a := testAnalyzer(t, db, scorer, nil, clients)

	res, err := a.AnalyzeCreator(context.Background(), creatorID, briefID, RunOptions{Tier: "standard"})
	if err != nil {
		t.Fatalf("partial platform failure must not fail the run: %v", err)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != string(model.PlatformVideo) {
		t.Fatalf("skipped = %v, want the failing platform", res.Skipped)
	}
	if res.Fit.TotalFollowers != 50000 {
		t.Fatalf("followers = %d, want only the successful account's data", res.Fit.TotalFollowers)
	}
	if _, err := db.GetLatestReport(context.Background(), briefID, creatorID); err != nil {
		t.Fatal("a report must still be produced:", err)
	}
}

func TestAnalyzeCreatorNoUsableData(t *testing.T) {
	db := openTestDB(t)
	creatorID, briefID, _ := seed(t, db, model.PlatformVideo)

	scorer := &fakeScorer{err: errors.New("scorer must not be called with an empty pool")}
	clients := map[model.Platform]platform.Client{
		model.PlatformVideo: &fakeClient{
			statsErr: &platform.ClientError{Platform: model.PlatformVideo, Op: "profile stats", Err: errors.New("down")},
		},
	}
	a := testAnalyzer(t, db, scorer, nil, clients)

	res, err := a.AnalyzeCreator(context.Background(), creatorID, briefID, RunOptions{Tier: "standard"})
	if err != nil {
		t.Fatalf("zero usable data must still produce a report: %v", err)
	}
	if res.Scores.SafetyScore != 3.0 {
		t.Fatalf("safety = %v, want neutral 3.0", res.Scores.SafetyScore)
	}
	found := false
	for _, c := range res.Report.Concerns {
		if c == "No recent content available; scores are low confidence" {
			found = true
		}
	}
	if !found {
		t.Fatalf("concerns = %v, want low-confidence note", res.Report.Concerns)
	}
}

func TestAnalyzeCreatorScoringFailureAborts(t *testing.T) {
	db := openTestDB(t)
	creatorID, briefID, _ := seed(t, db, model.PlatformPhotoFeed)

	scorer := &fakeScorer{err: errors.New("service down")}
	clients := map[model.Platform]platform.Client{
		model.PlatformPhotoFeed: &fakeClient{
			stats: model.Stats{Followers: 100},
			items: fiveItems(),
		},
	}
	a := testAnalyzer(t, db, scorer, nil, clients)

	_, err := a.AnalyzeCreator(context.Background(), creatorID, briefID, RunOptions{Tier: "standard"})
	var ae *AnalysisError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want *AnalysisError", err)
	}
	if ae.Stage != "content scoring" {
		t.Fatalf("stage = %q", ae.Stage)
	}
}

func TestAnalyzeCreatorProgressMonotonic(t *testing.T) {
	db := openTestDB(t)
	creatorID, briefID, _ := seed(t, db, model.PlatformPhotoFeed)

	scorer := &fakeScorer{scores: model.ContentScores{SafetyScore: 3, AuthenticityScore: 3, AlignmentScore: 3}}
	clients := map[model.Platform]platform.Client{
		model.PlatformPhotoFeed: &fakeClient{stats: model.Stats{Followers: 1000}, items: fiveItems()},
	}
	a := testAnalyzer(t, db, scorer, nil, clients)

	var fracs []float64
	opts := RunOptions{
		Tier:     "standard",
		Progress: func(_ string, frac float64) { fracs = append(fracs, frac) },
	}
	if _, err := a.AnalyzeCreator(context.Background(), creatorID, briefID, opts); err != nil {
		t.Fatal(err)
	}
	if len(fracs) == 0 {
		t.Fatal("no progress reported")
	}
	for i := 1; i < len(fracs); i++ {
		if fracs[i] < fracs[i-1] {
			t.Fatalf("progress decreased: %v", fracs)
		}
	}
	if last := fracs[len(fracs)-1]; last != 1.0 {
		t.Fatalf("final progress = %v, want 1.0", last)
	}
}

func TestAnalyzeCreatorReportPersistedBeforeResearch(t *testing.T) {
	db := openTestDB(t)
	creatorID, briefID, accountIDs := seed(t, db, model.PlatformPhotoFeed)

	researcher := &fakeResearcher{
		reportExists: func() bool {
			_, err := db.GetLatestReport(context.Background(), briefID, creatorID)
			return err == nil
		},
		result: model.ResearchCacheEntry{
			Status: model.JobCompleted, Result: `{"age":"18-24"}`, Cost: 1.5,
		},
	}
	scorer := &fakeScorer{scores: model.ContentScores{SafetyScore: 4, AuthenticityScore: 4, AlignmentScore: 4}}
	clients := map[model.Platform]platform.Client{
		model.PlatformPhotoFeed: &fakeClient{stats: model.Stats{Followers: 1000}, items: fiveItems()},
	}
	a := testAnalyzer(t, db, scorer, researcher, clients)

	res, err := a.AnalyzeCreator(context.Background(), creatorID, briefID, RunOptions{Tier: "deep_research"})
	if err != nil {
		t.Fatal(err)
	}
	if !researcher.called {
		t.Fatal("deep_research tier must run research")
	}
	if !researcher.sawReport {
		t.Fatal("report must be persisted before research runs")
	}
	if res.Cost < 1.5 {
		t.Fatalf("cost = %v, must include research cost", res.Cost)
	}

	snap, err := db.LatestSnapshot(context.Background(), accountIDs[0])
	if err != nil {
		t.Fatal(err)
	}
	if snap.Demographics != `{"age":"18-24"}` {
		t.Fatalf("demographics = %q, want research writeback", snap.Demographics)
	}
}

func TestAnalyzeCreatorResearchFailureKeepsReport(t *testing.T) {
	db := openTestDB(t)
	creatorID, briefID, _ := seed(t, db, model.PlatformPhotoFeed)

	researcher := &fakeResearcher{err: errors.New("job failed")}
	scorer := &fakeScorer{scores: model.ContentScores{SafetyScore: 4, AuthenticityScore: 4, AlignmentScore: 4}}
	clients := map[model.Platform]platform.Client{
		model.PlatformPhotoFeed: &fakeClient{stats: model.Stats{Followers: 1000}, items: fiveItems()},
	}
	a := testAnalyzer(t, db, scorer, researcher, clients)

	if _, err := a.AnalyzeCreator(context.Background(), creatorID, briefID, RunOptions{Tier: "deep_research"}); err != nil {
		t.Fatalf("research failure must not fail the run: %v", err)
	}
	if _, err := db.GetLatestReport(context.Background(), briefID, creatorID); err != nil {
		t.Fatal("report must survive research failure:", err)
	}
}

func TestAnalyzeCreatorVideoScoreWriteback(t *testing.T) {
	db := openTestDB(t)
	creatorID, briefID, accountIDs := seed(t, db, model.PlatformVideo)

	scorer := &fakeScorer{scores: model.ContentScores{SafetyScore: 4, AuthenticityScore: 4, AlignmentScore: 4}}
	items := []model.Item{
		{ID: "v1", Platform: model.PlatformVideo, Title: "gear review", DurationS: 300, Views: 1000, PostedAt: time.Now().UTC()},
		{ID: "v2", Platform: model.PlatformVideo, Title: "vlog", DurationS: 120, Views: 200, PostedAt: time.Now().UTC()},
	}
	clients := map[model.Platform]platform.Client{
		model.PlatformVideo: &fakeClient{stats: model.Stats{Followers: 5000}, items: items},
	}
	a := testAnalyzer(t, db, scorer, nil, clients)

	res, err := a.AnalyzeCreator(context.Background(), creatorID, briefID, RunOptions{Tier: "standard"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Report.VideoInsights) != 2 {
		t.Fatalf("insights = %d, want 2", len(res.Report.VideoInsights))
	}
	saved, err := db.ListItems(context.Background(), accountIDs[0])
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range saved {
		if it.SafetyScore != 4 || it.AlignmentScore != 4 {
			t.Fatalf("item %s scores = %v/%v, want enrichment writeback", it.ID, it.SafetyScore, it.AlignmentScore)
		}
	}
}

type panicScorer struct{}

func (panicScorer) ScoreContent(context.Context, []model.Item, string, string) (model.ContentScores, error) {
	panic("malformed service state")
}

func (panicScorer) AnalyzeVideo(context.Context, model.Item, string) (model.VideoInsight, model.TokenUsage, error) {
	panic("malformed service state")
}

func TestAnalyzeCreatorPanicWrapped(t *testing.T) {
	db := openTestDB(t)
	creatorID, briefID, _ := seed(t, db, model.PlatformPhotoFeed)

	clients := map[model.Platform]platform.Client{
		model.PlatformPhotoFeed: &fakeClient{stats: model.Stats{Followers: 1000}, items: fiveItems()},
	}
	a := testAnalyzer(t, db, panicScorer{}, nil, clients)

	res, err := a.AnalyzeCreator(context.Background(), creatorID, briefID, RunOptions{Tier: "standard"})
	var ae *AnalysisError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want *AnalysisError", err)
	}
	if ae.RunID == "" || res.RunID != ae.RunID {
		t.Fatalf("run ID must survive the failure: res=%q err=%q", res.RunID, ae.RunID)
	}
	if !strings.Contains(ae.Error(), "malformed service state") {
		t.Fatalf("cause lost: %v", ae)
	}
}

func TestAnalyzeBatchSurvivesPanickingCreator(t *testing.T) {
	db := openTestDB(t)
	creatorID, briefID, _ := seed(t, db, model.PlatformPhotoFeed)
	quiet, err := db.AddCreator(context.Background(), model.Creator{UserID: 1, Name: "No Accounts"})
	if err != nil {
		t.Fatal(err)
	}

	clients := map[model.Platform]platform.Client{
		model.PlatformPhotoFeed: &fakeClient{stats: model.Stats{Followers: 1000}, items: fiveItems()},
	}
	a := testAnalyzer(t, db, panicScorer{}, nil, clients)

	// First creator's scorer panics; the account-less one never scores
	// real content and must finish with neutral scores.
	results := a.AnalyzeBatch(context.Background(), briefID, []int64{creatorID, quiet}, RunOptions{Tier: "standard"}, 2)
	if results[0].Err == nil {
		t.Fatal("panicking creator must fail its own slot")
	}
	if results[1].Err != nil {
		t.Fatalf("other creator affected: %v", results[1].Err)
	}
}

func TestAnalyzeBatch(t *testing.T) {
	db := openTestDB(t)
	creatorID, briefID, _ := seed(t, db, model.PlatformPhotoFeed)

	scorer := &fakeScorer{scores: model.ContentScores{SafetyScore: 4, AuthenticityScore: 4, AlignmentScore: 4}}
	clients := map[model.Platform]platform.Client{
		model.PlatformPhotoFeed: &fakeClient{stats: model.Stats{Followers: 1000}, items: fiveItems()},
	}
	a := testAnalyzer(t, db, scorer, nil, clients)

	// Second ID does not exist; its failure must not affect the first.
	results := a.AnalyzeBatch(context.Background(), briefID, []int64{creatorID, 999}, RunOptions{Tier: "standard"}, 2)
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}
	if results[0].CreatorID != creatorID || results[0].Err != nil {
		t.Fatalf("first = %+v", results[0])
	}
	if results[1].Err == nil {
		t.Fatal("missing creator must fail its own slot")
	}
	var ae *AnalysisError
	if !errors.As(results[1].Err, &ae) {
		t.Fatalf("batch error = %v, want *AnalysisError", results[1].Err)
	}
}
