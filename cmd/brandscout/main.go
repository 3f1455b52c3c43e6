package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"brandscout/internal/analyzer"
	"brandscout/internal/config"
	"brandscout/internal/contentai"
	"brandscout/internal/logging"
	"brandscout/internal/metrics"
	"brandscout/internal/model"
	"brandscout/internal/platform"
	"brandscout/internal/research"
	"brandscout/internal/scoring"
	"brandscout/internal/store"
	"brandscout/internal/theme"
)

func main() {
	_ = godotenv.Load()
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "creator":
		cmdCreator()
	case "brief":
		cmdBrief()
	case "analyze":
		cmdAnalyze()
	case "report":
		cmdReport()
	case "research":
		cmdResearch()
	default:
		printHelp()
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: brandscout <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init       Create a config file at ./brandscout.yaml")
	fmt.Println("  creator    Register a creator with profile URLs")
	fmt.Println("  brief      Register a campaign brief")
	fmt.Println("  analyze    Run brand-fit analysis for a brief's creators")
	fmt.Println("  report     Show the latest report for a creator")
	fmt.Println("  research   Run a demographics research lookup")
}

func fatal(err error) {
	fmt.Println("error:", err)
	os.Exit(1)
}

func mustLoad(path string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fatal(err)
	}
	metrics.StartServer(cfg.Metrics.Addr)
	return cfg
}

func mustOpen(cfg config.Config) *store.DB {
	db, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		fatal(err)
	}
	return db
}

func buildAnalyzer(cfg config.Config, db *store.DB) *analyzer.Analyzer {
	log := logging.New("brandscout")
	if cfg.Credentials.ContentAPIKey == "" {
		fmt.Println("warning: missing CONTENT_API_KEY; content scoring will fail")
	}
	deps := platform.NewDeps(cfg, log)
	scorer := contentai.New(cfg.ContentAI, cfg.Credentials.ContentAPIKey, deps.Retry, log)
	engine := scoring.NewEngine(cfg.Scoring.Weights, log)

	var researcher analyzer.Researcher
	if cfg.Credentials.ResearchAPIKey != "" {
		client := research.NewClient(cfg.Research, cfg.Credentials.ResearchAPIKey, log)
		researcher = research.NewRunner(client, db, cfg.Research.CacheDays, log)
	}
	clients := func(p model.Platform) (platform.Client, error) {
		return platform.ForPlatform(p, deps)
	}
	return analyzer.New(db, cfg, scorer, engine, researcher, clients, log)
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./brandscout.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	if err := config.Save(*path, config.Default()); err != nil {
		fatal(err)
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
}

func cmdCreator() {
	fs := flag.NewFlagSet("creator", flag.ExitOnError)
	cfgPath := fs.String("config", "./brandscout.yaml", "config path")
	name := fs.String("name", "", "creator name")
	urls := fs.String("urls", "", "comma-separated profile URLs")
	_ = fs.Parse(os.Args[2:])
	if *name == "" || *urls == "" {
		fatal(fmt.Errorf("creator requires -name and -urls"))
	}
	cfg := mustLoad(*cfgPath)
	db := mustOpen(cfg)
	defer db.Close()
	ctx := context.Background()

	id, err := db.AddCreator(ctx, model.Creator{UserID: 1, Name: *name})
	if err != nil {
		fatal(err)
	}
	for _, u := range strings.Split(*urls, ",") {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		p := platform.DetectPlatform(u)
		if p == "" {
			fmt.Printf("skipping %s: unrecognized platform\n", u)
			continue
		}
		if _, err := db.AddAccount(ctx, model.SocialAccount{
			CreatorID:  id,
			Platform:   p,
			ProfileURL: u,
			Handle:     platform.ExtractHandle(u, p),
		}); err != nil {
			fatal(err)
		}
		fmt.Printf("linked %s account: %s\n", p, u)
	}
	fmt.Println("Creator ID:", id)
}

func cmdBrief() {
	fs := flag.NewFlagSet("brief", flag.ExitOnError)
	cfgPath := fs.String("config", "./brandscout.yaml", "config path")
	name := fs.String("name", "", "brief name")
	brandCtx := fs.String("context", "", "brand context text")
	creators := fs.String("creators", "", "comma-separated creator IDs")
	_ = fs.Parse(os.Args[2:])
	if *name == "" || *brandCtx == "" {
		fatal(fmt.Errorf("brief requires -name and -context"))
	}
	cfg := mustLoad(*cfgPath)
	db := mustOpen(cfg)
	defer db.Close()
	ctx := context.Background()

	id, err := db.AddBrief(ctx, model.Brief{UserID: 1, Name: *name, BrandContext: *brandCtx, Status: "active"})
	if err != nil {
		fatal(err)
	}
	for _, s := range strings.Split(*creators, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		var cid int64
		if _, err := fmt.Sscanf(s, "%d", &cid); err != nil {
			continue
		}
		if err := db.LinkBriefCreator(ctx, id, cid); err != nil {
			fatal(err)
		}
	}
	fmt.Println("Brief ID:", id)
}

func cmdAnalyze() {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	cfgPath := fs.String("config", "./brandscout.yaml", "config path")
	briefID := fs.Int64("brief", 0, "brief ID")
	tier := fs.String("tier", "standard", "analysis tier: quick, standard, deep, deep_research")
	workers := fs.Int("workers", 3, "parallel creator analyses")
	_ = fs.Parse(os.Args[2:])
	if *briefID == 0 {
		fatal(fmt.Errorf("analyze requires -brief"))
	}
	cfg := mustLoad(*cfgPath)
	db := mustOpen(cfg)
	defer db.Close()
	ctx := context.Background()

	creatorIDs, err := db.BriefCreators(ctx, *briefID)
	if err != nil {
		fatal(err)
	}
	if len(creatorIDs) == 0 {
		fatal(fmt.Errorf("brief %d has no creators linked", *briefID))
	}
	theme.PrintBanner()
	a := buildAnalyzer(cfg, db)
	opts := analyzer.RunOptions{
		Tier: *tier,
		Progress: func(stage string, frac float64) {
			fmt.Printf("  [%3.0f%%] %s\n", frac*100, stage)
		},
	}
	results := a.AnalyzeBatch(ctx, *briefID, creatorIDs, opts, *workers)
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("creator %d: FAILED: %v\n", r.CreatorID, r.Err)
			continue
		}
		fmt.Printf("creator %d: %.1f/5.0 (cost $%.4f)\n", r.CreatorID, r.Result.Fit.Overall, r.Result.Cost)
		fmt.Println("  " + r.Result.Report.Summary)
	}
}

func cmdReport() {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	cfgPath := fs.String("config", "./brandscout.yaml", "config path")
	briefID := fs.Int64("brief", 0, "brief ID")
	creatorID := fs.Int64("creator", 0, "creator ID")
	_ = fs.Parse(os.Args[2:])
	if *briefID == 0 || *creatorID == 0 {
		fatal(fmt.Errorf("report requires -brief and -creator"))
	}
	cfg := mustLoad(*cfgPath)
	db := mustOpen(cfg)
	defer db.Close()

	r, err := db.GetLatestReport(context.Background(), *briefID, *creatorID)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Report #%d  generated %s\n", r.ID, r.GeneratedAt.Format(time.RFC3339))
	fmt.Printf("Overall: %.1f/5.0  Alignment: %.1f  Cost: $%.4f  Model: %s\n",
		r.OverallScore, r.AlignmentScore, r.Cost, r.ModelUsed)
	fmt.Println(r.Summary)
	printList("Strengths", r.Strengths)
	printList("Concerns", r.Concerns)
	printList("Recommendations", r.Recommendations)
	for _, v := range r.VideoInsights {
		fmt.Printf("  video [%s] %s safety=%.1f relevance=%.1f\n", v.Method, v.Title, v.SafetyScore, v.RelevanceScore)
	}
}

func printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Println(title + ":")
	for _, s := range items {
		fmt.Println("  -", s)
	}
}

func cmdResearch() {
	fs := flag.NewFlagSet("research", flag.ExitOnError)
	cfgPath := fs.String("config", "./brandscout.yaml", "config path")
	creatorID := fs.Int64("creator", 0, "creator ID")
	kind := fs.String("type", research.QueryDemographics, "query type: demographics or background")
	_ = fs.Parse(os.Args[2:])
	if *creatorID == 0 {
		fatal(fmt.Errorf("research requires -creator"))
	}
	cfg := mustLoad(*cfgPath)
	if cfg.Credentials.ResearchAPIKey == "" {
		fatal(fmt.Errorf("missing RESEARCH_API_KEY"))
	}
	db := mustOpen(cfg)
	defer db.Close()
	ctx := context.Background()
	log := logging.New("brandscout")

	creator, err := db.GetCreator(ctx, *creatorID)
	if err != nil {
		fatal(err)
	}
	accounts, err := db.ListAccounts(ctx, *creatorID)
	if err != nil {
		fatal(err)
	}
	var query string
	switch *kind {
	case research.QueryBackground:
		query = research.BackgroundQuery(creator.Name, accounts)
	default:
		query = research.DemographicsQuery(creator.Name, accounts)
	}
	client := research.NewClient(cfg.Research, cfg.Credentials.ResearchAPIKey, log)
	runner := research.NewRunner(client, db, cfg.Research.CacheDays, log)
	entry, err := runner.Run(ctx, query, *kind, *creatorID, 0)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Job %s (%s)  cost $%.4f  expires %s\n",
		entry.JobID, entry.Status, entry.Cost, entry.ExpiresAt.Format(time.RFC3339))
	var pretty json.RawMessage = []byte(entry.Result)
	if out, err := json.MarshalIndent(pretty, "", "  "); err == nil {
		fmt.Println(string(out))
	} else {
		fmt.Println(entry.Result)
	}
}
