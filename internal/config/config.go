package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"brandscout/internal/model"
)

// Config is the application's configuration model. It captures service
// credentials, analysis tiers, scoring weights, and storage settings.
type Config struct {
	Credentials CredentialsConfig     `yaml:"credentials"`
	Scoring     ScoringConfig         `yaml:"scoring"`
	ContentAI   ContentAIConfig       `yaml:"contentAI"`
	Research    ResearchConfig        `yaml:"research"`
	Platforms   PlatformsConfig       `yaml:"platforms"`
	Tiers       map[string]TierConfig `yaml:"tiers"`
	Storage     StorageConfig         `yaml:"storage"`
	Metrics     MetricsConfig         `yaml:"metrics"`
}

type CredentialsConfig struct {
	// Content-analysis service API key. If empty, read CONTENT_API_KEY.
	ContentAPIKey string `yaml:"contentAPIKey"`
	// Research service API key. If empty, read RESEARCH_API_KEY.
	ResearchAPIKey string `yaml:"researchAPIKey"`
	// Video platform API keys, rotated on quota exhaustion.
	VideoAPIKeys []string `yaml:"videoAPIKeys"`
	// Live-stream platform client credentials.
	StreamClientID     string `yaml:"streamClientID"`
	StreamClientSecret string `yaml:"streamClientSecret"`
}

type ScoringConfig struct {
	Weights model.ScoreWeights `yaml:"weights"`
}

type ContentAIConfig struct {
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
	// Digest bounds for the scoring prompt.
	MaxDigestItems int `yaml:"maxDigestItems"`
	MaxCaptionLen  int `yaml:"maxCaptionLen"`
	// Optional tenant prompt override; empty means the built-in default.
	SystemPrompt string `yaml:"systemPrompt"`
}

type ResearchConfig struct {
	BaseURL        string  `yaml:"baseURL"`
	Agent          string  `yaml:"agent"`
	TimeoutSeconds int     `yaml:"timeoutSeconds"`
	CacheDays      int     `yaml:"cacheDays"`
	InputRatePerM  float64 `yaml:"inputRatePerM"`
	OutputRatePerM float64 `yaml:"outputRatePerM"`
}

// Timeout returns the poll timeout as a duration.
func (r ResearchConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

type PlatformsConfig struct {
	MaxAttempts  int     `yaml:"maxAttempts"`
	BaseDelayMS  int     `yaml:"baseDelayMS"`
	RequestsPerS float64 `yaml:"requestsPerS"`
	Burst        int     `yaml:"burst"`
	UserAgent    string  `yaml:"userAgent"`
	SinceDays    int     `yaml:"sinceDays"`
}

// TierConfig controls fetch depth and which enrichment stages run.
type TierConfig struct {
	Name            string `yaml:"name"`
	MaxItems        int    `yaml:"maxItems"`
	AnalyzeVideos   bool   `yaml:"analyzeVideos"`
	MaxVideos       int    `yaml:"maxVideos"`
	MaxVideoSeconds int    `yaml:"maxVideoSeconds"`
	MaxVideoSizeMB  int    `yaml:"maxVideoSizeMB"`
	DeepResearch    bool   `yaml:"deepResearch"`
	CacheDays       int    `yaml:"cacheDays"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ModelRate holds published per-million-token pricing for one model.
type ModelRate struct {
	InputPerM  float64
	OutputPerM float64
}

// ModelRates is the published pricing table for content-analysis models.
var ModelRates = map[string]ModelRate{
	"scout-pro":        {InputPerM: 1.25, OutputPerM: 10.00},
	"scout-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"scout-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
}

// DefaultModel is used when the configured model has no rate entry.
const DefaultModel = "scout-pro"

// RateFor returns the pricing for a model, falling back to DefaultModel.
func RateFor(modelName string) ModelRate {
	if r, ok := ModelRates[modelName]; ok {
		return r
	}
	return ModelRates[DefaultModel]
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Scoring: ScoringConfig{Weights: model.DefaultWeights()},
		ContentAI: ContentAIConfig{
			BaseURL:        "https://generativelanguage.googleapis.com/v1beta",
			Model:          DefaultModel,
			MaxDigestItems: 20,
			MaxCaptionLen:  500,
		},
		Research: ResearchConfig{
			BaseURL:        "https://generativelanguage.googleapis.com/v1beta",
			Agent:          "deep-research-pro",
			TimeoutSeconds: 1800,
			CacheDays:      90,
			InputRatePerM:  2.00,
			OutputRatePerM: 12.00,
		},
		Platforms: PlatformsConfig{
			MaxAttempts:  3,
			BaseDelayMS:  2000,
			RequestsPerS: 2.0,
			Burst:        10,
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			SinceDays:    730,
		},
		Tiers:   DefaultTiers(),
		Storage: StorageConfig{DBPath: "./brandscout.db"},
		Metrics: MetricsConfig{Addr: ""},
	}
}

// DefaultTiers returns the built-in analysis depth tiers.
func DefaultTiers() map[string]TierConfig {
	return map[string]TierConfig{
		"quick": {
			Name: "Quick Scan", MaxItems: 0,
		},
		"standard": {
			Name: "Standard Analysis", MaxItems: 10,
			AnalyzeVideos: true, MaxVideos: 3, MaxVideoSeconds: 600,
		},
		"deep": {
			Name: "Deep Dive", MaxItems: 50,
			AnalyzeVideos: true, MaxVideos: 5, MaxVideoSeconds: 600, MaxVideoSizeMB: 100,
		},
		"deep_research": {
			Name: "Deep Research", MaxItems: 50,
			AnalyzeVideos: true, MaxVideos: 5, MaxVideoSeconds: 600, MaxVideoSizeMB: 100,
			DeepResearch: true, CacheDays: 90,
		},
	}
}

// Tier resolves a tier by key, falling back to "standard".
func (c Config) Tier(key string) TierConfig {
	if t, ok := c.Tiers[key]; ok {
		return t
	}
	return c.Tiers["standard"]
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Credentials.ContentAPIKey == "" {
		c.Credentials.ContentAPIKey = os.Getenv("CONTENT_API_KEY")
	}
	if c.Credentials.ResearchAPIKey == "" {
		c.Credentials.ResearchAPIKey = os.Getenv("RESEARCH_API_KEY")
	}
	if c.Credentials.StreamClientID == "" {
		c.Credentials.StreamClientID = os.Getenv("STREAM_CLIENT_ID")
	}
	if c.Credentials.StreamClientSecret == "" {
		c.Credentials.StreamClientSecret = os.Getenv("STREAM_CLIENT_SECRET")
	}
	if len(c.Credentials.VideoAPIKeys) == 0 {
		if v := os.Getenv("VIDEO_API_KEY"); v != "" {
			c.Credentials.VideoAPIKeys = []string{v}
		}
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = os.Getenv("METRICS_ADDR")
	}
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = DefaultTiers()
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
