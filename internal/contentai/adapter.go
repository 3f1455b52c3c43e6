package contentai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/failsafe-go/failsafe-go"
	"github.com/sirupsen/logrus"

	"brandscout/internal/config"
	"brandscout/internal/metrics"
	"brandscout/internal/model"
	"brandscout/internal/platform"
)

const defaultSystemPrompt = `You are a brand partnership analyst. Evaluate the creator content digest
against the brand context and respond with a single JSON object containing:
content_themes (string array), primary_content_type, brand_safety_score (1-5),
authenticity_score (1-5), natural_alignment_score (1-5), sentiment,
audience_engagement_quality, key_observations (string array),
potential_concerns (string array), partnership_strengths (string array),
brand_mentions {direct_mentions, competitor_mentions, category_discussions, examples}.`

// Adapter scores a pool of content items against a brand context using
// the content-analysis service.
type Adapter struct {
	baseURL       string
	apiKey        string
	model         string
	maxItems      int
	maxCaptionLen int
	systemPrompt  string
	hc            *http.Client
	exec          failsafe.Executor[*http.Response]
	log           *logrus.Entry
}

func New(cfg config.ContentAIConfig, apiKey string, retry platform.RetryConfig, logger *logrus.Entry) *Adapter {
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	maxItems := cfg.MaxDigestItems
	if maxItems <= 0 {
		maxItems = 20
	}
	maxCaption := cfg.MaxCaptionLen
	if maxCaption <= 0 {
		maxCaption = 500
	}
	return &Adapter{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        apiKey,
		model:         cfg.Model,
		maxItems:      maxItems,
		maxCaptionLen: maxCaption,
		systemPrompt:  prompt,
		hc:            &http.Client{Timeout: 2 * time.Minute},
		exec:          platform.NewHTTPExecutor("content_scoring", retry),
		log:           logger.WithField("component", "contentai"),
	}
}

// Digest renders the scoring prompt body: the brand context followed
// by up to maxItems item summaries with captions truncated.
func (a *Adapter) Digest(items []model.Item, brandContext string) string {
	var b strings.Builder
	b.WriteString("Brand context:\n")
	b.WriteString(brandContext)
	b.WriteString("\n\nCreator content digest:\n")
	n := len(items)
	if n > a.maxItems {
		n = a.maxItems
	}
	for i := 0; i < n; i++ {
		it := items[i]
		caption := it.Caption
		if caption == "" {
			caption = it.Title
		}
		caption = truncateRunes(caption, a.maxCaptionLen)
		fmt.Fprintf(&b, "%d. [%s] %s (likes=%d comments=%d views=%d)\n",
			i+1, it.Platform, caption, it.Likes, it.Comments, it.Views)
	}
	return b.String()
}

// truncateRunes caps s at max characters without splitting a rune.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

type generatePart struct {
	Text string `json:"text"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
	Role  string         `json:"role,omitempty"`
}

type generateRequest struct {
	SystemInstruction *generateContent  `json:"system_instruction,omitempty"`
	Contents          []generateContent `json:"contents"`
	GenerationConfig  struct {
		ResponseMIMEType string `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content generateContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
		TotalTokenCount      int64 `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// generate submits one prompt and returns the raw JSON text of the
// first candidate plus token usage.
func (a *Adapter) generate(ctx context.Context, system, prompt string) (string, model.TokenUsage, error) {
	reqBody := generateRequest{
		SystemInstruction: &generateContent{Parts: []generatePart{{Text: system}}},
		Contents:          []generateContent{{Parts: []generatePart{{Text: prompt}}, Role: "user"}},
	}
	reqBody.GenerationConfig.ResponseMIMEType = "application/json"
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", model.TokenUsage{}, err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", a.baseURL, a.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", model.TokenUsage{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", a.apiKey)

	resp, err := platform.Do(ctx, a.exec, a.hc, req)
	if err != nil {
		return "", model.TokenUsage{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", model.TokenUsage{}, fmt.Errorf("content service status %d", resp.StatusCode)
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", model.TokenUsage{}, err
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", model.TokenUsage{}, fmt.Errorf("content service returned no candidates")
	}
	usage := model.TokenUsage{
		InputTokens:  gr.UsageMetadata.PromptTokenCount,
		OutputTokens: gr.UsageMetadata.CandidatesTokenCount,
		TotalTokens:  gr.UsageMetadata.TotalTokenCount,
	}
	return gr.Candidates[0].Content.Parts[0].Text, usage, nil
}

// ScoreContent scores the aggregated item pool against the brand
// context. Response fields outside their valid ranges are normalized
// rather than failing the run.
func (a *Adapter) ScoreContent(ctx context.Context, items []model.Item, brandContext, promptOverride string) (model.ContentScores, error) {
	metrics.ScoringCalls.Inc()
	system := a.systemPrompt
	if promptOverride != "" {
		system = promptOverride
	}
	text, usage, err := a.generate(ctx, system, a.Digest(items, brandContext))
	if err != nil {
		return model.ContentScores{}, fmt.Errorf("score content: %w", err)
	}
	scores, fixups := Normalize([]byte(text))
	if fixups > 0 {
		a.log.WithFields(logrus.Fields{"fixups": fixups}).Warn("scoring response needed normalization")
	}
	scores.Usage = usage
	return scores, nil
}

// AnalyzeVideo runs a single-item enrichment pass over one video's
// metadata and returns the structured insight.
func (a *Adapter) AnalyzeVideo(ctx context.Context, item model.Item, brandContext string) (model.VideoInsight, model.TokenUsage, error) {
	prompt := fmt.Sprintf(
		"Brand context:\n%s\n\nVideo: %q\nURL: %s\nDuration: %ds Views: %d\nCaption: %s\n\n"+
			"Respond with a JSON object: title, url, analysis_method, brand_safety_score (1-5), "+
			"relevance_score (1-5), key_topics (string array), concerns (string array).",
		brandContext, item.Title, item.URL, item.DurationS, item.Views, item.Caption)
	text, usage, err := a.generate(ctx, a.systemPrompt, prompt)
	if err != nil {
		return model.VideoInsight{}, model.TokenUsage{}, fmt.Errorf("analyze video: %w", err)
	}
	var insight model.VideoInsight
	if err := json.Unmarshal([]byte(text), &insight); err != nil {
		return model.VideoInsight{}, usage, fmt.Errorf("analyze video: decode insight: %w", err)
	}
	insight.Title = item.Title
	insight.URL = item.URL
	insight.SafetyScore = clamp(insight.SafetyScore)
	insight.RelevanceScore = clamp(insight.RelevanceScore)
	return insight, usage, nil
}

// Cost converts token usage into dollars using the published per-model
// rates.
func Cost(modelName string, usage model.TokenUsage) float64 {
	rate := config.RateFor(modelName)
	return float64(usage.InputTokens)/1e6*rate.InputPerM +
		float64(usage.OutputTokens)/1e6*rate.OutputPerM
}
