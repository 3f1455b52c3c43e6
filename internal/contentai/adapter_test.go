package contentai

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"brandscout/internal/config"
	"brandscout/internal/logging"
	"brandscout/internal/model"
	"brandscout/internal/platform"
)

func fakeService(t *testing.T, scoresJSON string, promptTokens, candidateTokens int64, capture *generateRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		if capture != nil {
			_ = json.NewDecoder(r.Body).Decode(capture)
		}
		resp := map[string]any{
			"candidates": []any{
				map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": scoresJSON}}}},
			},
			"usageMetadata": map[string]any{
				"promptTokenCount":     promptTokens,
				"candidatesTokenCount": candidateTokens,
				"totalTokenCount":      promptTokens + candidateTokens,
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func testAdapter(baseURL string) *Adapter {
	cfg := config.ContentAIConfig{
		BaseURL:        baseURL,
		Model:          "scout-pro",
		MaxDigestItems: 2,
		MaxCaptionLen:  10,
	}
	return New(cfg, "test-key", platform.RetryConfig{MaxAttempts: 1}, logging.New("test"))
}

func TestScoreContent(t *testing.T) {
	body := `{"brand_safety_score": 4, "authenticity_score": 4, "natural_alignment_score": 2,
		"brand_mentions": {"direct_mentions": 0, "competitor_mentions": 0, "category_discussions": 0, "examples": []}}`
	var captured generateRequest
	srv := fakeService(t, body, 1000, 500, &captured)
	defer srv.Close()

	a := testAdapter(srv.URL)
	items := []model.Item{
		{Platform: model.PlatformPhotoFeed, Caption: "short", Likes: 10},
		{Platform: model.PlatformPhotoFeed, Caption: "a much longer caption that exceeds the limit", Likes: 5},
		{Platform: model.PlatformPhotoFeed, Caption: "dropped, over digest limit"},
	}
	scores, err := a.ScoreContent(context.Background(), items, "outdoor gear brand", "")
	if err != nil {
		t.Fatal(err)
	}
	if scores.SafetyScore != 4 || scores.AlignmentScore != 2 {
		t.Fatalf("scores = %+v", scores)
	}
	if scores.Usage.InputTokens != 1000 || scores.Usage.OutputTokens != 500 {
		t.Fatalf("usage = %+v", scores.Usage)
	}

	prompt := captured.Contents[0].Parts[0].Text
	if !strings.Contains(prompt, "outdoor gear brand") {
		t.Error("brand context missing from prompt")
	}
	if strings.Contains(prompt, "dropped, over digest limit") {
		t.Error("digest must cap item count")
	}
	if strings.Contains(prompt, "exceeds the limit") {
		t.Error("captions must be truncated")
	}
}

func TestDigestTruncatesOnRuneBoundary(t *testing.T) {
	a := testAdapter("http://unused")
	// 19 characters, mostly multi-byte, against a 10-character cap.
	items := []model.Item{{Platform: model.PlatformPhotoFeed, Caption: "ску-турне в горах ☀"}}
	digest := a.Digest(items, "brand")
	if !utf8.ValidString(digest) {
		t.Fatal("digest must stay valid UTF-8 after truncation")
	}
	if !strings.Contains(digest, "ску-турне ") {
		t.Fatalf("caption not cut at the 10th character: %q", digest)
	}
	if strings.Contains(digest, "горах") {
		t.Fatalf("caption not truncated: %q", digest)
	}
}

func TestScoreContentPromptOverride(t *testing.T) {
	body := `{"brand_safety_score": 3, "authenticity_score": 3, "natural_alignment_score": 3,
		"brand_mentions": {"direct_mentions": 0, "competitor_mentions": 0, "category_discussions": 0, "examples": []}}`
	var captured generateRequest
	srv := fakeService(t, body, 0, 0, &captured)
	defer srv.Close()

	a := testAdapter(srv.URL)
	_, err := a.ScoreContent(context.Background(), []model.Item{{Caption: "x"}}, "brand", "custom instruction")
	if err != nil {
		t.Fatal(err)
	}
	if captured.SystemInstruction == nil || captured.SystemInstruction.Parts[0].Text != "custom instruction" {
		t.Fatal("prompt override not applied")
	}
}

func TestScoreContentServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	a := testAdapter(srv.URL)
	if _, err := a.ScoreContent(context.Background(), []model.Item{{Caption: "x"}}, "brand", ""); err == nil {
		t.Fatal("expected error from failing service")
	}
}

func TestAnalyzeVideo(t *testing.T) {
	body := `{"analysis_method": "x", "brand_safety_score": 9, "relevance_score": 4, "key_topics": ["t"]}`
	srv := fakeService(t, body, 100, 50, nil)
	defer srv.Close()

	a := testAdapter(srv.URL)
	item := model.Item{ID: "v1", Title: "Trail Review", URL: "https://example.com/v1", DurationS: 300}
	insight, usage, err := a.AnalyzeVideo(context.Background(), item, "brand")
	if err != nil {
		t.Fatal(err)
	}
	if insight.Title != "Trail Review" || insight.URL != item.URL {
		t.Fatalf("insight identity = %+v", insight)
	}
	if insight.SafetyScore != 5 {
		t.Fatalf("safety = %v, want clamped to 5", insight.SafetyScore)
	}
	if usage.InputTokens != 100 {
		t.Fatalf("usage = %+v", usage)
	}
}

func TestCost(t *testing.T) {
	usage := model.TokenUsage{InputTokens: 1_000_000, OutputTokens: 100_000}
	// scout-pro: $1.25/M in, $10.00/M out.
	want := 1.25 + 1.0
	if got := Cost("scout-pro", usage); math.Abs(got-want) > 1e-9 {
		t.Fatalf("cost = %v, want %v", got, want)
	}
	// Unknown model falls back to the default rate.
	if got := Cost("unknown", usage); math.Abs(got-want) > 1e-9 {
		t.Fatalf("fallback cost = %v, want %v", got, want)
	}
}
