package model

import "math"

// ScoreWeights are the four fit-score weights. They must sum to 1.0
// within WeightTolerance; anything else falls back to DefaultWeights.
type ScoreWeights struct {
	Safety       float64 `yaml:"safety"`
	Authenticity float64 `yaml:"authenticity"`
	Alignment    float64 `yaml:"alignment"`
	Reach        float64 `yaml:"reach"`
}

// WeightTolerance is the allowed deviation from 1.0 for a weight sum.
const WeightTolerance = 0.01

// DefaultWeights returns the documented default weight set.
func DefaultWeights() ScoreWeights {
	return ScoreWeights{Safety: 0.30, Authenticity: 0.25, Alignment: 0.25, Reach: 0.20}
}

// Valid reports whether all weights are non-negative and sum to 1.0
// within tolerance.
func (w ScoreWeights) Valid() bool {
	if w.Safety < 0 || w.Authenticity < 0 || w.Alignment < 0 || w.Reach < 0 {
		return false
	}
	sum := w.Safety + w.Authenticity + w.Alignment + w.Reach
	return math.Abs(sum-1.0) <= WeightTolerance
}

// BrandMentions counts how the brand surfaces in creator content.
type BrandMentions struct {
	Direct     int      `json:"direct_mentions"`
	Competitor int      `json:"competitor_mentions"`
	Category   int      `json:"category_discussions"`
	Examples   []string `json:"examples"`
}

// ContentScores is the validated, normalized output of the content
// scoring service. All 1-5 scores are clamped into range before use.
type ContentScores struct {
	Themes            []string      `json:"content_themes"`
	PrimaryType       string        `json:"primary_content_type"`
	SafetyScore       float64       `json:"brand_safety_score"`
	AuthenticityScore float64       `json:"authenticity_score"`
	AlignmentScore    float64       `json:"natural_alignment_score"`
	Sentiment         string        `json:"sentiment"`
	EngagementQuality string        `json:"audience_engagement_quality"`
	Observations      []string      `json:"key_observations"`
	PotentialConcerns []string      `json:"potential_concerns"`
	Strengths         []string      `json:"partnership_strengths"`
	Mentions          BrandMentions `json:"brand_mentions"`
	Usage             TokenUsage    `json:"-"`
}

// FitScore is the final weighted brand-fit score, 1.0-5.0 one decimal.
type FitScore struct {
	Overall        float64
	Safety         float64
	Authenticity   float64
	Alignment      float64
	TotalFollowers int64
	UsedDefaults   bool // weights were invalid and defaults substituted
}
