package contentai

import (
	"encoding/json"

	"brandscout/internal/metrics"
	"brandscout/internal/model"
)

// neutralScore substitutes for a missing required score.
const neutralScore = 3.0

// rawScores mirrors the service response with pointer score fields so
// missing keys are distinguishable from zero values.
type rawScores struct {
	Themes            []string `json:"content_themes"`
	PrimaryType       string   `json:"primary_content_type"`
	SafetyScore       *float64 `json:"brand_safety_score"`
	AuthenticityScore *float64 `json:"authenticity_score"`
	AlignmentScore    *float64 `json:"natural_alignment_score"`
	Sentiment         string   `json:"sentiment"`
	EngagementQuality string   `json:"audience_engagement_quality"`
	Observations      []string `json:"key_observations"`
	PotentialConcerns []string `json:"potential_concerns"`
	Strengths         []string `json:"partnership_strengths"`
	Mentions          *struct {
		Direct     *int     `json:"direct_mentions"`
		Competitor *int     `json:"competitor_mentions"`
		Category   *int     `json:"category_discussions"`
		Examples   []string `json:"examples"`
	} `json:"brand_mentions"`
}

func clamp(v float64) float64 {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

// scoreOrDefault resolves one required score field: missing values get
// the neutral default, out-of-range values are clamped. Returns the
// value and whether a fixup was applied.
func scoreOrDefault(p *float64) (float64, bool) {
	if p == nil {
		return neutralScore, true
	}
	c := clamp(*p)
	return c, c != *p
}

// Normalize decodes a raw scoring response and enforces the response
// contract: required scores present and in [1,5], brand mentions never
// nil. Malformed input yields neutral scores rather than an error.
// The second return is the number of fields that needed fixing.
func Normalize(raw []byte) (model.ContentScores, int) {
	var r rawScores
	fixups := 0
	if err := json.Unmarshal(raw, &r); err != nil {
		fixups = 3
		metrics.ScoringFixups.Add(float64(fixups))
		return model.ContentScores{
			SafetyScore:       neutralScore,
			AuthenticityScore: neutralScore,
			AlignmentScore:    neutralScore,
		}, fixups
	}

	out := model.ContentScores{
		Themes:            r.Themes,
		PrimaryType:       r.PrimaryType,
		Sentiment:         r.Sentiment,
		EngagementQuality: r.EngagementQuality,
		Observations:      r.Observations,
		PotentialConcerns: r.PotentialConcerns,
		Strengths:         r.Strengths,
	}

	var fixed bool
	if out.SafetyScore, fixed = scoreOrDefault(r.SafetyScore); fixed {
		fixups++
	}
	if out.AuthenticityScore, fixed = scoreOrDefault(r.AuthenticityScore); fixed {
		fixups++
	}
	if out.AlignmentScore, fixed = scoreOrDefault(r.AlignmentScore); fixed {
		fixups++
	}

	if r.Mentions == nil {
		out.Mentions = model.BrandMentions{Examples: []string{}}
		fixups++
	} else {
		m := model.BrandMentions{Examples: r.Mentions.Examples}
		if r.Mentions.Direct != nil {
			m.Direct = *r.Mentions.Direct
		} else {
			fixups++
		}
		if r.Mentions.Competitor != nil {
			m.Competitor = *r.Mentions.Competitor
		} else {
			fixups++
		}
		if r.Mentions.Category != nil {
			m.Category = *r.Mentions.Category
		} else {
			fixups++
		}
		if m.Examples == nil {
			m.Examples = []string{}
		}
		out.Mentions = m
	}

	if fixups > 0 {
		metrics.ScoringFixups.Add(float64(fixups))
	}
	return out, fixups
}
