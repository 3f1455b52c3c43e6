package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"brandscout/internal/metrics"
	"brandscout/internal/model"
)

// Engine computes weighted brand-fit scores.
type Engine struct {
	weights model.ScoreWeights
	log     *logrus.Entry
}

func NewEngine(weights model.ScoreWeights, logger *logrus.Entry) *Engine {
	return &Engine{weights: weights, log: logger.WithField("component", "scoring")}
}

// ReachScore normalizes audience size onto the 1-5 scale: 100k
// followers per point, capped at 5.
func ReachScore(totalFollowers int64) float64 {
	return math.Min(5, float64(totalFollowers)/100000)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// clampFit bounds the overall score onto the 1.0-5.0 scale. Weighted
// sums of in-range inputs can still land below 1.0 when reach is near
// zero.
func clampFit(v float64) float64 {
	return math.Min(5.0, math.Max(1.0, v))
}

// ComputeFitScore combines the three content scores and audience reach
// into the weighted overall score. Invalid weight sets are replaced by
// the defaults; the substitution is logged and counted, never an error.
func (e *Engine) ComputeFitScore(safety, authenticity, alignment float64, totalFollowers int64) model.FitScore {
	w := e.weights
	usedDefaults := false
	if !w.Valid() {
		w = model.DefaultWeights()
		usedDefaults = true
		metrics.WeightFallbacks.Inc()
		e.log.WithFields(logrus.Fields{
			"configured": e.weights,
		}).Warn("invalid score weights, using defaults")
	}
	reach := ReachScore(totalFollowers)
	overall := safety*w.Safety + authenticity*w.Authenticity + alignment*w.Alignment + reach*w.Reach
	return model.FitScore{
		Overall:        clampFit(round1(overall)),
		Safety:         safety,
		Authenticity:   authenticity,
		Alignment:      alignment,
		TotalFollowers: totalFollowers,
		UsedDefaults:   usedDefaults,
	}
}

// StrengthsConcerns derives the deterministic strength and concern
// bullets from scores and audience shape.
func StrengthsConcerns(scores model.ContentScores, totalFollowers int64, platformCount int) (strengths, concerns []string) {
	if totalFollowers > 500000 {
		strengths = append(strengths, fmt.Sprintf("Large audience reach (%s followers)", formatCount(totalFollowers)))
	}
	if scores.SafetyScore >= 4 {
		strengths = append(strengths, "Strong brand safety profile")
	}
	if scores.AlignmentScore >= 4 {
		strengths = append(strengths, "Content aligns naturally with the brand")
	}
	if scores.Mentions.Direct > 0 {
		strengths = append(strengths, fmt.Sprintf("Already mentions the brand (%d times)", scores.Mentions.Direct))
	}
	if platformCount > 2 {
		strengths = append(strengths, fmt.Sprintf("Multi-platform presence (%d platforms)", platformCount))
	}

	if scores.SafetyScore < 3 {
		concerns = append(concerns, "Brand safety risks identified in content")
	}
	if scores.AlignmentScore < 3 {
		concerns = append(concerns, "Weak natural alignment with the brand")
	}
	if totalFollowers < 10000 {
		concerns = append(concerns, "Limited audience reach")
	}
	return strengths, concerns
}

// Recommendations maps the overall fit score onto a partnership
// recommendation.
func Recommendations(fit model.FitScore, scores model.ContentScores) []string {
	var recs []string
	switch {
	case fit.Overall >= 4.0:
		recs = append(recs, "Strong fit. Pursue a partnership.")
	case fit.Overall >= 3.0:
		recs = append(recs, "Moderate fit. Consider a small test campaign first.")
	default:
		recs = append(recs, "Limited fit. Look for better-aligned creators.")
	}
	if strings.EqualFold(scores.EngagementQuality, "high") {
		recs = append(recs, "High engagement quality suggests strong conversion potential.")
	}
	if scores.Mentions.Competitor > 0 {
		recs = append(recs, fmt.Sprintf("Creator mentions competitors (%d times). Review exclusivity terms.", scores.Mentions.Competitor))
	}
	return recs
}

func formatCount(n int64) string {
	switch {
	case n >= 1000000:
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	case n >= 1000:
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
