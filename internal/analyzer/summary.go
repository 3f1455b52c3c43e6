package analyzer

import (
	"fmt"
	"strings"

	"brandscout/internal/model"
)

// Summary builds the deterministic executive summary line for a report.
// Same inputs always produce the same text.
func Summary(creatorName string, fit model.FitScore, scores model.ContentScores, platformCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s scores %.1f/5.0 overall brand fit", creatorName, fit.Overall)
	if platformCount > 0 {
		fmt.Fprintf(&b, " across %d platform(s) with %s total followers", platformCount, formatFollowers(fit.TotalFollowers))
	}
	b.WriteString(". ")
	switch {
	case fit.Overall >= 4.0:
		b.WriteString("Strong partnership candidate.")
	case fit.Overall >= 3.0:
		b.WriteString("Moderate partnership potential.")
	default:
		b.WriteString("Limited partnership fit.")
	}
	if scores.Sentiment != "" {
		fmt.Fprintf(&b, " Content sentiment is %s.", strings.ToLower(scores.Sentiment))
	}
	if len(scores.Themes) > 0 {
		n := len(scores.Themes)
		if n > 3 {
			n = 3
		}
		fmt.Fprintf(&b, " Main themes: %s.", strings.Join(scores.Themes[:n], ", "))
	}
	return b.String()
}

func formatFollowers(n int64) string {
	switch {
	case n >= 1000000:
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	case n >= 1000:
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
