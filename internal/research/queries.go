package research

import (
	"fmt"
	"strings"

	"brandscout/internal/model"
)

// Query type labels stored alongside cache entries.
const (
	QueryDemographics = "demographics"
	QueryBackground   = "background"
)

// DemographicsQuery builds the audience-demographics research prompt
// for a creator across their linked accounts.
func DemographicsQuery(creatorName string, accounts []model.SocialAccount) string {
	var handles []string
	for _, a := range accounts {
		handles = append(handles, fmt.Sprintf("%s (%s)", a.Handle, a.Platform))
	}
	return fmt.Sprintf(
		"Research the audience demographics of the content creator %q with accounts: %s. "+
			"Report age ranges, gender split, top countries, and primary interests as a JSON object "+
			"with keys age_ranges, gender_split, top_countries, interests. "+
			"Cite only publicly available sources.",
		creatorName, strings.Join(handles, ", "))
}

// BackgroundQuery builds the creator-background research prompt:
// history, past partnerships, and public controversies.
func BackgroundQuery(creatorName string, accounts []model.SocialAccount) string {
	var handles []string
	for _, a := range accounts {
		handles = append(handles, fmt.Sprintf("%s (%s)", a.Handle, a.Platform))
	}
	return fmt.Sprintf(
		"Research the public background of the content creator %q with accounts: %s. "+
			"Summarize career history, notable brand partnerships, and any public controversies "+
			"as a JSON object with keys history, partnerships, controversies.",
		creatorName, strings.Join(handles, ", "))
}
