package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"brandscout/internal/model"
)

// PhotoFeedClient scrapes the photo/video feed platform's public pages.
// Blocked responses (401/403) are non-retryable and yield empty results
// instead of an error: transient IP-level blocking must not escalate
// into a hard platform failure.
type PhotoFeedClient struct {
	baseURL string // overridable in tests; "" means use the profile URL directly
	hc      *http.Client
	exec    failsafe.Executor[*http.Response]
	limiter *rate.Limiter
	ua      string
	log     *logrus.Entry
}

func blockedStatus(code int) bool {
	return code == http.StatusForbidden || code == http.StatusUnauthorized
}

func NewPhotoFeedClient(deps Deps) *PhotoFeedClient {
	retry := deps.Retry
	retry.NonRetryable = func(resp *http.Response, err error) bool {
		return err == nil && resp != nil && blockedStatus(resp.StatusCode)
	}
	return &PhotoFeedClient{
		hc:      deps.HTTPClient,
		exec:    NewHTTPExecutor("photo_feed", retry),
		limiter: deps.Limiter,
		ua:      deps.UserAgent,
		log:     deps.Logger.WithField("platform", model.PlatformPhotoFeed),
	}
}

func (c *PhotoFeedClient) fetch(ctx context.Context, rawURL string) (int, []byte, error) {
	u := rawURL
	if c.baseURL != "" {
		u = c.baseURL + "/" + ExtractHandle(rawURL, model.PlatformPhotoFeed)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", c.ua)
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}
	resp, err := Do(ctx, c.exec, c.hc, req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

var ogDescription = regexp.MustCompile(`<meta\s+property="og:description"\s+content="([^"]*)"`)

// statLine matches counts like "1,234 Followers, 56 Following, 78 Posts"
// including K/M/B suffixed forms.
var statLine = regexp.MustCompile(`([\d.,]+[KMB]?)\s+Followers?,\s*([\d.,]+[KMB]?)\s+Following,\s*([\d.,]+[KMB]?)\s+Posts?`)

func (c *PhotoFeedClient) ProfileStats(ctx context.Context, profileURL string) (model.Stats, error) {
	handle := ExtractHandle(profileURL, model.PlatformPhotoFeed)
	stats := model.Stats{
		Platform: model.PlatformPhotoFeed,
		Handle:   handle,
		Source:   model.SourceScrape,
	}
	status, body, err := c.fetch(ctx, profileURL)
	if err != nil {
		return model.Stats{}, clientErr(model.PlatformPhotoFeed, "profile stats", err)
	}
	if blockedStatus(status) {
		c.log.WithField("status", status).Warn("profile page blocked, returning empty stats")
		return stats, nil
	}
	if status >= 400 {
		return model.Stats{}, clientErr(model.PlatformPhotoFeed, "profile stats", fmt.Errorf("photo feed status %d", status))
	}
	m := ogDescription.FindSubmatch(body)
	if m == nil {
		return model.Stats{}, clientErr(model.PlatformPhotoFeed, "profile stats", fmt.Errorf("profile metadata not found for %s", handle))
	}
	desc := unescapeEntities(string(m[1]))
	if sm := statLine.FindStringSubmatch(desc); sm != nil {
		stats.Followers = parseSuffixedCount(sm[1])
		stats.Following = parseSuffixedCount(sm[2])
		stats.TotalPosts = parseSuffixedCount(sm[3])
	}
	stats.Description = desc
	return stats, nil
}

// feedPayload is the embedded JSON shape carrying recent media.
type feedPayload struct {
	GraphQL struct {
		User struct {
			Media struct {
				Edges []struct {
					Node struct {
						Shortcode string `json:"shortcode"`
						TakenAt   int64  `json:"taken_at_timestamp"`
						Likes     struct {
							Count int64 `json:"count"`
						} `json:"edge_liked_by"`
						Comments struct {
							Count int64 `json:"count"`
						} `json:"edge_media_to_comment"`
						Captions struct {
							Edges []struct {
								Node struct {
									Text string `json:"text"`
								} `json:"node"`
							} `json:"edges"`
						} `json:"edge_media_to_caption"`
						VideoViews int64 `json:"video_view_count"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"edge_owner_to_timeline_media"`
		} `json:"user"`
	} `json:"graphql"`
}

var sharedData = regexp.MustCompile(`(?s)<script[^>]*>window\._sharedData\s*=\s*(\{.*?\});</script>`)

func (c *PhotoFeedClient) RecentItems(ctx context.Context, profileURL string, sinceDays, maxN int) ([]model.Item, error) {
	maxN = clampItems(maxN)
	oldest := cutoff(time.Now().UTC(), sinceDays)

	status, body, err := c.fetch(ctx, profileURL)
	if err != nil {
		return nil, clientErr(model.PlatformPhotoFeed, "recent items", err)
	}
	if blockedStatus(status) {
		c.log.WithField("status", status).Warn("feed page blocked, returning no items")
		return nil, nil
	}
	if status >= 400 {
		return nil, clientErr(model.PlatformPhotoFeed, "recent items", fmt.Errorf("photo feed status %d", status))
	}

	raw := body
	if m := sharedData.FindSubmatch(body); m != nil {
		raw = m[1]
	}
	var payload feedPayload
	if err := json.Unmarshal(extractFeedJSON(raw), &payload); err != nil {
		return nil, clientErr(model.PlatformPhotoFeed, "recent items", fmt.Errorf("feed payload parse: %w", err))
	}

	var out []model.Item
	for _, e := range payload.GraphQL.User.Media.Edges {
		posted := time.Unix(e.Node.TakenAt, 0).UTC()
		// Feed is reverse-chronological; the first stale item ends the scan.
		if posted.Before(oldest) {
			break
		}
		caption := ""
		if len(e.Node.Captions.Edges) > 0 {
			caption = e.Node.Captions.Edges[0].Node.Text
		}
		out = append(out, model.Item{
			ID:       e.Node.Shortcode,
			Platform: model.PlatformPhotoFeed,
			URL:      "https://www.instagram.com/p/" + e.Node.Shortcode + "/",
			Caption:  caption,
			PostedAt: posted,
			Likes:    e.Node.Likes.Count,
			Comments: e.Node.Comments.Count,
			Views:    e.Node.VideoViews,
		})
		if len(out) >= maxN {
			break
		}
	}
	return out, nil
}

// extractFeedJSON tolerates both a bare payload document and a page
// wrapper holding the payload under entry_data.
func extractFeedJSON(raw []byte) []byte {
	var wrapper struct {
		EntryData struct {
			ProfilePage []json.RawMessage `json:"ProfilePage"`
		} `json:"entry_data"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && len(wrapper.EntryData.ProfilePage) > 0 {
		return wrapper.EntryData.ProfilePage[0]
	}
	return raw
}

// parseSuffixedCount handles "12,345", "1.2K", "3.4M", "1B".
func parseSuffixedCount(s string) int64 {
	s = strings.TrimSpace(s)
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "K"):
		mult, s = 1e3, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		mult, s = 1e6, strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "B"):
		mult, s = 1e9, strings.TrimSuffix(s, "B")
	}
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f * mult)
}

func unescapeEntities(s string) string {
	r := strings.NewReplacer("&amp;", "&", "&#39;", "'", "&quot;", `"`, "&lt;", "<", "&gt;", ">")
	return r.Replace(s)
}
