package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"brandscout/internal/model"
)

// ShortVideoClient scrapes the short-video platform's profile pages,
// reading the hydration state blob embedded in the HTML. Blocked
// responses degrade to empty results like the photo feed scraper.
type ShortVideoClient struct {
	baseURL string // test override
	hc      *http.Client
	exec    failsafe.Executor[*http.Response]
	limiter *rate.Limiter
	ua      string
	log     *logrus.Entry
}

func NewShortVideoClient(deps Deps) *ShortVideoClient {
	retry := deps.Retry
	retry.NonRetryable = func(resp *http.Response, err error) bool {
		return err == nil && resp != nil && blockedStatus(resp.StatusCode)
	}
	return &ShortVideoClient{
		hc:      deps.HTTPClient,
		exec:    NewHTTPExecutor("short_video", retry),
		limiter: deps.Limiter,
		ua:      deps.UserAgent,
		log:     deps.Logger.WithField("platform", model.PlatformShortVideo),
	}
}

var hydrationState = regexp.MustCompile(`<script id="SIGI_STATE"[^>]*>(.*?)</script>`)

// sigiState is the subset of the hydration blob we read.
type sigiState struct {
	UserModule struct {
		Stats map[string]struct {
			FollowerCount  int64 `json:"followerCount"`
			FollowingCount int64 `json:"followingCount"`
			VideoCount     int64 `json:"videoCount"`
			HeartCount     int64 `json:"heartCount"`
		} `json:"stats"`
		Users map[string]struct {
			ID        string `json:"id"`
			Nickname  string `json:"nickname"`
			Signature string `json:"signature"`
			Verified  bool   `json:"verified"`
		} `json:"users"`
	} `json:"UserModule"`
	ItemModule map[string]struct {
		ID         string `json:"id"`
		Desc       string `json:"desc"`
		CreateTime int64  `json:"createTime,string"`
		Stats      struct {
			DiggCount    int64 `json:"diggCount"`
			CommentCount int64 `json:"commentCount"`
			PlayCount    int64 `json:"playCount"`
		} `json:"stats"`
	} `json:"ItemModule"`
}

func (c *ShortVideoClient) fetchState(ctx context.Context, profileURL, op string) (*sigiState, string, error) {
	u := profileURL
	handle := ExtractHandle(profileURL, model.PlatformShortVideo)
	if c.baseURL != "" {
		u = c.baseURL + "/@" + handle
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, handle, err
	}
	req.Header.Set("User-Agent", c.ua)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, handle, err
	}
	resp, err := Do(ctx, c.exec, c.hc, req)
	if err != nil {
		return nil, handle, err
	}
	defer resp.Body.Close()
	if blockedStatus(resp.StatusCode) {
		c.log.WithFields(logrus.Fields{"status": resp.StatusCode, "op": op}).Warn("short-video page blocked")
		return nil, handle, nil
	}
	if resp.StatusCode >= 400 {
		return nil, handle, fmt.Errorf("short video status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, handle, err
	}
	m := hydrationState.FindSubmatch(body)
	if m == nil {
		return nil, handle, fmt.Errorf("hydration state not found for %s", handle)
	}
	var state sigiState
	if err := json.Unmarshal(m[1], &state); err != nil {
		return nil, handle, fmt.Errorf("hydration state parse: %w", err)
	}
	return &state, handle, nil
}

func (c *ShortVideoClient) ProfileStats(ctx context.Context, profileURL string) (model.Stats, error) {
	state, handle, err := c.fetchState(ctx, profileURL, "profile stats")
	if err != nil {
		return model.Stats{}, clientErr(model.PlatformShortVideo, "profile stats", err)
	}
	stats := model.Stats{
		Platform: model.PlatformShortVideo,
		Handle:   handle,
		Source:   model.SourceScrape,
	}
	if state == nil { // blocked
		return stats, nil
	}
	if s, ok := state.UserModule.Stats[handle]; ok {
		stats.Followers = s.FollowerCount
		stats.Following = s.FollowingCount
		stats.TotalPosts = s.VideoCount
	}
	if u, ok := state.UserModule.Users[handle]; ok {
		stats.PlatformUserID = u.ID
		stats.Name = u.Nickname
		stats.Description = u.Signature
		stats.Verified = u.Verified
	}
	return stats, nil
}

func (c *ShortVideoClient) RecentItems(ctx context.Context, profileURL string, sinceDays, maxN int) ([]model.Item, error) {
	maxN = clampItems(maxN)
	oldest := cutoff(time.Now().UTC(), sinceDays)

	state, handle, err := c.fetchState(ctx, profileURL, "recent items")
	if err != nil {
		return nil, clientErr(model.PlatformShortVideo, "recent items", err)
	}
	if state == nil { // blocked
		return nil, nil
	}

	items := make([]model.Item, 0, len(state.ItemModule))
	for _, it := range state.ItemModule {
		items = append(items, model.Item{
			ID:       it.ID,
			Platform: model.PlatformShortVideo,
			URL:      "https://www.tiktok.com/@" + handle + "/video/" + it.ID,
			Caption:  it.Desc,
			PostedAt: time.Unix(it.CreateTime, 0).UTC(),
			Likes:    it.Stats.DiggCount,
			Comments: it.Stats.CommentCount,
			Views:    it.Stats.PlayCount,
		})
	}
	// The blob is a map; restore reverse-chronological order before the
	// window filter.
	sort.Slice(items, func(i, j int) bool { return items[i].PostedAt.After(items[j].PostedAt) })

	var out []model.Item
	for _, it := range items {
		if it.PostedAt.Before(oldest) {
			break
		}
		out = append(out, it)
		if len(out) >= maxN {
			break
		}
	}
	return out, nil
}
