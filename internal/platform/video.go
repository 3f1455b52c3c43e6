package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"brandscout/internal/model"
)

// VideoClient talks to the video platform's data API. Calls are backed
// by a rotating pool of quota-limited keys; quota-exhaustion responses
// trigger rotation instead of retry.
type VideoClient struct {
	baseURL string
	hc      *http.Client
	exec    failsafe.Executor[*http.Response]
	keys    *KeyPool
	limiter *rate.Limiter
	log     *logrus.Entry
}

func NewVideoClient(deps Deps) *VideoClient {
	return &VideoClient{
		baseURL: "https://www.googleapis.com/youtube/v3",
		hc:      deps.HTTPClient,
		exec:    NewHTTPExecutor("video", deps.Retry),
		keys:    NewKeyPool(deps.VideoKeys),
		limiter: deps.Limiter,
		log:     deps.Logger.WithField("platform", model.PlatformVideo),
	}
}

// quotaExhausted detects the API's daily-quota signal. These are not
// transient, so they bypass retry and go straight to key rotation.
func quotaExhausted(status int, body []byte) bool {
	return status == http.StatusForbidden && strings.Contains(string(body), "quotaExceeded")
}

// getJSON performs one API GET, rotating keys on quota exhaustion until
// the pool wraps around.
func (c *VideoClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	rotations := 0
	for {
		key, err := c.keys.Current()
		if err != nil {
			return err
		}
		q := url.Values{}
		for k, vs := range params {
			q[k] = vs
		}
		q.Set("key", key)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := Do(ctx, c.exec, c.hc, req)
		if err != nil {
			return err
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		_ = resp.Body.Close()
		if err != nil {
			return err
		}
		if quotaExhausted(resp.StatusCode, body) {
			rotations++
			c.log.WithField("rotations", rotations).Warn("video API quota exhausted, rotating key")
			if rotations >= c.keys.Size() {
				return ErrKeysExhausted
			}
			if err := c.keys.Rotate(); err != nil {
				return err
			}
			continue
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("video api status %d", resp.StatusCode)
		}
		c.keys.Use(key, 1)
		return json.Unmarshal(body, out)
	}
}

// channelResp is the vendor payload for channel lookups. Counter fields
// arrive as decimal strings.
type channelResp struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			CustomURL   string `json:"customUrl"`
		} `json:"snippet"`
		Statistics struct {
			SubscriberCount string `json:"subscriberCount"`
			VideoCount      string `json:"videoCount"`
			ViewCount       string `json:"viewCount"`
		} `json:"statistics"`
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

func (c *VideoClient) channelParams(profileURL string) url.Values {
	ref := ExtractHandle(profileURL, model.PlatformVideo)
	params := url.Values{}
	params.Set("part", "snippet,statistics,contentDetails")
	if strings.HasPrefix(ref, "UC") {
		params.Set("id", ref)
	} else {
		params.Set("forHandle", "@"+strings.TrimPrefix(ref, "@"))
	}
	return params
}

func (c *VideoClient) ProfileStats(ctx context.Context, profileURL string) (model.Stats, error) {
	var raw channelResp
	if err := c.getJSON(ctx, "/channels", c.channelParams(profileURL), &raw); err != nil {
		return model.Stats{}, clientErr(model.PlatformVideo, "profile stats", err)
	}
	if len(raw.Items) == 0 {
		return model.Stats{}, clientErr(model.PlatformVideo, "profile stats", fmt.Errorf("channel not found: %s", profileURL))
	}
	ch := raw.Items[0]
	return model.Stats{
		Platform:       model.PlatformVideo,
		PlatformUserID: ch.ID,
		Handle:         ch.Snippet.CustomURL,
		Name:           ch.Snippet.Title,
		Description:    ch.Snippet.Description,
		Followers:      parseCount(ch.Statistics.SubscriberCount),
		TotalPosts:     parseCount(ch.Statistics.VideoCount),
		TotalViews:     parseCount(ch.Statistics.ViewCount),
		Source:         model.SourceAPI,
	}, nil
}

type playlistResp struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			PublishedAt time.Time `json:"publishedAt"`
		} `json:"snippet"`
		ContentDetails struct {
			VideoID string `json:"videoId"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type videosResp struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title       string    `json:"title"`
			Description string    `json:"description"`
			PublishedAt time.Time `json:"publishedAt"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

func (c *VideoClient) RecentItems(ctx context.Context, profileURL string, sinceDays, maxN int) ([]model.Item, error) {
	maxN = clampItems(maxN)
	oldest := cutoff(time.Now().UTC(), sinceDays)

	var chRaw channelResp
	if err := c.getJSON(ctx, "/channels", c.channelParams(profileURL), &chRaw); err != nil {
		return nil, clientErr(model.PlatformVideo, "recent items", err)
	}
	if len(chRaw.Items) == 0 {
		return nil, clientErr(model.PlatformVideo, "recent items", fmt.Errorf("channel not found: %s", profileURL))
	}
	uploads := chRaw.Items[0].ContentDetails.RelatedPlaylists.Uploads

	// The uploads playlist is reverse-chronological: stop paging at the
	// first item older than the window.
	var ids []string
	pageToken := ""
	for len(ids) < maxN {
		params := url.Values{}
		params.Set("part", "snippet,contentDetails")
		params.Set("playlistId", uploads)
		params.Set("maxResults", strconv.Itoa(min(50, maxN-len(ids))))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}
		var page playlistResp
		if err := c.getJSON(ctx, "/playlistItems", params, &page); err != nil {
			return nil, clientErr(model.PlatformVideo, "recent items", err)
		}
		tooOld := false
		for _, it := range page.Items {
			if it.Snippet.PublishedAt.Before(oldest) {
				tooOld = true
				break
			}
			ids = append(ids, it.ContentDetails.VideoID)
			if len(ids) >= maxN {
				break
			}
		}
		pageToken = page.NextPageToken
		if tooOld || pageToken == "" {
			break
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	out := make([]model.Item, 0, len(ids))
	for start := 0; start < len(ids); start += 50 {
		end := min(start+50, len(ids))
		params := url.Values{}
		params.Set("part", "snippet,statistics,contentDetails")
		params.Set("id", strings.Join(ids[start:end], ","))
		var vids videosResp
		if err := c.getJSON(ctx, "/videos", params, &vids); err != nil {
			return nil, clientErr(model.PlatformVideo, "recent items", err)
		}
		for _, v := range vids.Items {
			out = append(out, model.Item{
				ID:        v.ID,
				Platform:  model.PlatformVideo,
				URL:       "https://www.youtube.com/watch?v=" + v.ID,
				Title:     v.Snippet.Title,
				Caption:   v.Snippet.Description,
				PostedAt:  v.Snippet.PublishedAt,
				Likes:     parseCount(v.Statistics.LikeCount),
				Comments:  parseCount(v.Statistics.CommentCount),
				Views:     parseCount(v.Statistics.ViewCount),
				DurationS: parseISODuration(v.ContentDetails.Duration),
			})
		}
	}
	return out, nil
}

// QuotaUsage exposes per-key quota counters for observability.
func (c *VideoClient) QuotaUsage() map[string]int64 { return c.keys.Usage() }

func parseCount(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// parseISODuration handles the PT#H#M#S subset the API emits.
func parseISODuration(s string) int64 {
	s = strings.TrimPrefix(s, "PT")
	var total, cur int64
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			cur = cur*10 + int64(r-'0')
		case r == 'H':
			total += cur * 3600
			cur = 0
		case r == 'M':
			total += cur * 60
			cur = 0
		case r == 'S':
			total += cur
			cur = 0
		default:
			cur = 0
		}
	}
	return total
}
