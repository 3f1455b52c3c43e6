package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"brandscout/internal/model"
)

// StreamClient talks to the live-streaming platform's API using
// client-credentials tokens, refreshing once on 401.
type StreamClient struct {
	apiURL  string
	authURL string
	hc      *http.Client
	exec    failsafe.Executor[*http.Response]
	limiter *rate.Limiter
	log     *logrus.Entry

	clientID     string
	clientSecret string

	mu    sync.Mutex
	token string
}

func NewStreamClient(deps Deps) *StreamClient {
	return &StreamClient{
		apiURL:       "https://api.twitch.tv/helix",
		authURL:      "https://id.twitch.tv/oauth2/token",
		hc:           deps.HTTPClient,
		exec:         NewHTTPExecutor("live_stream", deps.Retry),
		limiter:      deps.Limiter,
		log:          deps.Logger.WithField("platform", model.PlatformLiveStream),
		clientID:     deps.StreamClientID,
		clientSecret: deps.StreamClientSecret,
	}
}

func (c *StreamClient) fetchToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := Do(ctx, c.exec, c.hc, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("stream auth status %d", resp.StatusCode)
	}
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("stream auth returned empty token")
	}
	return tok.AccessToken, nil
}

func (c *StreamClient) currentToken(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || force {
		tok, err := c.fetchToken(ctx)
		if err != nil {
			return "", err
		}
		c.token = tok
	}
	return c.token, nil
}

// getJSON performs an authenticated API GET, refreshing the app token
// once if it has expired.
func (c *StreamClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	refreshed := false
	for {
		tok, err := c.currentToken(ctx, refreshed)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path+"?"+params.Encode(), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("Client-Id", c.clientID)
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := Do(ctx, c.exec, c.hc, req)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized && !refreshed {
			_ = resp.Body.Close()
			c.log.Info("stream token expired, refreshing")
			refreshed = true
			continue
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("stream api status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}
}

func (c *StreamClient) ProfileStats(ctx context.Context, profileURL string) (model.Stats, error) {
	handle := ExtractHandle(profileURL, model.PlatformLiveStream)

	var users struct {
		Data []struct {
			ID          string `json:"id"`
			Login       string `json:"login"`
			DisplayName string `json:"display_name"`
			Description string `json:"description"`
			BroadType   string `json:"broadcaster_type"`
		} `json:"data"`
	}
	params := url.Values{}
	params.Set("login", handle)
	if err := c.getJSON(ctx, "/users", params, &users); err != nil {
		return model.Stats{}, clientErr(model.PlatformLiveStream, "profile stats", err)
	}
	if len(users.Data) == 0 {
		return model.Stats{}, clientErr(model.PlatformLiveStream, "profile stats", fmt.Errorf("channel not found: %s", handle))
	}
	u := users.Data[0]

	var followers struct {
		Total int64 `json:"total"`
	}
	fp := url.Values{}
	fp.Set("broadcaster_id", u.ID)
	if err := c.getJSON(ctx, "/channels/followers", fp, &followers); err != nil {
		return model.Stats{}, clientErr(model.PlatformLiveStream, "profile stats", err)
	}

	return model.Stats{
		Platform:       model.PlatformLiveStream,
		PlatformUserID: u.ID,
		Handle:         u.Login,
		Name:           u.DisplayName,
		Description:    u.Description,
		Followers:      followers.Total,
		Verified:       u.BroadType == "partner",
		Source:         model.SourceAPI,
	}, nil
}

func (c *StreamClient) RecentItems(ctx context.Context, profileURL string, sinceDays, maxN int) ([]model.Item, error) {
	maxN = clampItems(maxN)
	oldest := cutoff(time.Now().UTC(), sinceDays)
	handle := ExtractHandle(profileURL, model.PlatformLiveStream)

	var users struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	up := url.Values{}
	up.Set("login", handle)
	if err := c.getJSON(ctx, "/users", up, &users); err != nil {
		return nil, clientErr(model.PlatformLiveStream, "recent items", err)
	}
	if len(users.Data) == 0 {
		return nil, clientErr(model.PlatformLiveStream, "recent items", fmt.Errorf("channel not found: %s", handle))
	}

	var vids struct {
		Data []struct {
			ID        string    `json:"id"`
			Title     string    `json:"title"`
			URL       string    `json:"url"`
			CreatedAt time.Time `json:"created_at"`
			ViewCount int64     `json:"view_count"`
			Duration  string    `json:"duration"`
		} `json:"data"`
	}
	vp := url.Values{}
	vp.Set("user_id", users.Data[0].ID)
	vp.Set("first", strconv.Itoa(min(100, maxN)))
	vp.Set("type", "archive")
	if err := c.getJSON(ctx, "/videos", vp, &vids); err != nil {
		return nil, clientErr(model.PlatformLiveStream, "recent items", err)
	}

	var out []model.Item
	for _, v := range vids.Data {
		// VODs come newest-first.
		if v.CreatedAt.Before(oldest) {
			break
		}
		out = append(out, model.Item{
			ID:        v.ID,
			Platform:  model.PlatformLiveStream,
			URL:       v.URL,
			Title:     v.Title,
			PostedAt:  v.CreatedAt,
			Views:     v.ViewCount,
			DurationS: parseStreamDuration(v.Duration),
		})
		if len(out) >= maxN {
			break
		}
	}
	return out, nil
}

// parseStreamDuration handles the "1h2m3s" form VODs report.
func parseStreamDuration(s string) int64 {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return int64(d.Seconds())
}
