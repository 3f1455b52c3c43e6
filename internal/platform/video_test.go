package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func channelJSON() string {
	return `{"items":[{"id":"UCabc","snippet":{"title":"Trail Channel","description":"hikes","customUrl":"@trail"},
		"statistics":{"subscriberCount":"150000","videoCount":"320","viewCount":"9000000"},
		"contentDetails":{"relatedPlaylists":{"uploads":"UUabc"}}}]}`
}

func newVideoClient(srvURL string, keys []string) *VideoClient {
	deps := testDeps(http.DefaultClient)
	deps.VideoKeys = keys
	c := NewVideoClient(deps)
	c.baseURL = srvURL
	return c
}

func TestVideoProfileStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == "" {
			t.Error("request missing API key")
		}
		fmt.Fprint(w, channelJSON())
	}))
	defer srv.Close()

	c := newVideoClient(srv.URL, []string{"k1"})
	stats, err := c.ProfileStats(context.Background(), "https://www.youtube.com/@trail")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Followers != 150000 || stats.TotalPosts != 320 || stats.TotalViews != 9000000 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.PlatformUserID != "UCabc" {
		t.Fatalf("user id = %q", stats.PlatformUserID)
	}
	if used := c.QuotaUsage()["k1"]; used != 1 {
		t.Fatalf("quota usage = %d, want 1", used)
	}
}

func TestVideoKeyRotationOnQuota(t *testing.T) {
	var seenKeys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		seenKeys = append(seenKeys, key)
		if key == "k1" {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":{"errors":[{"reason":"quotaExceeded"}]}}`)
			return
		}
		fmt.Fprint(w, channelJSON())
	}))
	defer srv.Close()

	c := newVideoClient(srv.URL, []string{"k1", "k2"})
	stats, err := c.ProfileStats(context.Background(), "https://www.youtube.com/@trail")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Followers != 150000 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(seenKeys) != 2 || seenKeys[0] != "k1" || seenKeys[1] != "k2" {
		t.Fatalf("seen keys = %v, want rotation k1 then k2", seenKeys)
	}
}

func TestVideoAllKeysExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"errors":[{"reason":"quotaExceeded"}]}}`)
	}))
	defer srv.Close()

	c := newVideoClient(srv.URL, []string{"k1", "k2"})
	_, err := c.ProfileStats(context.Background(), "https://www.youtube.com/@trail")
	if !errors.Is(err, ErrKeysExhausted) {
		t.Fatalf("err = %v, want ErrKeysExhausted", err)
	}
	var ce *ClientError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *ClientError wrapper", err)
	}
}

func TestVideoRecentItems(t *testing.T) {
	now := time.Now().UTC()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/channels":
			fmt.Fprint(w, channelJSON())
		case "/playlistItems":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []any{
					map[string]any{
						"snippet":        map[string]any{"publishedAt": now.Add(-48 * time.Hour)},
						"contentDetails": map[string]any{"videoId": "v1"},
					},
					map[string]any{
						"snippet":        map[string]any{"publishedAt": now.AddDate(-3, 0, 0)},
						"contentDetails": map[string]any{"videoId": "ancient"},
					},
				},
			})
		case "/videos":
			if got := r.URL.Query().Get("id"); got != "v1" {
				t.Errorf("videos batch = %q, want v1 only", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []any{map[string]any{
					"id":             "v1",
					"snippet":        map[string]any{"title": "Summit Day", "publishedAt": now.Add(-48 * time.Hour)},
					"statistics":     map[string]any{"viewCount": "5000", "likeCount": "200", "commentCount": "30"},
					"contentDetails": map[string]any{"duration": "PT10M30S"},
				}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newVideoClient(srv.URL, []string{"k1"})
	items, err := c.RecentItems(context.Background(), "https://www.youtube.com/@trail", 730, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1 (window filter applied)", len(items))
	}
	it := items[0]
	if it.Title != "Summit Day" || it.Views != 5000 || it.DurationS != 630 {
		t.Fatalf("item = %+v", it)
	}
}

func TestParseISODuration(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want int64
	}{
		{"PT10M30S", 630},
		{"PT1H2M3S", 3723},
		{"PT45S", 45},
		{"PT2H", 7200},
		{"", 0},
	} {
		if got := parseISODuration(tc.in); got != tc.want {
			t.Errorf("parseISODuration(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
