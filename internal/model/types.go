package model

import "time"

// Platform identifies one of the supported content sources.
type Platform string

const (
	PlatformVideo      Platform = "video"
	PlatformPhotoFeed  Platform = "photo_feed"
	PlatformShortVideo Platform = "short_video"
	PlatformLiveStream Platform = "live_stream"
)

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformVideo, PlatformPhotoFeed, PlatformShortVideo, PlatformLiveStream:
		return true
	}
	return false
}

// DataSource records how a snapshot was obtained.
type DataSource string

const (
	SourceAPI          DataSource = "api"
	SourceScrape       DataSource = "scrape"
	SourceDeepResearch DataSource = "deep_research"
)

// Creator is a talent under evaluation. Owned by one user.
type Creator struct {
	ID              int64
	UserID          int64
	Name            string
	PrimaryPlatform Platform
	Notes           string
	CreatedAt       time.Time
}

// SocialAccount links a creator to one profile on one platform.
type SocialAccount struct {
	ID            int64
	CreatorID     int64
	Platform      Platform
	ProfileURL    string
	Handle        string
	LastFetchedAt time.Time
}

// Stats is the unified profile statistics shape every platform client
// returns regardless of the vendor payload it was built from.
type Stats struct {
	Platform       Platform
	PlatformUserID string
	Handle         string
	Name           string
	Description    string
	Followers      int64
	Following      int64
	TotalPosts     int64
	TotalViews     int64
	EngagementRate float64
	Verified       bool
	Source         DataSource
}

// Item is one content item (post, video, stream VOD) in unified form.
type Item struct {
	ID        string
	AccountID int64
	Platform  Platform
	URL       string
	Title     string
	Caption   string
	PostedAt  time.Time
	Likes     int64
	Comments  int64
	Views     int64
	DurationS int64
	// Written back by video enrichment; zero until then.
	SafetyScore    float64
	AlignmentScore float64
}

// PlatformSnapshot is an append-only point-in-time stats record.
type PlatformSnapshot struct {
	ID             int64
	AccountID      int64
	Followers      int64
	Following      int64
	TotalPosts     int64
	EngagementRate float64
	Demographics   string // opaque JSON, filled by deep research
	Source         DataSource
	SnapshotAt     time.Time
}

// Brief is the campaign context scoring runs against.
type Brief struct {
	ID           int64
	UserID       int64
	Name         string
	Description  string
	BrandContext string
	Status       string
	CreatedAt    time.Time
}

// VideoInsight is the result of one video-enrichment pass.
type VideoInsight struct {
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	Method         string   `json:"analysis_method"`
	SafetyScore    float64  `json:"brand_safety_score"`
	RelevanceScore float64  `json:"relevance_score"`
	KeyTopics      []string `json:"key_topics,omitempty"`
	Concerns       []string `json:"concerns,omitempty"`
}

// AnalysisReport is one scoring result for a (brief, creator) pair.
// Reports are append-only; the current report is the newest by GeneratedAt.
type AnalysisReport struct {
	ID              int64
	BriefID         int64
	CreatorID       int64
	OverallScore    float64
	AlignmentScore  float64
	Summary         string
	Strengths       []string
	Concerns        []string
	Recommendations []string
	Cost            float64
	ModelUsed       string
	VideoInsights   []VideoInsight
	GeneratedAt     time.Time
}

// Research job lifecycle states.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// ResearchCacheEntry caches one long-running research job, keyed by a
// content hash of the query. Entries past ExpiresAt count as misses.
type ResearchCacheEntry struct {
	QueryHash    string
	QueryText    string
	QueryType    string
	CreatorID    int64
	AccountID    int64
	JobID        string
	Status       string
	Result       string // opaque JSON
	Cost         float64
	InputTokens  int64
	OutputTokens int64
	CreatedAt    time.Time
	CompletedAt  time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the entry is past its TTL at the given time.
func (e ResearchCacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// TokenUsage is the usage sub-object returned by the content-analysis
// and research services.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}
