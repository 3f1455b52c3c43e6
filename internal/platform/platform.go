package platform

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"brandscout/internal/config"
	"brandscout/internal/model"
)

// Client unifies one content source's profile/content API. Vendor
// payloads differ; every implementation returns the same Stats/Item
// shapes and the same failure contract.
type Client interface {
	ProfileStats(ctx context.Context, profileURL string) (model.Stats, error)
	RecentItems(ctx context.Context, profileURL string, sinceDays, maxItems int) ([]model.Item, error)
}

// ClientError means one data source failed after retry exhaustion.
// The orchestrator treats it as a skippable partial failure.
type ClientError struct {
	Platform model.Platform
	Op       string
	Err      error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Platform, e.Op, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

func clientErr(p model.Platform, op string, err error) *ClientError {
	return &ClientError{Platform: p, Op: op, Err: err}
}

// Bounds on maxItems accepted by RecentItems.
const (
	minItems = 5
	maxItems = 200
)

func clampItems(v int) int {
	if v < minItems {
		return minItems
	}
	if v > maxItems {
		return maxItems
	}
	return v
}

// cutoff returns the oldest acceptable timestamp for a sinceDays filter.
func cutoff(now time.Time, sinceDays int) time.Time {
	return now.AddDate(0, 0, -sinceDays)
}

// Deps carries shared collaborators into client constructors.
type Deps struct {
	HTTPClient *http.Client
	Logger     *logrus.Entry
	Retry      RetryConfig
	UserAgent  string
	Limiter    *rate.Limiter

	VideoKeys          []string
	StreamClientID     string
	StreamClientSecret string
}

// NewDeps builds Deps from config with shared HTTP client settings.
func NewDeps(cfg config.Config, logger *logrus.Entry) Deps {
	return Deps{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger,
		Retry: RetryConfig{
			MaxAttempts: cfg.Platforms.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Platforms.BaseDelayMS) * time.Millisecond,
		},
		UserAgent:          cfg.Platforms.UserAgent,
		Limiter:            rate.NewLimiter(rate.Limit(cfg.Platforms.RequestsPerS), cfg.Platforms.Burst),
		VideoKeys:          cfg.Credentials.VideoAPIKeys,
		StreamClientID:     cfg.Credentials.StreamClientID,
		StreamClientSecret: cfg.Credentials.StreamClientSecret,
	}
}

// ForPlatform returns the client implementation for a platform.
func ForPlatform(p model.Platform, deps Deps) (Client, error) {
	switch p {
	case model.PlatformVideo:
		return NewVideoClient(deps), nil
	case model.PlatformPhotoFeed:
		return NewPhotoFeedClient(deps), nil
	case model.PlatformShortVideo:
		return NewShortVideoClient(deps), nil
	case model.PlatformLiveStream:
		return NewStreamClient(deps), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", p)
	}
}
