package platform

import (
	"strings"

	"brandscout/internal/model"
)

// DetectPlatform guesses the platform from a profile URL. Returns ""
// when the host is not recognized.
func DetectPlatform(url string) model.Platform {
	u := strings.ToLower(url)
	switch {
	case strings.Contains(u, "youtube.com") || strings.Contains(u, "youtu.be"):
		return model.PlatformVideo
	case strings.Contains(u, "instagram.com"):
		return model.PlatformPhotoFeed
	case strings.Contains(u, "tiktok.com"):
		return model.PlatformShortVideo
	case strings.Contains(u, "twitch.tv"):
		return model.PlatformLiveStream
	}
	return ""
}

// ExtractHandle pulls the username/handle out of a profile URL.
func ExtractHandle(url string, p model.Platform) string {
	url = strings.TrimRight(url, "/")
	switch p {
	case model.PlatformVideo:
		for _, marker := range []string{"/@", "/channel/", "/c/", "/user/"} {
			if i := strings.Index(url, marker); i >= 0 {
				return trimQuery(url[i+len(marker):])
			}
		}
	case model.PlatformPhotoFeed:
		if _, rest, ok := strings.Cut(url, "instagram.com/"); ok {
			return trimQuery(strings.SplitN(rest, "/", 2)[0])
		}
	case model.PlatformShortVideo:
		if i := strings.Index(url, "/@"); i >= 0 {
			return trimQuery(url[i+2:])
		}
	case model.PlatformLiveStream:
		if _, rest, ok := strings.Cut(url, "twitch.tv/"); ok {
			return trimQuery(strings.SplitN(rest, "/", 2)[0])
		}
	}
	// Fallback: last path segment.
	parts := strings.Split(url, "/")
	return trimQuery(parts[len(parts)-1])
}

func trimQuery(s string) string {
	if i := strings.IndexByte(s, '?'); i >= 0 {
		return s[:i]
	}
	return s
}
