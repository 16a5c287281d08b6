package services

import (
	"regexp"
	"strings"

	"river-backend/internal/models"
)

const DefaultTone = "creator-friendly, punchy"

var youtubeIDRegex = regexp.MustCompile(`(?:v=|youtu\.be/|shorts/|embed/)([A-Za-z0-9_-]{6,})`)

// ExtractVideoID pulls the YouTube id out of watch, short-link, shorts and
// embed URLs.
func ExtractVideoID(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", newValidationError("youtube_url", "YouTube URL is required")
	}
	m := youtubeIDRegex.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return "", newValidationError("youtube_url", "Could not find a video id in the URL")
	}
	return m[1], nil
}

// ParsePlatforms keeps the supported names, drops the rest and falls back to
// twitter when nothing usable was asked for.
func ParsePlatforms(names []string) []models.Platform {
	var out []models.Platform
	for _, name := range names {
		for _, part := range models.SplitCSV(name) {
			if p, ok := models.ParsePlatform(part); ok {
				out = append(out, p)
			}
		}
	}
	if len(out) == 0 {
		return []models.Platform{models.PlatformTwitter}
	}
	return models.SortPlatforms(out)
}

// NormalizePlatforms applies the same rules to already typed platforms.
func NormalizePlatforms(platforms []models.Platform) []models.Platform {
	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = string(p)
	}
	return ParsePlatforms(names)
}

func CanonicalURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
