package models

import (
	"encoding/json"
	"sort"
	"strings"
)

type Platform string

const (
	PlatformTwitter  Platform = "twitter"
	PlatformLinkedIn Platform = "linkedin"
	PlatformCarousel Platform = "carousel"
)

var SupportedPlatforms = []Platform{PlatformTwitter, PlatformLinkedIn, PlatformCarousel}

// Output format tags
const (
	FormatThread = "thread"
	FormatPost   = "post"
	FormatSlides = "slides"
)

func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, supported := range SupportedPlatforms {
		if p == supported {
			return p, true
		}
	}
	return "", false
}

func (p Platform) Format() string {
	switch p {
	case PlatformTwitter:
		return FormatThread
	case PlatformLinkedIn:
		return FormatPost
	case PlatformCarousel:
		return FormatSlides
	default:
		return ""
	}
}

// SortPlatforms returns a sorted copy with duplicates removed.
func SortPlatforms(in []Platform) []Platform {
	seen := make(map[Platform]bool, len(in))
	out := make([]Platform, 0, len(in))
	for _, p := range in {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func ContainsPlatform(list []Platform, p Platform) bool {
	for _, item := range list {
		if item == p {
			return true
		}
	}
	return false
}

// StringList accepts either a JSON array of strings or a single
// comma-separated string.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*l = nil
		return nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}

	var csv string
	if err := json.Unmarshal(data, &csv); err != nil {
		return err
	}
	*l = SplitCSV(csv)
	return nil
}

func SplitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
