package services

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"river-backend/internal/models"
)

// PromptVersion is part of every cache key. Bump it whenever the prompt
// changes so old generations stop matching.
const PromptVersion = "v1"

const cacheKeyDelimiter = "|"

type CacheKeyInput struct {
	VideoID       string
	Tone          string
	Platforms     []models.Platform
	PromptVersion string
	ExtraOptions  json.RawMessage
}

// BuildCacheKey derives the key that identifies a generation. Tone casing and
// whitespace, platform order and option key order never change the key.
func BuildCacheKey(in CacheKeyInput) (string, error) {
	videoID := strings.TrimSpace(in.VideoID)
	if videoID == "" {
		return "", newValidationError("video_id", "Video identifier is required")
	}

	options, err := CanonicalOptions(in.ExtraOptions)
	if err != nil {
		return "", err
	}

	version := in.PromptVersion
	if version == "" {
		version = PromptVersion
	}

	return strings.Join([]string{
		videoID,
		NormalizeTone(in.Tone),
		strings.Join(normalizePlatformNames(in.Platforms), ","),
		version,
		options,
	}, cacheKeyDelimiter), nil
}

func NormalizeTone(tone string) string {
	return strings.ToLower(strings.TrimSpace(tone))
}

func normalizePlatformNames(platforms []models.Platform) []string {
	normalized := make([]models.Platform, 0, len(platforms))
	for _, p := range platforms {
		name := strings.ToLower(strings.TrimSpace(string(p)))
		if name != "" {
			normalized = append(normalized, models.Platform(name))
		}
	}
	sorted := models.SortPlatforms(normalized)
	names := make([]string, len(sorted))
	for i, p := range sorted {
		names[i] = string(p)
	}
	return names
}

// CanonicalOptions re-serializes an extra-options object with keys sorted at
// every depth. Absent or null options give "", anything that is not an object
// is rejected.
func CanonicalOptions(raw json.RawMessage) (string, error) {
	opts, err := decodeOptions(raw)
	if err != nil {
		return "", err
	}
	if opts == nil {
		return "", nil
	}
	return encodeOptions(opts)
}

func decodeOptions(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var opts map[string]any
	if err := dec.Decode(&opts); err != nil || opts == nil {
		return nil, newValidationError("extra_options", "Extra options must be a JSON object")
	}
	return opts, nil
}

// encoding/json writes map keys in sorted order, nested maps included.
func encodeOptions(opts map[string]any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(canonicalNumbers(opts)); err != nil {
		return "", newValidationError("extra_options", "Extra options could not be serialized")
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// canonicalNumbers rewrites every number so that equal values share one
// spelling: 1.0, 1.00 and 1e0 all become 1. Integer literals are kept as
// written so ids beyond float precision survive.
func canonicalNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = canonicalNumbers(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = canonicalNumbers(item)
		}
		return out
	case json.Number:
		return canonicalNumber(t)
	}
	return v
}

func canonicalNumber(n json.Number) json.Number {
	text := n.String()
	if !strings.ContainsAny(text, ".eE") {
		return n
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return n
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return json.Number(strconv.FormatFloat(f, 'f', -1, 64))
	}
	return json.Number(strconv.FormatFloat(f, 'g', -1, 64))
}
