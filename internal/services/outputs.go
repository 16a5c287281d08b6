package services

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"river-backend/internal/models"
)

const blockSeparator = "\n\n"

var blankLines = regexp.MustCompile(`\n\n+`)

// NormalizeGenerated turns fresh model output into the canonical map. Every
// platform in want must come back non-empty; a partial answer is an error.
func NormalizeGenerated(raw models.RawOutputs, want []models.Platform) (models.OutputMap, error) {
	out := make(models.OutputMap, len(want))
	var missing []string
	for _, p := range want {
		content, ok := raw[p]
		if !ok {
			missing = append(missing, string(p))
			continue
		}
		canonical, ok := canonicalFromRaw(p, content)
		if !ok {
			missing = append(missing, string(p))
			continue
		}
		out[p] = canonical
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("generator returned no content for %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func canonicalFromRaw(p models.Platform, raw models.RawContent) (models.CanonicalOutput, bool) {
	switch p {
	case models.PlatformTwitter, models.PlatformCarousel:
		parts := cleanParts(raw.Parts)
		if len(parts) == 0 {
			parts = splitBlocks(raw.Body)
		}
		return listOutput(p, parts)
	case models.PlatformLinkedIn:
		body := strings.TrimSpace(raw.Body)
		if body == "" {
			body = strings.Join(cleanParts(raw.Parts), blockSeparator)
		}
		return bodyOutput(p, body)
	}
	return models.CanonicalOutput{}, false
}

// NormalizeStored rebuilds the canonical map from output rows. Rows written
// without a structured list fall back to splitting content on blank lines.
func NormalizeStored(rows []models.Output) models.OutputMap {
	out := make(models.OutputMap, len(rows))
	for _, row := range rows {
		p, ok := models.ParsePlatform(string(row.Platform))
		if !ok {
			continue
		}

		var canonical models.CanonicalOutput
		switch p {
		case models.PlatformTwitter:
			parts := cleanParts(row.Metadata.Tweets)
			if len(parts) == 0 {
				parts = splitBlocks(row.Content)
			}
			canonical, ok = listOutput(p, parts)
		case models.PlatformCarousel:
			parts := cleanParts(row.Metadata.Slides)
			if len(parts) == 0 {
				parts = splitBlocks(row.Content)
			}
			canonical, ok = listOutput(p, parts)
		case models.PlatformLinkedIn:
			canonical, ok = bodyOutput(p, strings.TrimSpace(row.Content))
		}
		if ok {
			out[p] = canonical
		}
	}
	return out
}

// BuildOutputRows renders the canonical outputs for the given platforms as
// rows, keeping both the joined content and the structured list.
func BuildOutputRows(generationID uuid.UUID, outputs models.OutputMap, platforms []models.Platform) []models.Output {
	rows := make([]models.Output, 0, len(platforms))
	for _, p := range models.SortPlatforms(platforms) {
		canonical, ok := outputs[p]
		if !ok {
			continue
		}

		row := models.Output{
			GenerationID: generationID,
			Platform:     p,
			Format:       p.Format(),
			Content:      canonical.PrimaryContent,
		}
		switch p {
		case models.PlatformTwitter:
			row.Metadata = models.OutputMetadata{
				Type:       models.OutputTypeTweetThread,
				TweetCount: len(canonical.StructuredFields),
				Tweets:     canonical.StructuredFields,
			}
		case models.PlatformLinkedIn:
			row.Metadata = models.OutputMetadata{
				Type:      models.OutputTypeLinkedInPost,
				CharCount: utf8.RuneCountInString(canonical.PrimaryContent),
			}
		case models.PlatformCarousel:
			row.Metadata = models.OutputMetadata{
				Type:       models.OutputTypeCarouselSlides,
				SlideCount: len(canonical.StructuredFields),
				Slides:     canonical.StructuredFields,
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func listOutput(p models.Platform, parts []string) (models.CanonicalOutput, bool) {
	if len(parts) == 0 {
		return models.CanonicalOutput{}, false
	}
	return models.CanonicalOutput{
		Platform:         p,
		Format:           p.Format(),
		PrimaryContent:   strings.Join(parts, blockSeparator),
		StructuredFields: parts,
	}, true
}

func bodyOutput(p models.Platform, body string) (models.CanonicalOutput, bool) {
	if body == "" {
		return models.CanonicalOutput{}, false
	}
	return models.CanonicalOutput{
		Platform:       p,
		Format:         p.Format(),
		PrimaryContent: body,
	}, true
}

func cleanParts(parts []string) []string {
	var out []string
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func splitBlocks(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return cleanParts(blankLines.Split(text, -1))
}
