package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"river-backend/internal/models"
)

const defaultGeminiModel = "gemini-2.5-flash"

// transcriptCharLimit keeps very long videos inside the model context.
const transcriptCharLimit = 60000

type GeminiService struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	log      *logrus.Logger
	rateChan chan struct{} // Token bucket
}

func NewGeminiService(apiKey, modelName string, concurrentReqs int, log *logrus.Logger) (*GeminiService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if modelName == "" {
		modelName = defaultGeminiModel
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.7)
	model.SetTopP(0.95)
	model.ResponseMIMEType = "application/json"

	if concurrentReqs <= 0 {
		concurrentReqs = 1
	}
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiService{
		client:   client,
		model:    model,
		log:      log,
		rateChan: rateChan,
	}, nil
}

func (s *GeminiService) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *GeminiService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *GeminiService) releaseRate() {
	s.rateChan <- struct{}{}
}

// Generate asks the model for copy on every platform in the prompt.
func (s *GeminiService) Generate(ctx context.Context, p GenerationPrompt) (models.RawOutputs, error) {
	if err := s.acquireRate(ctx); err != nil {
		return nil, err
	}
	defer s.releaseRate()

	resp, err := s.model.GenerateContent(ctx, genai.Text(buildSocialPrompt(p)))
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			s.log.WithFields(logrus.Fields{
				"candidate":     i,
				"finish_reason": cand.FinishReason.String(),
			}).Warn("Gemini stopped early")
		}
	}

	rawText := extractText(resp)
	if strings.TrimSpace(rawText) == "" {
		return nil, fmt.Errorf("Gemini returned empty text")
	}
	return parseSocialOutputs(rawText)
}

// socialJSON is the object the prompt asks the model to return.
type socialJSON struct {
	TweetThread    []string `json:"tweet_thread"`
	LinkedInPost   string   `json:"linkedin_post"`
	CarouselSlides []string `json:"carousel_slides"`
}

func parseSocialOutputs(rawText string) (models.RawOutputs, error) {
	rawText = strings.TrimSpace(rawText)
	rawText = strings.TrimPrefix(rawText, "```json")
	rawText = strings.TrimPrefix(rawText, "```")
	rawText = strings.TrimSuffix(rawText, "```")
	rawText = strings.TrimSpace(rawText)

	var parsed socialJSON
	if err := json.Unmarshal([]byte(rawText), &parsed); err != nil {
		// Try to extract JSON object
		start := strings.Index(rawText, "{")
		end := strings.LastIndex(rawText, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("Gemini response is not JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(rawText[start:end+1]), &parsed); err != nil {
			return nil, fmt.Errorf("Gemini response is not JSON: %w", err)
		}
	}

	out := make(models.RawOutputs)
	if len(parsed.TweetThread) > 0 {
		out[models.PlatformTwitter] = models.RawContent{Parts: parsed.TweetThread}
	}
	if strings.TrimSpace(parsed.LinkedInPost) != "" {
		out[models.PlatformLinkedIn] = models.RawContent{Body: parsed.LinkedInPost}
	}
	if len(parsed.CarouselSlides) > 0 {
		out[models.PlatformCarousel] = models.RawContent{Parts: parsed.CarouselSlides}
	}
	return out, nil
}

func buildSocialPrompt(p GenerationPrompt) string {
	var b strings.Builder

	// Layer 1 — Role
	b.WriteString("You are a social media ghostwriter who turns YouTube videos into native posts for each platform.\n\n")

	// Layer 2 — Output contract
	b.WriteString("CRITICAL: Return ONLY a valid JSON object. No preamble, no markdown, no backticks.\n")
	b.WriteString("Include exactly these keys and nothing else:\n")
	for _, platform := range p.Platforms {
		switch platform {
		case models.PlatformTwitter:
			b.WriteString(`- "tweet_thread": array of 5-8 tweets, each under 280 characters, the first one a hook` + "\n")
		case models.PlatformLinkedIn:
			b.WriteString(`- "linkedin_post": one post of 150-300 words with short paragraphs separated by blank lines` + "\n")
		case models.PlatformCarousel:
			b.WriteString(`- "carousel_slides": array of 6-10 slide texts, each under 200 characters, the first a title slide` + "\n")
		}
	}
	b.WriteString("\n")

	// Layer 3 — Tone
	b.WriteString(fmt.Sprintf("Tone: %s.\n\n", p.Tone))

	// Layer 4 — Tweak
	if tweak := strings.TrimSpace(p.TweakInstructions); tweak != "" {
		b.WriteString(fmt.Sprintf("Revision request from the author (apply it): %s\n\n", tweak))
	}

	// Layer 5 — Extra options
	if len(p.ExtraOptions) > 0 {
		keys := make([]string, 0, len(p.ExtraOptions))
		for k := range p.ExtraOptions {
			if k == targetPlatformOption {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf("Option %s: %v\n", k, p.ExtraOptions[k]))
		}
		if len(keys) > 0 {
			b.WriteString("\n")
		}
	}

	// Layer 6 — Source
	if p.VideoTitle != "" {
		b.WriteString(fmt.Sprintf("Video title: %s\n", p.VideoTitle))
	}
	transcript := truncateUTF8(p.Transcript, transcriptCharLimit)
	b.WriteString("---TRANSCRIPT START---\n")
	b.WriteString(transcript)
	b.WriteString("\n---TRANSCRIPT END---\n")

	return b.String()
}

// Helper functions

// truncateUTF8 cuts s to at most limit bytes without splitting a rune.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
