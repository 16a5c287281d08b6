package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("record not found")

const GenerationStatusSuccess = "success"

type Video struct {
	ID                 uuid.UUID `json:"id"`
	YouTubeVideoID     string    `json:"youtube_video_id"`
	OriginalURL        string    `json:"original_url"`
	Title              *string   `json:"title"`
	ThumbnailURL       *string   `json:"thumbnail_url"`
	Transcript         *string   `json:"-"`
	TranscriptLanguage *string   `json:"transcript_language"`
	Owner              Owner     `json:"owner"`
	LastUsedAt         time.Time `json:"last_used_at"`
	CreatedAt          time.Time `json:"created_at"`
}

// VideoUpsert is the write merged into the videos row keyed by YouTubeVideoID.
// Nil metadata fields leave the stored value alone.
type VideoUpsert struct {
	YouTubeVideoID string
	OriginalURL    string
	Title          *string
	ThumbnailURL   *string
	Owner          Owner
	LastUsedAt     time.Time
}

type Generation struct {
	ID            uuid.UUID       `json:"id"`
	VideoID       uuid.UUID       `json:"video_id"`
	Tone          string          `json:"tone"`
	Platforms     []Platform      `json:"platforms"`
	Status        string          `json:"status"`
	PromptVersion string          `json:"prompt_version"`
	CacheKey      string          `json:"cache_key"`
	ExtraOptions  json.RawMessage `json:"extra_options,omitempty"`
	Owner         Owner           `json:"owner"`
	CompletedAt   *time.Time      `json:"completed_at"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Output struct {
	ID           uuid.UUID      `json:"id"`
	GenerationID uuid.UUID      `json:"generation_id"`
	Platform     Platform       `json:"platform"`
	Format       string         `json:"format"`
	Content      string         `json:"content"`
	Metadata     OutputMetadata `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// OutputMetadata is the jsonb column on outputs.
type OutputMetadata struct {
	Type       string   `json:"type"`
	TweetCount int      `json:"tweet_count,omitempty"`
	Tweets     []string `json:"tweets,omitempty"`
	CharCount  int      `json:"char_count,omitempty"`
	SlideCount int      `json:"slide_count,omitempty"`
	Slides     []string `json:"slides,omitempty"`
}

const (
	OutputTypeTweetThread    = "tweet_thread"
	OutputTypeLinkedInPost   = "linkedin_post"
	OutputTypeCarouselSlides = "carousel_slides"
)

type CanonicalOutput struct {
	Platform         Platform `json:"platform"`
	Format           string   `json:"format"`
	PrimaryContent   string   `json:"primary_content"`
	StructuredFields []string `json:"structured_fields,omitempty"`
}

type OutputMap map[Platform]CanonicalOutput

// RawContent is what the language model returned for one platform:
// a list (tweets, slides) or a single body (post).
type RawContent struct {
	Parts []string
	Body  string
}

type RawOutputs map[Platform]RawContent

type VideoMetadata struct {
	Title        *string `json:"title"`
	ThumbnailURL *string `json:"thumbnail_url"`
}

type Transcript struct {
	FullText string `json:"full_text"`
	Language string `json:"language"`
}

// OwnerPatch re-owns a single row. With OnlyIfUnowned the write only lands
// when the row has neither owner column set.
type OwnerPatch struct {
	Owner         Owner
	OnlyIfUnowned bool
}

type ClaimResult struct {
	Videos      int64 `json:"videos"`
	Generations int64 `json:"generations"`
}

// ──── API shapes ────

type VideoSummary struct {
	ID         uuid.UUID `json:"id"`
	ExternalID string    `json:"external_id"`
	URL        string    `json:"url"`
	Title      *string   `json:"title"`
	Thumbnail  *string   `json:"thumbnail"`
}

func (v *Video) Summary() VideoSummary {
	return VideoSummary{
		ID:         v.ID,
		ExternalID: v.YouTubeVideoID,
		URL:        v.OriginalURL,
		Title:      v.Title,
		Thumbnail:  v.ThumbnailURL,
	}
}

type GenerationInputs struct {
	Tone              string     `json:"tone"`
	Platforms         []Platform `json:"platforms"`
	ForceRegen        bool       `json:"force_regen"`
	TweakInstructions string     `json:"tweak_instructions"`
}

type GenerationResponse struct {
	Video      VideoSummary     `json:"video"`
	Generation *Generation      `json:"generation"`
	Inputs     GenerationInputs `json:"inputs"`
	Outputs    OutputMap        `json:"outputs"`
	FromCache  bool             `json:"from_cache"`
}

type GenerationListItem struct {
	Generation *Generation  `json:"generation"`
	Video      VideoSummary `json:"video"`
}

type GenerateRequest struct {
	YouTubeURL        string          `json:"youtube_url" validate:"omitempty,max=2048"`
	URL               string          `json:"url" validate:"omitempty,max=2048"`
	Tone              string          `json:"tone" validate:"max=200"`
	Platforms         StringList      `json:"platforms" validate:"max=10"`
	ForceRegen        bool            `json:"force_regen"`
	TweakInstructions string          `json:"tweak_instructions" validate:"max=4000"`
	ExtraOptions      json.RawMessage `json:"extra_options"`
	SessionID         string          `json:"session_id" validate:"omitempty,max=128"`
}

type ClaimRequest struct {
	AnonymousSessionID string `json:"anonymous_session_id" validate:"required,max=128"`
	UserID             string `json:"user_id" validate:"omitempty,uuid"`
}

type ClaimResponse struct {
	Success bool        `json:"success"`
	Claimed ClaimResult `json:"claimed"`
	Message string      `json:"message"`
}
