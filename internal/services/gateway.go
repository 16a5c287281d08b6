package services

import (
	"context"

	"github.com/google/uuid"

	"river-backend/internal/models"
)

// Gateway is the durable store behind the generation pipeline. It is
// implemented over pgx (repository.Store) and over PostgREST (rest.Store).
type Gateway interface {
	UpsertVideo(ctx context.Context, in models.VideoUpsert) (*models.Video, error)
	SaveTranscript(ctx context.Context, videoID uuid.UUID, t models.Transcript) error
	GetVideo(ctx context.Context, id uuid.UUID) (*models.Video, error)

	// FindGenerationByKey returns nil without error when no success
	// generation has the key.
	FindGenerationByKey(ctx context.Context, cacheKey string) (*models.Generation, error)
	GetGeneration(ctx context.Context, id uuid.UUID) (*models.Generation, error)
	ListGenerationsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Generation, error)
	// UpsertGeneration inserts or merges on cache_key and fills in the
	// stored id, owner and timestamps.
	UpsertGeneration(ctx context.Context, gen *models.Generation) error

	ListOutputs(ctx context.Context, generationID uuid.UUID) ([]models.Output, error)
	// ReplaceOutputs deletes the outputs for platforms (all of them when nil)
	// and inserts rows.
	ReplaceOutputs(ctx context.Context, generationID uuid.UUID, platforms []models.Platform, rows []models.Output) error

	PatchVideoOwner(ctx context.Context, id uuid.UUID, patch models.OwnerPatch) (bool, error)
	PatchGenerationOwner(ctx context.Context, id uuid.UUID, patch models.OwnerPatch) (bool, error)
	ClaimSession(ctx context.Context, sessionID string, userID uuid.UUID) (models.ClaimResult, error)
}

type MetadataSource interface {
	Lookup(ctx context.Context, videoID string) (models.VideoMetadata, error)
}

type TranscriptSource interface {
	Fetch(ctx context.Context, videoID string) (models.Transcript, error)
}

type GenerationPrompt struct {
	VideoTitle        string
	Transcript        string
	Tone              string
	Platforms         []models.Platform
	TweakInstructions string
	ExtraOptions      map[string]any
}

type ContentGenerator interface {
	Generate(ctx context.Context, prompt GenerationPrompt) (models.RawOutputs, error)
}
