// Package rest implements the persistence gateway over a Supabase PostgREST
// endpoint, for deployments that only hold a service key and no direct
// database connection.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	postgrest "github.com/supabase-community/postgrest-go"

	"river-backend/internal/models"
)

const (
	videosTable      = "videos"
	generationsTable = "generations"
	outputsTable     = "outputs"
)

// Store talks to PostgREST. The client has no context support, so contexts
// are only checked before each request.
type Store struct {
	client *postgrest.Client
	log    *logrus.Logger
}

// NewStore builds a client for supabaseURL (without the /rest/v1 suffix).
func NewStore(supabaseURL, serviceKey string, log *logrus.Logger) (*Store, error) {
	client := postgrest.NewClient(strings.TrimRight(supabaseURL, "/")+"/rest/v1", "", map[string]string{
		"apikey":        serviceKey,
		"Authorization": fmt.Sprintf("Bearer %s", serviceKey),
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("failed to initialize PostgREST client: %w", client.ClientError)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{client: client, log: log}, nil
}

type videoRow struct {
	ID                 uuid.UUID  `json:"id"`
	YouTubeVideoID     string     `json:"youtube_video_id"`
	OriginalURL        string     `json:"original_url"`
	Title              *string    `json:"title"`
	ThumbnailURL       *string    `json:"thumbnail_url"`
	Transcript         *string    `json:"transcript"`
	TranscriptLanguage *string    `json:"transcript_language"`
	UserID             *uuid.UUID `json:"user_id"`
	AnonymousSessionID *string    `json:"anonymous_session_id"`
	LastUsedAt         time.Time  `json:"last_used_at"`
	CreatedAt          time.Time  `json:"created_at"`
}

func (r videoRow) model() *models.Video {
	return &models.Video{
		ID:                 r.ID,
		YouTubeVideoID:     r.YouTubeVideoID,
		OriginalURL:        r.OriginalURL,
		Title:              r.Title,
		ThumbnailURL:       r.ThumbnailURL,
		Transcript:         r.Transcript,
		TranscriptLanguage: r.TranscriptLanguage,
		Owner:              models.OwnerFromColumns(r.UserID, r.AnonymousSessionID),
		LastUsedAt:         r.LastUsedAt,
		CreatedAt:          r.CreatedAt,
	}
}

type generationRow struct {
	ID                 uuid.UUID         `json:"id"`
	VideoID            uuid.UUID         `json:"video_id"`
	Tone               string            `json:"tone"`
	Platforms          []models.Platform `json:"platforms"`
	Status             string            `json:"status"`
	PromptVersion      string            `json:"prompt_version"`
	CacheKey           string            `json:"cache_key"`
	ExtraOptions       json.RawMessage   `json:"extra_options"`
	UserID             *uuid.UUID        `json:"user_id"`
	AnonymousSessionID *string           `json:"anonymous_session_id"`
	CompletedAt        *time.Time        `json:"completed_at"`
	CreatedAt          time.Time         `json:"created_at"`
}

func (r generationRow) model() *models.Generation {
	g := &models.Generation{
		ID:            r.ID,
		VideoID:       r.VideoID,
		Tone:          r.Tone,
		Platforms:     r.Platforms,
		Status:        r.Status,
		PromptVersion: r.PromptVersion,
		CacheKey:      r.CacheKey,
		Owner:         models.OwnerFromColumns(r.UserID, r.AnonymousSessionID),
		CompletedAt:   r.CompletedAt,
		CreatedAt:     r.CreatedAt,
	}
	if len(r.ExtraOptions) > 0 && string(r.ExtraOptions) != "null" {
		g.ExtraOptions = r.ExtraOptions
	}
	return g
}

type outputRow struct {
	ID           uuid.UUID             `json:"id,omitempty"`
	GenerationID uuid.UUID             `json:"generation_id"`
	Platform     models.Platform       `json:"platform"`
	Format       string                `json:"format"`
	Content      string                `json:"content"`
	Metadata     models.OutputMetadata `json:"metadata"`
	CreatedAt    *time.Time            `json:"created_at,omitempty"`
}

// ──── Videos ────

// UpsertVideo merges on youtube_video_id. The owner is not part of the merge
// payload; it is applied afterwards with a conditional patch so an anonymous
// caller never displaces an existing owner. The row is already written by
// then, so a failed patch only leaves the stored owner in place.
func (s *Store) UpsertVideo(ctx context.Context, in models.VideoUpsert) (*models.Video, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lastUsed := in.LastUsedAt
	if lastUsed.IsZero() {
		lastUsed = time.Now()
	}
	payload := map[string]interface{}{
		"youtube_video_id": in.YouTubeVideoID,
		"original_url":     in.OriginalURL,
		"last_used_at":     lastUsed.UTC(),
	}
	if in.Title != nil {
		payload["title"] = *in.Title
	}
	if in.ThumbnailURL != nil {
		payload["thumbnail_url"] = *in.ThumbnailURL
	}

	var rows []videoRow
	_, err := s.client.From(videosTable).
		Upsert(payload, "youtube_video_id", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("upsert video: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("upsert video: no row returned for %s", in.YouTubeVideoID)
	}
	video := rows[0].model()

	if in.Owner.IsZero() || video.Owner == in.Owner {
		return video, nil
	}
	patch := models.OwnerPatch{Owner: in.Owner, OnlyIfUnowned: in.Owner.Kind() == models.OwnerAnonymous}
	if s.applyOwner(videosTable, video.ID, patch) {
		video.Owner = in.Owner
	}
	return video, nil
}

func (s *Store) GetVideo(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []videoRow
	_, err := s.client.From(videosTable).
		Select("*", "", false).
		Eq("id", id.String()).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, models.ErrNotFound
	}
	return rows[0].model(), nil
}

func (s *Store) SaveTranscript(ctx context.Context, videoID uuid.UUID, t models.Transcript) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, _, err := s.client.From(videosTable).
		Update(map[string]interface{}{
			"transcript":          t.FullText,
			"transcript_language": t.Language,
		}, "minimal", "").
		Eq("id", videoID.String()).
		Execute()
	return err
}

func (s *Store) PatchVideoOwner(ctx context.Context, id uuid.UUID, patch models.OwnerPatch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.patchOwner(videosTable, id, patch)
}

// ──── Generations ────

func (s *Store) FindGenerationByKey(ctx context.Context, cacheKey string) (*models.Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []generationRow
	_, err := s.client.From(generationsTable).
		Select("*", "", false).
		Eq("cache_key", cacheKey).
		Eq("status", models.GenerationStatusSuccess).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].model(), nil
}

func (s *Store) GetGeneration(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []generationRow
	_, err := s.client.From(generationsTable).
		Select("*", "", false).
		Eq("id", id.String()).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, models.ErrNotFound
	}
	return rows[0].model(), nil
}

func (s *Store) ListGenerationsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	var rows []generationRow
	_, err := s.client.From(generationsTable).
		Select("*", "", false).
		Eq("user_id", userID.String()).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Range(offset, offset+limit-1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, err
	}

	gens := make([]*models.Generation, 0, len(rows))
	for _, r := range rows {
		gens = append(gens, r.model())
	}
	return gens, nil
}

// UpsertGeneration merges on cache_key. As with videos, the owner is applied
// by a second, conditional patch whose failure is not fatal.
func (s *Store) UpsertGeneration(ctx context.Context, g *models.Generation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var extra interface{}
	if len(g.ExtraOptions) > 0 {
		extra = g.ExtraOptions
	}
	payload := map[string]interface{}{
		"video_id":       g.VideoID,
		"tone":           g.Tone,
		"platforms":      g.Platforms,
		"status":         g.Status,
		"prompt_version": g.PromptVersion,
		"cache_key":      g.CacheKey,
		"extra_options":  extra,
		"completed_at":   g.CompletedAt,
	}

	var rows []generationRow
	_, err := s.client.From(generationsTable).
		Upsert(payload, "cache_key", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return fmt.Errorf("upsert generation: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("upsert generation: no row returned for key %s", g.CacheKey)
	}
	stored := rows[0].model()

	g.ID = stored.ID
	g.CreatedAt = stored.CreatedAt
	g.Owner = resolveOwner(stored.Owner, g.Owner)
	if g.Owner == stored.Owner {
		return nil
	}

	patch := models.OwnerPatch{Owner: g.Owner, OnlyIfUnowned: g.Owner.Kind() == models.OwnerAnonymous}
	if !s.applyOwner(generationsTable, g.ID, patch) {
		g.Owner = stored.Owner
	}
	return nil
}

// applyOwner runs the owner patch that follows an upsert and reports whether
// it landed.
func (s *Store) applyOwner(table string, id uuid.UUID, patch models.OwnerPatch) bool {
	patched, err := s.patchOwner(table, id, patch)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"table": table,
			"id":    id,
			"owner": patch.Owner.String(),
		}).Warn("owner patch after upsert failed")
		return false
	}
	return patched
}

func (s *Store) PatchGenerationOwner(ctx context.Context, id uuid.UUID, patch models.OwnerPatch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.patchOwner(generationsTable, id, patch)
}

// resolveOwner mirrors the SQL merge: a user always wins, an anonymous
// session only fills an empty slot.
func resolveOwner(stored, incoming models.Owner) models.Owner {
	switch incoming.Kind() {
	case models.OwnerUser:
		return incoming
	case models.OwnerAnonymous:
		if stored.IsZero() {
			return incoming
		}
	}
	return stored
}

// ──── Outputs ────

func (s *Store) ListOutputs(ctx context.Context, generationID uuid.UUID) ([]models.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []outputRow
	_, err := s.client.From(outputsTable).
		Select("*", "", false).
		Eq("generation_id", generationID.String()).
		Order("platform", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, err
	}

	outputs := make([]models.Output, 0, len(rows))
	for _, r := range rows {
		o := models.Output{
			ID:           r.ID,
			GenerationID: r.GenerationID,
			Platform:     r.Platform,
			Format:       r.Format,
			Content:      r.Content,
			Metadata:     r.Metadata,
		}
		if r.CreatedAt != nil {
			o.CreatedAt = *r.CreatedAt
		}
		outputs = append(outputs, o)
	}
	return outputs, nil
}

// ReplaceOutputs deletes then inserts. PostgREST offers no transaction across
// requests; the insert is an upsert on (generation_id, platform) so a retry
// after a partial failure converges.
func (s *Store) ReplaceOutputs(ctx context.Context, generationID uuid.UUID, platforms []models.Platform, rows []models.Output) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if platforms == nil || len(platforms) > 0 {
		del := s.client.From(outputsTable).
			Delete("minimal", "").
			Eq("generation_id", generationID.String())
		if platforms != nil {
			names := make([]string, len(platforms))
			for i, p := range platforms {
				names[i] = string(p)
			}
			del = del.In("platform", names)
		}
		if _, _, err := del.Execute(); err != nil {
			return fmt.Errorf("delete outputs: %w", err)
		}
	}

	if len(rows) == 0 {
		return nil
	}
	payload := make([]outputRow, 0, len(rows))
	for _, o := range rows {
		payload = append(payload, outputRow{
			ID:           uuid.New(),
			GenerationID: generationID,
			Platform:     o.Platform,
			Format:       o.Format,
			Content:      o.Content,
			Metadata:     o.Metadata,
		})
	}
	if _, _, err := s.client.From(outputsTable).
		Upsert(payload, "generation_id,platform", "minimal", "").
		Execute(); err != nil {
		return fmt.Errorf("insert outputs: %w", err)
	}
	return nil
}

// ──── Ownership ────

type idRow struct {
	ID uuid.UUID `json:"id"`
}

func (s *Store) patchOwner(table string, id uuid.UUID, patch models.OwnerPatch) (bool, error) {
	userID, sessionID := patch.Owner.Columns()
	q := s.client.From(table).
		Update(map[string]interface{}{
			"user_id":              userID,
			"anonymous_session_id": sessionID,
		}, "representation", "").
		Eq("id", id.String())
	if patch.OnlyIfUnowned {
		q = q.Is("user_id", "null").Is("anonymous_session_id", "null")
	}

	var rows []idRow
	if _, err := q.ExecuteTo(&rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// ClaimSession re-owns the anonymous rows of a session. Each table is one
// PATCH filtered on user_id IS NULL, so a repeated claim matches nothing.
func (s *Store) ClaimSession(ctx context.Context, sessionID string, userID uuid.UUID) (models.ClaimResult, error) {
	var result models.ClaimResult
	sessionID = strings.TrimSpace(sessionID)

	for _, table := range []string{videosTable, generationsTable} {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var rows []idRow
		_, err := s.client.From(table).
			Update(map[string]interface{}{
				"user_id":              userID,
				"anonymous_session_id": nil,
			}, "representation", "").
			Eq("anonymous_session_id", sessionID).
			Is("user_id", "null").
			ExecuteTo(&rows)
		if err != nil {
			return result, fmt.Errorf("claim %s: %w", table, err)
		}

		switch table {
		case videosTable:
			result.Videos = int64(len(rows))
		case generationsTable:
			result.Generations = int64(len(rows))
		}
	}
	return result, nil
}
