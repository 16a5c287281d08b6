package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"river-backend/internal/models"
)

type GenerationRepo struct {
	db DBTX
}

func NewGenerationRepo(db DBTX) *GenerationRepo {
	return &GenerationRepo{db: db}
}

const generationColumns = `id, video_id, tone, platforms, status, prompt_version, cache_key,
	extra_options, user_id, anonymous_session_id, completed_at, created_at`

func scanGeneration(row rowScanner) (*models.Generation, error) {
	g := &models.Generation{}
	var platforms []string
	var extra []byte
	var userID *uuid.UUID
	var sessionID *string
	err := row.Scan(
		&g.ID, &g.VideoID, &g.Tone, &platforms, &g.Status, &g.PromptVersion, &g.CacheKey,
		&extra, &userID, &sessionID, &g.CompletedAt, &g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.Platforms = toPlatforms(platforms)
	if len(extra) > 0 && string(extra) != "null" {
		g.ExtraOptions = extra
	}
	g.Owner = models.OwnerFromColumns(userID, sessionID)
	return g, nil
}

func (r *GenerationRepo) FindGenerationByKey(ctx context.Context, cacheKey string) (*models.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM generations WHERE cache_key = $1 AND status = $2`
	g, err := scanGeneration(r.db.QueryRow(ctx, query, cacheKey, models.GenerationStatusSuccess))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

func (r *GenerationRepo) GetGeneration(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	g, err := scanGeneration(r.db.QueryRow(ctx, `SELECT `+generationColumns+` FROM generations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return g, err
}

func (r *GenerationRepo) ListGenerationsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM generations
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gens []*models.Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		gens = append(gens, g)
	}
	return gens, rows.Err()
}

// UpsertGeneration writes on cache_key. Every field of the write wins over
// the stored row except the owner, which follows the authenticated-wins rule.
func (r *GenerationRepo) UpsertGeneration(ctx context.Context, g *models.Generation) error {
	userID, sessionID := g.Owner.Columns()
	var extra any
	if len(g.ExtraOptions) > 0 {
		extra = []byte(g.ExtraOptions)
	}

	query := `INSERT INTO generations (id, video_id, tone, platforms, status, prompt_version, cache_key,
			extra_options, user_id, anonymous_session_id, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (cache_key) DO UPDATE SET
			video_id = EXCLUDED.video_id,
			tone = EXCLUDED.tone,
			platforms = EXCLUDED.platforms,
			status = EXCLUDED.status,
			prompt_version = EXCLUDED.prompt_version,
			extra_options = EXCLUDED.extra_options,
			completed_at = EXCLUDED.completed_at,
			user_id = COALESCE(EXCLUDED.user_id, generations.user_id),
			anonymous_session_id = CASE
				WHEN EXCLUDED.user_id IS NOT NULL THEN NULL
				WHEN generations.user_id IS NULL AND generations.anonymous_session_id IS NULL THEN EXCLUDED.anonymous_session_id
				ELSE generations.anonymous_session_id
			END
		RETURNING id, user_id, anonymous_session_id, created_at`

	var storedUser *uuid.UUID
	var storedSession *string
	err := r.db.QueryRow(ctx, query,
		uuid.New(), g.VideoID, g.Tone, fromPlatforms(g.Platforms), g.Status, g.PromptVersion, g.CacheKey,
		extra, userID, sessionID, g.CompletedAt,
	).Scan(&g.ID, &storedUser, &storedSession, &g.CreatedAt)
	if err != nil {
		return err
	}
	g.Owner = models.OwnerFromColumns(storedUser, storedSession)
	return nil
}

func (r *GenerationRepo) PatchGenerationOwner(ctx context.Context, id uuid.UUID, patch models.OwnerPatch) (bool, error) {
	return patchOwner(ctx, r.db, "generations", id, patch)
}

func toPlatforms(names []string) []models.Platform {
	out := make([]models.Platform, len(names))
	for i, n := range names {
		out[i] = models.Platform(n)
	}
	return out
}

func fromPlatforms(platforms []models.Platform) []string {
	out := make([]string, len(platforms))
	for i, p := range platforms {
		out[i] = string(p)
	}
	return out
}
