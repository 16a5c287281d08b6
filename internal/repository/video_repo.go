package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"river-backend/internal/models"
)

type VideoRepo struct {
	db DBTX
}

func NewVideoRepo(db DBTX) *VideoRepo {
	return &VideoRepo{db: db}
}

const videoColumns = `id, youtube_video_id, original_url, title, thumbnail_url, transcript,
	transcript_language, user_id, anonymous_session_id, last_used_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*models.Video, error) {
	v := &models.Video{}
	var userID *uuid.UUID
	var sessionID *string
	err := row.Scan(
		&v.ID, &v.YouTubeVideoID, &v.OriginalURL, &v.Title, &v.ThumbnailURL, &v.Transcript,
		&v.TranscriptLanguage, &userID, &sessionID, &v.LastUsedAt, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.Owner = models.OwnerFromColumns(userID, sessionID)
	return v, nil
}

// UpsertVideo merges into the row for the YouTube id. Title and thumbnail
// only overwrite when the write carries them; the owner follows the
// authenticated-wins rule.
func (r *VideoRepo) UpsertVideo(ctx context.Context, in models.VideoUpsert) (*models.Video, error) {
	userID, sessionID := in.Owner.Columns()
	lastUsed := in.LastUsedAt
	if lastUsed.IsZero() {
		lastUsed = time.Now()
	}

	query := `INSERT INTO videos (id, youtube_video_id, original_url, title, thumbnail_url,
			user_id, anonymous_session_id, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (youtube_video_id) DO UPDATE SET
			original_url = EXCLUDED.original_url,
			title = COALESCE(EXCLUDED.title, videos.title),
			thumbnail_url = COALESCE(EXCLUDED.thumbnail_url, videos.thumbnail_url),
			last_used_at = EXCLUDED.last_used_at,
			user_id = COALESCE(EXCLUDED.user_id, videos.user_id),
			anonymous_session_id = CASE
				WHEN EXCLUDED.user_id IS NOT NULL THEN NULL
				WHEN videos.user_id IS NULL AND videos.anonymous_session_id IS NULL THEN EXCLUDED.anonymous_session_id
				ELSE videos.anonymous_session_id
			END
		RETURNING ` + videoColumns

	return scanVideo(r.db.QueryRow(ctx, query,
		uuid.New(), in.YouTubeVideoID, in.OriginalURL, in.Title, in.ThumbnailURL,
		userID, sessionID, lastUsed,
	))
}

func (r *VideoRepo) GetVideo(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	v, err := scanVideo(r.db.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return v, err
}

func (r *VideoRepo) SaveTranscript(ctx context.Context, videoID uuid.UUID, t models.Transcript) error {
	_, err := r.db.Exec(ctx,
		"UPDATE videos SET transcript = $2, transcript_language = $3 WHERE id = $1",
		videoID, t.FullText, t.Language,
	)
	return err
}

func (r *VideoRepo) PatchVideoOwner(ctx context.Context, id uuid.UUID, patch models.OwnerPatch) (bool, error) {
	return patchOwner(ctx, r.db, "videos", id, patch)
}

// patchOwner sets both owner columns at once so they never disagree.
func patchOwner(ctx context.Context, db DBTX, table string, id uuid.UUID, patch models.OwnerPatch) (bool, error) {
	userID, sessionID := patch.Owner.Columns()
	query := "UPDATE " + table + " SET user_id = $2, anonymous_session_id = $3 WHERE id = $1"
	if patch.OnlyIfUnowned {
		query += " AND user_id IS NULL AND anonymous_session_id IS NULL"
	}

	tag, err := db.Exec(ctx, query, id, userID, sessionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
