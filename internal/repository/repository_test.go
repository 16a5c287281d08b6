package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"river-backend/internal/models"
)

func squash(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}

func strPtr(s string) *string { return &s }

func TestPatchOwner(t *testing.T) {
	id := uuid.New()
	userID := uuid.New()

	tests := []struct {
		name      string
		patch     models.OwnerPatch
		affected  int64
		wantSQL   string
		wantUser  *uuid.UUID
		wantSess  *string
		wantPatch bool
	}{
		{
			name:      "user claim overwrites",
			patch:     models.OwnerPatch{Owner: models.UserOwner(userID)},
			affected:  1,
			wantSQL:   "UPDATE videos SET user_id = $2, anonymous_session_id = $3 WHERE id = $1",
			wantUser:  &userID,
			wantPatch: true,
		},
		{
			name:      "anonymous fill is guarded",
			patch:     models.OwnerPatch{Owner: models.AnonymousOwner("sess-1"), OnlyIfUnowned: true},
			affected:  1,
			wantSQL:   "UPDATE videos SET user_id = $2, anonymous_session_id = $3 WHERE id = $1 AND user_id IS NULL AND anonymous_session_id IS NULL",
			wantSess:  strPtr("sess-1"),
			wantPatch: true,
		},
		{
			name:     "guarded fill on owned row matches nothing",
			patch:    models.OwnerPatch{Owner: models.AnonymousOwner("sess-1"), OnlyIfUnowned: true},
			affected: 0,
			wantSQL:  "UPDATE videos SET user_id = $2, anonymous_session_id = $3 WHERE id = $1 AND user_id IS NULL AND anonymous_session_id IS NULL",
			wantSess: strPtr("sess-1"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeDB{results: []execResult{{affected: tt.affected}}}
			patched, err := NewVideoRepo(db).PatchVideoOwner(context.Background(), id, tt.patch)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPatch, patched)

			require.Len(t, db.calls, 1)
			call := db.calls[0]
			assert.Equal(t, tt.wantSQL, call.sql)
			require.Len(t, call.args, 3)
			assert.Equal(t, id, call.args[0])
			assert.Equal(t, tt.wantUser, call.args[1])
			assert.Equal(t, tt.wantSess, call.args[2])
		})
	}
}

func TestPatchGenerationOwner_TargetsGenerations(t *testing.T) {
	db := &fakeDB{results: []execResult{{err: errors.New("conn reset")}}}
	patched, err := NewGenerationRepo(db).PatchGenerationOwner(context.Background(), uuid.New(),
		models.OwnerPatch{Owner: models.UserOwner(uuid.New())})
	require.Error(t, err)
	assert.False(t, patched)
	require.Len(t, db.calls, 1)
	assert.True(t, strings.HasPrefix(db.calls[0].sql, "UPDATE generations SET"))
}

func TestUpsertVideo_OwnerMergeSQL(t *testing.T) {
	rowID := uuid.New()
	now := time.Now().UTC()
	db := &fakeDB{row: []any{
		rowID, "dQw4w9WgXcQ", "https://youtu.be/dQw4w9WgXcQ", strPtr("Title"), nil, nil,
		nil, (*uuid.UUID)(nil), strPtr("sess-old"), now, now,
	}}

	video, err := NewVideoRepo(db).UpsertVideo(context.Background(), models.VideoUpsert{
		YouTubeVideoID: "dQw4w9WgXcQ",
		OriginalURL:    "https://youtu.be/dQw4w9WgXcQ",
		Owner:          models.AnonymousOwner("sess-new"),
		LastUsedAt:     now,
	})
	require.NoError(t, err)

	require.Len(t, db.calls, 1)
	sql := squash(db.calls[0].sql)
	assert.Contains(t, sql, "ON CONFLICT (youtube_video_id) DO UPDATE SET")
	assert.Contains(t, sql, "user_id = COALESCE(EXCLUDED.user_id, videos.user_id)")
	assert.Contains(t, sql, "WHEN EXCLUDED.user_id IS NOT NULL THEN NULL")
	assert.Contains(t, sql, "WHEN videos.user_id IS NULL AND videos.anonymous_session_id IS NULL THEN EXCLUDED.anonymous_session_id")
	assert.Contains(t, sql, "ELSE videos.anonymous_session_id")

	args := db.calls[0].args
	require.Len(t, args, 8)
	assert.Nil(t, args[5])
	assert.Equal(t, strPtr("sess-new"), args[6])
	assert.Equal(t, now, args[7])

	// The stored owner comes back, not the one written.
	assert.Equal(t, models.AnonymousOwner("sess-old"), video.Owner)
	assert.Equal(t, rowID, video.ID)
	assert.Nil(t, video.ThumbnailURL)
}

func TestUpsertVideo_DefaultsLastUsed(t *testing.T) {
	now := time.Now()
	db := &fakeDB{rowErr: errors.New("boom")}
	_, err := NewVideoRepo(db).UpsertVideo(context.Background(), models.VideoUpsert{YouTubeVideoID: "x"})
	require.Error(t, err)

	lastUsed, ok := db.calls[0].args[7].(time.Time)
	require.True(t, ok)
	assert.False(t, lastUsed.Before(now))
}

func TestUpsertGeneration_ReturnsStoredOwner(t *testing.T) {
	userID := uuid.New()
	rowID := uuid.New()
	created := time.Now().UTC()

	tests := []struct {
		name     string
		write    models.Owner
		stored   []any
		wantUser *uuid.UUID
		wantSess *string
		want     models.Owner
	}{
		{
			name:     "anonymous write keeps user row",
			write:    models.AnonymousOwner("sess-1"),
			stored:   []any{rowID, &userID, (*string)(nil), created},
			wantSess: strPtr("sess-1"),
			want:     models.UserOwner(userID),
		},
		{
			name:     "user write takes anonymous row",
			write:    models.UserOwner(userID),
			stored:   []any{rowID, &userID, (*string)(nil), created},
			wantUser: &userID,
			want:     models.UserOwner(userID),
		},
		{
			name:   "unowned write leaves row unowned",
			write:  models.Unowned(),
			stored: []any{rowID, (*uuid.UUID)(nil), (*string)(nil), created},
			want:   models.Unowned(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeDB{row: tt.stored}
			g := &models.Generation{
				VideoID:       uuid.New(),
				Tone:          "professional",
				Platforms:     []models.Platform{models.PlatformLinkedIn, models.PlatformTwitter},
				Status:        models.GenerationStatusSuccess,
				PromptVersion: "v1",
				CacheKey:      "key-1",
				Owner:         tt.write,
			}
			require.NoError(t, NewGenerationRepo(db).UpsertGeneration(context.Background(), g))

			require.Len(t, db.calls, 1)
			sql := squash(db.calls[0].sql)
			assert.Contains(t, sql, "ON CONFLICT (cache_key) DO UPDATE SET")
			assert.Contains(t, sql, "user_id = COALESCE(EXCLUDED.user_id, generations.user_id)")
			assert.Contains(t, sql, "WHEN generations.user_id IS NULL AND generations.anonymous_session_id IS NULL THEN EXCLUDED.anonymous_session_id")

			args := db.calls[0].args
			require.Len(t, args, 11)
			assert.Equal(t, []string{"linkedin", "twitter"}, args[3])
			assert.Nil(t, args[7], "empty extra options are stored as NULL")
			assert.Equal(t, tt.wantUser, args[8])
			assert.Equal(t, tt.wantSess, args[9])

			assert.Equal(t, rowID, g.ID)
			assert.Equal(t, created, g.CreatedAt)
			assert.Equal(t, tt.want, g.Owner)
		})
	}
}

func TestFindGenerationByKey_MissIsNil(t *testing.T) {
	db := &fakeDB{rowErr: pgx.ErrNoRows}
	g, err := NewGenerationRepo(db).FindGenerationByKey(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Nil(t, g)
	assert.Equal(t, []any{"key-1", models.GenerationStatusSuccess}, db.calls[0].args)
}

func TestGetGeneration_NotFound(t *testing.T) {
	db := &fakeDB{rowErr: pgx.ErrNoRows}
	_, err := NewGenerationRepo(db).GetGeneration(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestClaimSession(t *testing.T) {
	userID := uuid.New()
	db := &fakeDB{results: []execResult{{affected: 2}, {affected: 3}}}

	result, err := NewStore(db).ClaimSession(context.Background(), "  sess-1 ", userID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimResult{Videos: 2, Generations: 3}, result)

	assert.Equal(t, 1, db.began)
	assert.True(t, db.committed)
	assert.False(t, db.rolledBack)
	require.Len(t, db.calls, 2)
	assert.Equal(t,
		"UPDATE videos SET user_id = $1, anonymous_session_id = NULL WHERE anonymous_session_id = $2 AND user_id IS NULL",
		squash(db.calls[0].sql))
	assert.Equal(t,
		"UPDATE generations SET user_id = $1, anonymous_session_id = NULL WHERE anonymous_session_id = $2 AND user_id IS NULL",
		squash(db.calls[1].sql))
	for _, call := range db.calls {
		assert.True(t, call.inTx)
		assert.Equal(t, []any{userID, "sess-1"}, call.args)
	}
}

func TestClaimSession_FailureRollsBack(t *testing.T) {
	db := &fakeDB{results: []execResult{{affected: 1}, {err: errors.New("deadlock detected")}}}

	_, err := NewStore(db).ClaimSession(context.Background(), "sess-1", uuid.New())
	require.Error(t, err)
	assert.False(t, db.committed)
	assert.True(t, db.rolledBack)
}

func TestReplaceOutputs_TargetedDeleteOnly(t *testing.T) {
	genID := uuid.New()
	db := &fakeDB{}

	err := NewOutputRepo(db).ReplaceOutputs(context.Background(), genID, []models.Platform{models.PlatformTwitter}, nil)
	require.NoError(t, err)

	require.Len(t, db.calls, 1)
	assert.Equal(t, "DELETE FROM outputs WHERE generation_id = $1 AND platform = ANY($2)", db.calls[0].sql)
	assert.Equal(t, []any{genID, []string{"twitter"}}, db.calls[0].args)
	assert.True(t, db.committed)
}

func TestReplaceOutputs_NilPlatformsDeletesAll(t *testing.T) {
	genID := uuid.New()
	db := &fakeDB{}

	require.NoError(t, NewOutputRepo(db).ReplaceOutputs(context.Background(), genID, nil, nil))
	require.Len(t, db.calls, 1)
	assert.Equal(t, "DELETE FROM outputs WHERE generation_id = $1", db.calls[0].sql)
}
