package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"river-backend/internal/models"
)

// DBTX is the part of *pgxpool.Pool the repositories use.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the Postgres-backed persistence gateway.
type Store struct {
	*VideoRepo
	*GenerationRepo
	*OutputRepo
	db DBTX
}

func NewStore(db DBTX) *Store {
	return &Store{
		VideoRepo:      NewVideoRepo(db),
		GenerationRepo: NewGenerationRepo(db),
		OutputRepo:     NewOutputRepo(db),
		db:             db,
	}
}

// ClaimSession moves every unowned-by-user row of an anonymous session to
// userID. Rows already claimed no longer match, so a repeated claim is a
// no-op.
func (s *Store) ClaimSession(ctx context.Context, sessionID string, userID uuid.UUID) (models.ClaimResult, error) {
	var result models.ClaimResult
	sessionID = strings.TrimSpace(sessionID)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return result, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE videos SET user_id = $1, anonymous_session_id = NULL
		WHERE anonymous_session_id = $2 AND user_id IS NULL`,
		userID, sessionID,
	)
	if err != nil {
		return result, err
	}
	result.Videos = tag.RowsAffected()

	tag, err = tx.Exec(ctx,
		`UPDATE generations SET user_id = $1, anonymous_session_id = NULL
		WHERE anonymous_session_id = $2 AND user_id IS NULL`,
		userID, sessionID,
	)
	if err != nil {
		return result, err
	}
	result.Generations = tag.RowsAffected()

	return result, tx.Commit(ctx)
}
