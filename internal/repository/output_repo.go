package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"river-backend/internal/models"
)

type OutputRepo struct {
	db DBTX
}

func NewOutputRepo(db DBTX) *OutputRepo {
	return &OutputRepo{db: db}
}

func (r *OutputRepo) ListOutputs(ctx context.Context, generationID uuid.UUID) ([]models.Output, error) {
	query := `SELECT id, generation_id, platform, format, content, metadata, created_at
		FROM outputs WHERE generation_id = $1 ORDER BY platform`

	rows, err := r.db.Query(ctx, query, generationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outputs []models.Output
	for rows.Next() {
		var o models.Output
		var platform string
		var metadata []byte
		if err := rows.Scan(&o.ID, &o.GenerationID, &platform, &o.Format, &o.Content, &metadata, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Platform = models.Platform(platform)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &o.Metadata); err != nil {
				return nil, fmt.Errorf("output %s metadata: %w", o.ID, err)
			}
		}
		outputs = append(outputs, o)
	}
	return outputs, rows.Err()
}

// ReplaceOutputs swaps the outputs of a generation in one transaction. A nil
// platforms list replaces every output; otherwise only the named platforms
// are deleted and the rest are left as stored.
func (r *OutputRepo) ReplaceOutputs(ctx context.Context, generationID uuid.UUID, platforms []models.Platform, rows []models.Output) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if platforms == nil {
		_, err = tx.Exec(ctx, "DELETE FROM outputs WHERE generation_id = $1", generationID)
	} else {
		_, err = tx.Exec(ctx,
			"DELETE FROM outputs WHERE generation_id = $1 AND platform = ANY($2)",
			generationID, fromPlatforms(platforms),
		)
	}
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, o := range rows {
		metadata, err := json.Marshal(o.Metadata)
		if err != nil {
			return err
		}
		batch.Queue(`INSERT INTO outputs (id, generation_id, platform, format, content, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (generation_id, platform) DO UPDATE SET
				format = EXCLUDED.format,
				content = EXCLUDED.content,
				metadata = EXCLUDED.metadata`,
			uuid.New(), generationID, string(o.Platform), o.Format, o.Content, metadata,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
