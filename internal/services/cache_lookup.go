package services

import (
	"context"

	"github.com/google/uuid"

	"river-backend/internal/models"
)

type cacheStore interface {
	FindGenerationByKey(ctx context.Context, cacheKey string) (*models.Generation, error)
	ListOutputs(ctx context.Context, generationID uuid.UUID) ([]models.Output, error)
}

type CacheResult struct {
	Hit        bool
	Generation *models.Generation
	Outputs    models.OutputMap
}

// Complete reports whether the cached outputs cover every platform.
func (r CacheResult) Complete(platforms []models.Platform) bool {
	if !r.Hit {
		return false
	}
	for _, p := range platforms {
		if _, ok := r.Outputs[p]; !ok {
			return false
		}
	}
	return true
}

type CacheLookup struct {
	store cacheStore
}

func NewCacheLookup(store cacheStore) *CacheLookup {
	return &CacheLookup{store: store}
}

// Lookup finds the success generation stored under key. With bypass set it
// reports a miss without touching storage. Storage errors are returned, never
// turned into a miss.
func (c *CacheLookup) Lookup(ctx context.Context, key string, bypass bool) (CacheResult, error) {
	if bypass {
		return CacheResult{}, nil
	}

	gen, err := c.store.FindGenerationByKey(ctx, key)
	if err != nil {
		return CacheResult{}, storageError(StageCacheLookup, err)
	}
	if gen == nil || gen.Status != models.GenerationStatusSuccess {
		return CacheResult{}, nil
	}

	rows, err := c.store.ListOutputs(ctx, gen.ID)
	if err != nil {
		return CacheResult{}, storageError(StageCacheLookup, err)
	}

	return CacheResult{
		Hit:        true,
		Generation: gen,
		Outputs:    NormalizeStored(rows),
	}, nil
}
