package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"river-backend/internal/models"
)

// memStore is an in-memory Gateway with the same merge rules as the SQL store.
type memStore struct {
	mu          sync.Mutex
	videos      map[uuid.UUID]*models.Video
	generations map[uuid.UUID]*models.Generation
	outputs     map[uuid.UUID]map[models.Platform]models.Output
	fail        map[string]error
	transcripts int
}

func newMemStore() *memStore {
	return &memStore{
		videos:      make(map[uuid.UUID]*models.Video),
		generations: make(map[uuid.UUID]*models.Generation),
		outputs:     make(map[uuid.UUID]map[models.Platform]models.Output),
		fail:        make(map[string]error),
	}
}

func (m *memStore) err(op string) error {
	return m.fail[op]
}

func mergeOwner(current, incoming models.Owner) models.Owner {
	next, _ := ReconcileOwner(current, incoming)
	return next
}

func (m *memStore) UpsertVideo(ctx context.Context, in models.VideoUpsert) (*models.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("UpsertVideo"); err != nil {
		return nil, err
	}

	for _, v := range m.videos {
		if v.YouTubeVideoID != in.YouTubeVideoID {
			continue
		}
		v.OriginalURL = in.OriginalURL
		if in.Title != nil {
			v.Title = in.Title
		}
		if in.ThumbnailURL != nil {
			v.ThumbnailURL = in.ThumbnailURL
		}
		v.Owner = mergeOwner(v.Owner, in.Owner)
		v.LastUsedAt = in.LastUsedAt
		cp := *v
		return &cp, nil
	}

	v := &models.Video{
		ID:             uuid.New(),
		YouTubeVideoID: in.YouTubeVideoID,
		OriginalURL:    in.OriginalURL,
		Title:          in.Title,
		ThumbnailURL:   in.ThumbnailURL,
		Owner:          in.Owner,
		LastUsedAt:     in.LastUsedAt,
		CreatedAt:      time.Now(),
	}
	m.videos[v.ID] = v
	cp := *v
	return &cp, nil
}

func (m *memStore) SaveTranscript(ctx context.Context, videoID uuid.UUID, t models.Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("SaveTranscript"); err != nil {
		return err
	}
	v, ok := m.videos[videoID]
	if !ok {
		return models.ErrNotFound
	}
	text, lang := t.FullText, t.Language
	v.Transcript = &text
	v.TranscriptLanguage = &lang
	m.transcripts++
	return nil
}

func (m *memStore) GetVideo(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memStore) FindGenerationByKey(ctx context.Context, cacheKey string) (*models.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("FindGenerationByKey"); err != nil {
		return nil, err
	}
	for _, g := range m.generations {
		if g.CacheKey == cacheKey && g.Status == models.GenerationStatusSuccess {
			cp := *g
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetGeneration(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.generations[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *memStore) ListGenerationsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Generation
	for _, g := range m.generations {
		if id, ok := g.Owner.UserID(); ok && id == userID {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) UpsertGeneration(ctx context.Context, gen *models.Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("UpsertGeneration"); err != nil {
		return err
	}

	for _, g := range m.generations {
		if g.CacheKey != gen.CacheKey {
			continue
		}
		owner := mergeOwner(g.Owner, gen.Owner)
		id, created := g.ID, g.CreatedAt
		*g = *gen
		g.ID, g.CreatedAt, g.Owner = id, created, owner
		gen.ID, gen.CreatedAt, gen.Owner = id, created, owner
		return nil
	}

	gen.ID = uuid.New()
	gen.CreatedAt = time.Now()
	cp := *gen
	m.generations[gen.ID] = &cp
	return nil
}

func (m *memStore) ListOutputs(ctx context.Context, generationID uuid.UUID) ([]models.Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("ListOutputs"); err != nil {
		return nil, err
	}
	var rows []models.Output
	for _, row := range m.outputs[generationID] {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Platform < rows[j].Platform })
	return rows, nil
}

func (m *memStore) ReplaceOutputs(ctx context.Context, generationID uuid.UUID, platforms []models.Platform, rows []models.Output) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("ReplaceOutputs"); err != nil {
		return err
	}

	existing := m.outputs[generationID]
	if existing == nil || platforms == nil {
		existing = make(map[models.Platform]models.Output)
	}
	for _, p := range platforms {
		delete(existing, p)
	}
	for _, row := range rows {
		row.ID = uuid.New()
		row.CreatedAt = time.Now()
		existing[row.Platform] = row
	}
	m.outputs[generationID] = existing
	return nil
}

func (m *memStore) PatchVideoOwner(ctx context.Context, id uuid.UUID, patch models.OwnerPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("PatchVideoOwner"); err != nil {
		return false, err
	}
	v, ok := m.videos[id]
	if !ok || (patch.OnlyIfUnowned && !v.Owner.IsZero()) {
		return false, nil
	}
	v.Owner = patch.Owner
	return true, nil
}

func (m *memStore) PatchGenerationOwner(ctx context.Context, id uuid.UUID, patch models.OwnerPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("PatchGenerationOwner"); err != nil {
		return false, err
	}
	g, ok := m.generations[id]
	if !ok || (patch.OnlyIfUnowned && !g.Owner.IsZero()) {
		return false, nil
	}
	g.Owner = patch.Owner
	return true, nil
}

func (m *memStore) ClaimSession(ctx context.Context, sessionID string, userID uuid.UUID) (models.ClaimResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("ClaimSession"); err != nil {
		return models.ClaimResult{}, err
	}

	owner := models.UserOwner(userID)
	var res models.ClaimResult
	for _, v := range m.videos {
		if s, ok := v.Owner.SessionID(); ok && s == sessionID {
			v.Owner = owner
			res.Videos++
		}
	}
	for _, g := range m.generations {
		if s, ok := g.Owner.SessionID(); ok && s == sessionID {
			g.Owner = owner
			res.Generations++
		}
	}
	return res, nil
}

func (m *memStore) video(youtubeID string) *models.Video {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.videos {
		if v.YouTubeVideoID == youtubeID {
			cp := *v
			return &cp
		}
	}
	return nil
}

func (m *memStore) generation(id uuid.UUID) *models.Generation {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.generations[id]
	if !ok {
		return nil
	}
	cp := *g
	return &cp
}

func (m *memStore) dropOutput(generationID uuid.UUID, p models.Platform) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.outputs[generationID], p)
}
