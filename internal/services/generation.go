package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"river-backend/internal/models"
)

type GenerationServiceConfig struct {
	Store       Gateway
	Metadata    MetadataSource
	Transcripts TranscriptSource
	Generator   ContentGenerator
	// Locks and Status are optional.
	Locks   KeyLocker
	Status  StatusPublisher
	LockTTL time.Duration
	Logger  *logrus.Logger
}

// GenerationService runs the generate pipeline: video upsert, cache lookup,
// regeneration policy, model call, output write and read-back.
type GenerationService struct {
	store       Gateway
	metadata    MetadataSource
	transcripts TranscriptSource
	generator   ContentGenerator
	locks       KeyLocker
	status      StatusPublisher
	cache       *CacheLookup
	owners      *OwnershipReconciler
	lockTTL     time.Duration
	log         *logrus.Logger
	now         func() time.Time
}

func NewGenerationService(cfg GenerationServiceConfig) *GenerationService {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &GenerationService{
		store:       cfg.Store,
		metadata:    cfg.Metadata,
		transcripts: cfg.Transcripts,
		generator:   cfg.Generator,
		locks:       cfg.Locks,
		status:      cfg.Status,
		cache:       NewCacheLookup(cfg.Store),
		owners:      NewOwnershipReconciler(cfg.Store, logger),
		lockTTL:     ttl,
		log:         logger,
		now:         time.Now,
	}
}

func (s *GenerationService) Owners() *OwnershipReconciler { return s.owners }

type GenerateInput struct {
	VideoURL          string
	Tone              string
	Platforms         []models.Platform
	ForceRegen        bool
	TweakInstructions string
	ExtraOptions      json.RawMessage
	Caller            models.Owner
}

// pipelineRun carries the per-request state between stages.
type pipelineRun struct {
	in        GenerateInput
	tone      string
	platforms []models.Platform
	video     *models.Video
	keyInput  CacheKeyInput
	inputs    models.GenerationInputs
	log       *logrus.Entry
}

func (s *GenerationService) Generate(ctx context.Context, in GenerateInput) (*models.GenerationResponse, error) {
	resp, err := s.generate(ctx, in)
	if err != nil {
		update := models.NewStatusUpdate(models.StageFailed, "")
		update.Message = err.Error()
		s.publish(ctx, in.Caller, update)
		return nil, err
	}
	return resp, nil
}

func (s *GenerationService) generate(ctx context.Context, in GenerateInput) (*models.GenerationResponse, error) {
	s.publish(ctx, in.Caller, models.NewStatusUpdate(models.StageValidating, ""))
	videoID, err := ExtractVideoID(in.VideoURL)
	if err != nil {
		return nil, err
	}
	if _, err := CanonicalOptions(in.ExtraOptions); err != nil {
		return nil, err
	}

	run := &pipelineRun{
		in:        in,
		tone:      strings.TrimSpace(in.Tone),
		platforms: NormalizePlatforms(in.Platforms),
		log: s.log.WithFields(logrus.Fields{
			"video_id": videoID,
			"owner":    in.Caller.String(),
		}),
	}
	if run.tone == "" {
		run.tone = DefaultTone
	}
	run.inputs = models.GenerationInputs{
		Tone:              run.tone,
		Platforms:         run.platforms,
		ForceRegen:        in.ForceRegen,
		TweakInstructions: in.TweakInstructions,
	}

	s.publish(ctx, in.Caller, models.NewStatusUpdate(models.StageMetadata, videoID))
	meta, err := s.metadata.Lookup(ctx, videoID)
	if err != nil {
		return nil, upstreamError(StageMetadata, err)
	}

	run.video, err = s.store.UpsertVideo(ctx, models.VideoUpsert{
		YouTubeVideoID: videoID,
		OriginalURL:    strings.TrimSpace(in.VideoURL),
		Title:          meta.Title,
		ThumbnailURL:   meta.ThumbnailURL,
		Owner:          in.Caller,
		LastUsedAt:     s.now(),
	})
	if err != nil {
		return nil, storageError(StageVideoUpsert, err)
	}

	run.keyInput = CacheKeyInput{
		VideoID:       run.video.ID.String(),
		Tone:          run.tone,
		Platforms:     run.platforms,
		PromptVersion: PromptVersion,
		ExtraOptions:  in.ExtraOptions,
	}
	key, err := BuildCacheKey(run.keyInput)
	if err != nil {
		return nil, err
	}
	run.log = run.log.WithField("cache_key", key)

	s.publish(ctx, in.Caller, models.NewStatusUpdate(models.StageCache, videoID))
	cached, err := s.cache.Lookup(ctx, key, in.ForceRegen)
	if err != nil {
		return nil, err
	}
	hit := cached.Complete(run.platforms)
	if cached.Hit && !hit {
		run.log.WithField("generation_id", cached.Generation.ID).Warn("cached generation is missing outputs, regenerating")
	}

	plan := DecidePlan(PlanInput{
		ForceRegen:   in.ForceRegen,
		Hit:          hit,
		Platforms:    run.platforms,
		ExtraOptions: in.ExtraOptions,
	})

	if plan.Kind == PlanServeCache {
		s.owners.AttachOnHit(ctx, cached.Generation, run.video, in.Caller)
		run.log.WithFields(logrus.Fields{
			"plan":          plan.String(),
			"generation_id": cached.Generation.ID,
		}).Info("serving generation from cache")
		s.publishDone(ctx, run, cached.Generation.ID, true)

		return &models.GenerationResponse{
			Video:      run.video.Summary(),
			Generation: cached.Generation,
			Inputs:     run.inputs,
			Outputs:    cached.Outputs,
			FromCache:  true,
		}, nil
	}

	return s.regenerate(ctx, run, plan)
}

func (s *GenerationService) regenerate(ctx context.Context, run *pipelineRun, plan Plan) (*models.GenerationResponse, error) {
	writeInput, err := plan.WriteKeyInput(run.keyInput)
	if err != nil {
		return nil, err
	}
	writeKey, err := BuildCacheKey(writeInput)
	if err != nil {
		return nil, err
	}

	if plan.Kind == PlanTargetedRegenerate {
		base, err := s.store.FindGenerationByKey(ctx, writeKey)
		if err != nil {
			return nil, storageError(StageCacheLookup, err)
		}
		if base == nil {
			run.log.WithField("target", plan.Target).Info("nothing to tweak yet, generating every platform")
			plan = fullPlan(run.platforms)
		}
	}

	log := run.log.WithFields(logrus.Fields{"plan": plan.String(), "write_key": writeKey})

	release, err := s.lock(ctx, writeKey, log)
	if err != nil {
		return nil, err
	}
	defer release()

	s.publish(ctx, run.in.Caller, models.NewStatusUpdate(models.StageTranscript, run.video.YouTubeVideoID))
	transcript, err := s.resolveTranscript(ctx, run.video, log)
	if err != nil {
		return nil, err
	}

	options, _ := decodeOptions(run.in.ExtraOptions)
	s.publish(ctx, run.in.Caller, models.NewStatusUpdate(models.StageGenerating, run.video.YouTubeVideoID))
	raw, err := s.generator.Generate(ctx, GenerationPrompt{
		VideoTitle:        derefString(run.video.Title),
		Transcript:        transcript.FullText,
		Tone:              run.tone,
		Platforms:         plan.Generate,
		TweakInstructions: run.in.TweakInstructions,
		ExtraOptions:      options,
	})
	if err != nil {
		return nil, upstreamError(StageGenerate, err)
	}
	outputs, err := NormalizeGenerated(raw, plan.Generate)
	if err != nil {
		return nil, upstreamError(StageGenerate, err)
	}

	s.publish(ctx, run.in.Caller, models.NewStatusUpdate(models.StageSaving, run.video.YouTubeVideoID))
	writeOptions, _ := CanonicalOptions(writeInput.ExtraOptions)
	completedAt := s.now()
	gen := &models.Generation{
		VideoID:       run.video.ID,
		Tone:          run.tone,
		Platforms:     run.platforms,
		Status:        models.GenerationStatusSuccess,
		PromptVersion: PromptVersion,
		CacheKey:      writeKey,
		Owner:         run.in.Caller,
		CompletedAt:   &completedAt,
	}
	if writeOptions != "" {
		gen.ExtraOptions = json.RawMessage(writeOptions)
	}

	if err := s.store.UpsertGeneration(ctx, gen); err != nil {
		return nil, storageError(StageSave, err)
	}
	rows := BuildOutputRows(gen.ID, outputs, plan.Generate)
	if err := s.store.ReplaceOutputs(ctx, gen.ID, plan.Replaces(), rows); err != nil {
		return nil, storageError(StageSave, err)
	}

	stored, err := s.store.ListOutputs(ctx, gen.ID)
	if err != nil {
		return nil, storageError(StageReadBack, err)
	}

	log.WithFields(logrus.Fields{
		"generation_id": gen.ID,
		"platforms":     plan.Generate,
	}).Info("generation saved")
	s.publishDone(ctx, run, gen.ID, false)

	return &models.GenerationResponse{
		Video:      run.video.Summary(),
		Generation: gen,
		Inputs:     run.inputs,
		Outputs:    NormalizeStored(stored),
		FromCache:  false,
	}, nil
}

// resolveTranscript reuses the transcript stored on the video, otherwise
// fetches it and caches it on the video row. Caching failures are only logged.
func (s *GenerationService) resolveTranscript(ctx context.Context, video *models.Video, log *logrus.Entry) (models.Transcript, error) {
	if video.Transcript != nil && strings.TrimSpace(*video.Transcript) != "" {
		return models.Transcript{
			FullText: *video.Transcript,
			Language: derefString(video.TranscriptLanguage),
		}, nil
	}

	t, err := s.transcripts.Fetch(ctx, video.YouTubeVideoID)
	if err != nil {
		return models.Transcript{}, upstreamError(StageTranscript, err)
	}
	if strings.TrimSpace(t.FullText) == "" {
		return models.Transcript{}, upstreamError(StageTranscript, errors.New("transcript is empty"))
	}

	if err := s.store.SaveTranscript(ctx, video.ID, t); err != nil {
		log.WithError(err).Warn("transcript backfill failed")
	} else {
		video.Transcript = &t.FullText
		video.TranscriptLanguage = &t.Language
	}
	return t, nil
}

func (s *GenerationService) lock(ctx context.Context, key string, log *logrus.Entry) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	release, acquired, err := s.locks.Acquire(ctx, key, s.lockTTL)
	if err != nil {
		log.WithError(err).Warn("generation lock unavailable, continuing without it")
		return func() {}, nil
	}
	if !acquired {
		return nil, &ConflictError{Message: "An identical generation is already in progress"}
	}
	return release, nil
}

func (s *GenerationService) publish(ctx context.Context, owner models.Owner, update models.StatusUpdate) {
	if s.status == nil {
		return
	}
	s.status.Publish(ctx, owner, update)
}

func (s *GenerationService) publishDone(ctx context.Context, run *pipelineRun, generationID uuid.UUID, fromCache bool) {
	update := models.NewStatusUpdate(models.StageDone, run.video.YouTubeVideoID)
	update.GenerationID = &generationID
	update.FromCache = fromCache
	s.publish(ctx, run.in.Caller, update)
}

// Get reads a stored generation back in the generate response shape.
func (s *GenerationService) Get(ctx context.Context, id uuid.UUID, caller models.Owner) (*models.GenerationResponse, error) {
	gen, err := s.store.GetGeneration(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, &NotFoundError{Message: "Generation not found"}
		}
		return nil, storageError(StageReadBack, err)
	}
	if !canRead(gen.Owner, caller) {
		return nil, &ForbiddenError{Message: "Generation belongs to another owner"}
	}

	video, err := s.store.GetVideo(ctx, gen.VideoID)
	if err != nil {
		return nil, storageError(StageReadBack, err)
	}
	rows, err := s.store.ListOutputs(ctx, gen.ID)
	if err != nil {
		return nil, storageError(StageReadBack, err)
	}

	return &models.GenerationResponse{
		Video:      video.Summary(),
		Generation: gen,
		Inputs: models.GenerationInputs{
			Tone:      gen.Tone,
			Platforms: gen.Platforms,
		},
		Outputs:   NormalizeStored(rows),
		FromCache: true,
	}, nil
}

// ListForUser returns a user's generations, newest first, with their videos.
func (s *GenerationService) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.GenerationListItem, error) {
	gens, err := s.store.ListGenerationsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, storageError(StageReadBack, err)
	}

	videos := make(map[uuid.UUID]*models.Video)
	items := make([]models.GenerationListItem, 0, len(gens))
	for _, gen := range gens {
		video, ok := videos[gen.VideoID]
		if !ok {
			video, err = s.store.GetVideo(ctx, gen.VideoID)
			if err != nil {
				return nil, storageError(StageReadBack, err)
			}
			videos[gen.VideoID] = video
		}
		items = append(items, models.GenerationListItem{Generation: gen, Video: video.Summary()})
	}
	return items, nil
}

func canRead(owner, caller models.Owner) bool {
	return owner.IsZero() || owner == caller
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
