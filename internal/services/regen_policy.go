package services

import (
	"encoding/json"
	"fmt"

	"river-backend/internal/models"
)

// targetPlatformOption is the extra_options field that routes a request to
// a single-platform regeneration.
const targetPlatformOption = "target_platform"

type PlanKind string

const (
	PlanServeCache         PlanKind = "serve_cache"
	PlanFullRegenerate     PlanKind = "full_regenerate"
	PlanTargetedRegenerate PlanKind = "targeted_regenerate"
)

type PlanInput struct {
	ForceRegen   bool
	Hit          bool
	Platforms    []models.Platform
	ExtraOptions json.RawMessage
}

// Plan is the regeneration decision for one request.
type Plan struct {
	Kind PlanKind
	// Target is set for targeted regeneration only.
	Target models.Platform
	// Generate lists the platforms the model is asked for.
	Generate []models.Platform
}

func DecidePlan(in PlanInput) Plan {
	if !in.ForceRegen && in.Hit {
		return Plan{Kind: PlanServeCache}
	}

	if target, ok := TargetPlatform(in.ExtraOptions, in.Platforms); ok {
		return Plan{
			Kind:     PlanTargetedRegenerate,
			Target:   target,
			Generate: []models.Platform{target},
		}
	}

	return fullPlan(in.Platforms)
}

func fullPlan(platforms []models.Platform) Plan {
	return Plan{
		Kind:     PlanFullRegenerate,
		Generate: models.SortPlatforms(platforms),
	}
}

// Replaces returns the platforms whose stored outputs this plan discards.
// Nil means every output of the generation.
func (p Plan) Replaces() []models.Platform {
	if p.Kind == PlanTargetedRegenerate {
		return []models.Platform{p.Target}
	}
	return nil
}

func (p Plan) String() string {
	if p.Kind == PlanTargetedRegenerate {
		return fmt.Sprintf("%s(%s)", p.Kind, p.Target)
	}
	return string(p.Kind)
}

// TargetPlatform reads extra_options.target_platform. It is only recognized
// when it names a supported platform that is part of the request.
func TargetPlatform(extra json.RawMessage, requested []models.Platform) (models.Platform, bool) {
	opts, err := decodeOptions(extra)
	if err != nil || opts == nil {
		return "", false
	}
	raw, ok := opts[targetPlatformOption].(string)
	if !ok {
		return "", false
	}
	p, ok := models.ParsePlatform(raw)
	if !ok || !models.ContainsPlatform(requested, p) {
		return "", false
	}
	return p, true
}

// WriteKeyInput returns the key inputs of the generation a plan writes to.
// A targeted regeneration updates the generation its siblings live in, so the
// routing field is dropped; an object left empty counts as no options.
func (p Plan) WriteKeyInput(in CacheKeyInput) (CacheKeyInput, error) {
	if p.Kind != PlanTargetedRegenerate {
		return in, nil
	}

	opts, err := decodeOptions(in.ExtraOptions)
	if err != nil {
		return in, err
	}
	delete(opts, targetPlatformOption)

	out := in
	if len(opts) == 0 {
		out.ExtraOptions = nil
		return out, nil
	}
	encoded, err := encodeOptions(opts)
	if err != nil {
		return in, err
	}
	out.ExtraOptions = json.RawMessage(encoded)
	return out, nil
}
