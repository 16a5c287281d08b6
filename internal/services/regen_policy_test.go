package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"river-backend/internal/models"
)

func TestDecidePlan(t *testing.T) {
	both := []models.Platform{models.PlatformTwitter, models.PlatformLinkedIn}
	target := json.RawMessage(`{"target_platform":"LinkedIn"}`)

	tests := []struct {
		name     string
		in       PlanInput
		kind     PlanKind
		generate []models.Platform
		replaces []models.Platform
	}{
		{
			name: "hit serves cache",
			in:   PlanInput{Hit: true, Platforms: both},
			kind: PlanServeCache,
		},
		{
			name: "hit with target still serves cache",
			in:   PlanInput{Hit: true, Platforms: both, ExtraOptions: target},
			kind: PlanServeCache,
		},
		{
			name:     "miss regenerates everything",
			in:       PlanInput{Platforms: both},
			kind:     PlanFullRegenerate,
			generate: []models.Platform{models.PlatformLinkedIn, models.PlatformTwitter},
		},
		{
			name:     "force ignores hit",
			in:       PlanInput{ForceRegen: true, Hit: true, Platforms: both},
			kind:     PlanFullRegenerate,
			generate: []models.Platform{models.PlatformLinkedIn, models.PlatformTwitter},
		},
		{
			name:     "force with target",
			in:       PlanInput{ForceRegen: true, Hit: true, Platforms: both, ExtraOptions: target},
			kind:     PlanTargetedRegenerate,
			generate: []models.Platform{models.PlatformLinkedIn},
			replaces: []models.Platform{models.PlatformLinkedIn},
		},
		{
			name:     "target outside request",
			in:       PlanInput{ForceRegen: true, Platforms: []models.Platform{models.PlatformTwitter}, ExtraOptions: target},
			kind:     PlanFullRegenerate,
			generate: []models.Platform{models.PlatformTwitter},
		},
		{
			name:     "unknown target",
			in:       PlanInput{Platforms: both, ExtraOptions: json.RawMessage(`{"target_platform":"tiktok"}`)},
			kind:     PlanFullRegenerate,
			generate: []models.Platform{models.PlatformLinkedIn, models.PlatformTwitter},
		},
		{
			name:     "target not a string",
			in:       PlanInput{Platforms: both, ExtraOptions: json.RawMessage(`{"target_platform":3}`)},
			kind:     PlanFullRegenerate,
			generate: []models.Platform{models.PlatformLinkedIn, models.PlatformTwitter},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan := DecidePlan(tc.in)
			assert.Equal(t, tc.kind, plan.Kind)
			assert.Equal(t, tc.generate, plan.Generate)
			assert.Equal(t, tc.replaces, plan.Replaces())
		})
	}
}

func TestPlan_WriteKeyInput(t *testing.T) {
	in := CacheKeyInput{
		VideoID:      "vid-1",
		Tone:         "punchy",
		Platforms:    []models.Platform{models.PlatformTwitter, models.PlatformLinkedIn},
		ExtraOptions: json.RawMessage(`{"target_platform":"linkedin"}`),
	}
	plan := DecidePlan(PlanInput{ForceRegen: true, Platforms: in.Platforms, ExtraOptions: in.ExtraOptions})
	require.Equal(t, PlanTargetedRegenerate, plan.Kind)
	assert.Equal(t, "targeted_regenerate(linkedin)", plan.String())

	out, err := plan.WriteKeyInput(in)
	require.NoError(t, err)
	assert.Nil(t, out.ExtraOptions)

	baseKey, err := BuildCacheKey(CacheKeyInput{VideoID: "vid-1", Tone: "punchy", Platforms: in.Platforms})
	require.NoError(t, err)
	writeKey, err := BuildCacheKey(out)
	require.NoError(t, err)
	assert.Equal(t, baseKey, writeKey)

	in.ExtraOptions = json.RawMessage(`{"target_platform":"linkedin","audience":"devs"}`)
	out, err = plan.WriteKeyInput(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"audience":"devs"}`, string(out.ExtraOptions))

	full := DecidePlan(PlanInput{Platforms: in.Platforms})
	same, err := full.WriteKeyInput(in)
	require.NoError(t, err)
	assert.Equal(t, in, same)
}
