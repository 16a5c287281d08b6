package models

import (
	"github.com/google/uuid"
)

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Pipeline stages reported to the client while a generation runs
const (
	StageValidating = "validating"
	StageMetadata   = "metadata"
	StageCache      = "cache"
	StageTranscript = "transcript"
	StageGenerating = "generating"
	StageSaving     = "saving"
	StageDone       = "done"
	StageFailed     = "failed"
)

var stageSteps = map[string]int{
	StageValidating: 1,
	StageMetadata:   2,
	StageCache:      3,
	StageTranscript: 4,
	StageGenerating: 5,
	StageSaving:     6,
	StageDone:       7,
}

type StatusUpdate struct {
	Stage        string     `json:"stage"`
	Step         int        `json:"step"`
	TotalSteps   int        `json:"total_steps"`
	VideoID      string     `json:"video_id,omitempty"`
	GenerationID *uuid.UUID `json:"generation_id,omitempty"`
	FromCache    bool       `json:"from_cache,omitempty"`
	Message      string     `json:"message,omitempty"`
}

func NewStatusUpdate(stage, videoID string) StatusUpdate {
	return StatusUpdate{
		Stage:      stage,
		Step:       stageSteps[stage],
		TotalSteps: len(stageSteps),
		VideoID:    videoID,
	}
}

// StatusChannel is the Redis pub/sub channel carrying updates for an owner.
// Unowned requests have nowhere to deliver and get an empty channel.
func StatusChannel(o Owner) string {
	if id, ok := o.UserID(); ok {
		return "generation_updates:user:" + id.String()
	}
	if s, ok := o.SessionID(); ok {
		return "generation_updates:session:" + s
	}
	return ""
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
