package services

import (
	"fmt"
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

// Pipeline stages that can fail
type Stage string

const (
	StageMetadata    Stage = "metadata"
	StageVideoUpsert Stage = "video_upsert"
	StageCacheLookup Stage = "cache_lookup"
	StageTranscript  Stage = "transcript"
	StageGenerate    Stage = "generate"
	StageSave        Stage = "save"
	StageReadBack    Stage = "read_back"
	StageClaim       Stage = "claim"
)

type ErrorKind string

const (
	KindUpstream ErrorKind = "upstream"
	KindStorage  ErrorKind = "storage"
)

// StageError reports which pipeline stage aborted the request.
type StageError struct {
	Stage Stage
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s failure: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func upstreamError(stage Stage, err error) error {
	return &StageError{Stage: stage, Kind: KindUpstream, Err: err}
}

func storageError(stage Stage, err error) error {
	return &StageError{Stage: stage, Kind: KindStorage, Err: err}
}
