package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"river-backend/internal/models"
)

// ReconcileOwner applies the ownership rule for a caller touching an existing
// row. An authenticated caller always takes the row over. An anonymous caller
// only fills a row nobody owns yet.
func ReconcileOwner(current, caller models.Owner) (models.Owner, bool) {
	switch caller.Kind() {
	case models.OwnerUser:
		if current == caller {
			return current, false
		}
		return caller, true
	case models.OwnerAnonymous:
		if current.IsZero() {
			return caller, true
		}
	}
	return current, false
}

// ownerPatchFor turns the rule above into a conditional write so the store
// re-checks the row state instead of trusting what was read earlier.
func ownerPatchFor(caller models.Owner) (models.OwnerPatch, bool) {
	switch caller.Kind() {
	case models.OwnerUser:
		return models.OwnerPatch{Owner: caller}, true
	case models.OwnerAnonymous:
		return models.OwnerPatch{Owner: caller, OnlyIfUnowned: true}, true
	}
	return models.OwnerPatch{}, false
}

type ownershipStore interface {
	PatchVideoOwner(ctx context.Context, id uuid.UUID, patch models.OwnerPatch) (bool, error)
	PatchGenerationOwner(ctx context.Context, id uuid.UUID, patch models.OwnerPatch) (bool, error)
	ClaimSession(ctx context.Context, sessionID string, userID uuid.UUID) (models.ClaimResult, error)
}

type OwnershipReconciler struct {
	store ownershipStore
	log   *logrus.Logger
}

func NewOwnershipReconciler(store ownershipStore, log *logrus.Logger) *OwnershipReconciler {
	return &OwnershipReconciler{store: store, log: log}
}

// AttachOnHit re-owns a cached generation and its video for the caller.
// Failures are logged and swallowed: the caller already has the result.
func (r *OwnershipReconciler) AttachOnHit(ctx context.Context, gen *models.Generation, video *models.Video, caller models.Owner) {
	if gen != nil {
		if next, changed := ReconcileOwner(gen.Owner, caller); changed {
			if r.patch(ctx, "generation", gen.ID, caller, r.store.PatchGenerationOwner) {
				gen.Owner = next
			}
		}
	}

	if video != nil {
		if next, changed := ReconcileOwner(video.Owner, caller); changed {
			if r.patch(ctx, "video", video.ID, caller, r.store.PatchVideoOwner) {
				video.Owner = next
			}
		}
	}
}

func (r *OwnershipReconciler) patch(
	ctx context.Context,
	table string,
	id uuid.UUID,
	caller models.Owner,
	apply func(context.Context, uuid.UUID, models.OwnerPatch) (bool, error),
) bool {
	patch, ok := ownerPatchFor(caller)
	if !ok {
		return false
	}
	applied, err := apply(ctx, id, patch)
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"table": table,
			"id":    id,
			"owner": caller.String(),
		}).Warn("ownership patch failed on cache hit")
		return false
	}
	return applied
}

// Claim moves every video and generation owned by an anonymous session to
// userID. Rows that already carry a user id are never touched, so repeating
// a claim changes nothing.
func (r *OwnershipReconciler) Claim(ctx context.Context, sessionID string, userID uuid.UUID) (models.ClaimResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	fields := make(map[string]string)
	if sessionID == "" {
		fields["anonymous_session_id"] = "Anonymous session id is required"
	}
	if userID == uuid.Nil {
		fields["user_id"] = "User id is required"
	}
	if len(fields) > 0 {
		return models.ClaimResult{}, &ValidationError{Fields: fields}
	}

	res, err := r.store.ClaimSession(ctx, sessionID, userID)
	if err != nil {
		return models.ClaimResult{}, storageError(StageClaim, err)
	}

	r.log.WithFields(logrus.Fields{
		"user_id":     userID,
		"videos":      res.Videos,
		"generations": res.Generations,
	}).Info("anonymous session claimed")
	return res, nil
}
