package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"river-backend/internal/middleware"
	"river-backend/internal/models"
)

type sessionClaimer interface {
	Claim(ctx context.Context, sessionID string, userID uuid.UUID) (models.ClaimResult, error)
}

type ClaimHandler struct {
	claimer sessionClaimer
}

func NewClaimHandler(claimer sessionClaimer) *ClaimHandler {
	return &ClaimHandler{claimer: claimer}
}

// Claim handles POST /claim, called by the frontend right after sign-in.
func (h *ClaimHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req models.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validationFields(err), r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if req.UserID != "" {
		if claimedFor, err := uuid.Parse(req.UserID); err != nil || claimedFor != userID {
			writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Cannot claim a session for another user", r))
			return
		}
	}

	claimed, err := h.claimer.Claim(r.Context(), req.AnonymousSessionID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.ClaimResponse{
		Success: true,
		Claimed: claimed,
		Message: fmt.Sprintf("Claimed %d videos and %d generations", claimed.Videos, claimed.Generations),
	})
}
