package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"river-backend/internal/middleware"
	"river-backend/internal/models"
	"river-backend/internal/services"
)

type generationService interface {
	Generate(ctx context.Context, in services.GenerateInput) (*models.GenerationResponse, error)
	Get(ctx context.Context, id uuid.UUID, caller models.Owner) (*models.GenerationResponse, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.GenerationListItem, error)
}

type GenerationHandler struct {
	svc generationService
}

func NewGenerationHandler(svc generationService) *GenerationHandler {
	return &GenerationHandler{svc: svc}
}

// Generate handles POST /generate. Callers are either a bearer token user or
// an anonymous browser session.
func (h *GenerationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	// URL may also come on the query string
	if req.YouTubeURL == "" && req.URL == "" {
		q := r.URL.Query()
		req.YouTubeURL = q.Get("youtube_url")
		req.URL = q.Get("url")
	}

	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validationFields(err), r))
		return
	}

	videoURL := strings.TrimSpace(req.YouTubeURL)
	if videoURL == "" {
		videoURL = strings.TrimSpace(req.URL)
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = middleware.GetSessionID(r.Context())
	}
	caller := models.CallerOwner(middleware.GetUserID(r.Context()), sessionID)

	resp, err := h.svc.Generate(r.Context(), services.GenerateInput{
		VideoURL:          videoURL,
		Tone:              req.Tone,
		Platforms:         services.ParsePlatforms(req.Platforms),
		ForceRegen:        req.ForceRegen,
		TweakInstructions: strings.TrimSpace(req.TweakInstructions),
		ExtraOptions:      req.ExtraOptions,
		Caller:            caller,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /generations/{id}.
func (h *GenerationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid generation ID", r))
		return
	}

	caller := models.CallerOwner(middleware.GetUserID(r.Context()), middleware.GetSessionID(r.Context()))
	resp, err := h.svc.Get(r.Context(), id, caller)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// List handles GET /generations for the signed-in user.
func (h *GenerationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	limit := queryInt(r, "limit", 20, 1, 100)
	offset := queryInt(r, "offset", 0, 0, 1<<30)

	items, err := h.svc.ListForUser(r.Context(), userID, limit, offset)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":  items,
		"limit":  limit,
		"offset": offset,
	})
}
