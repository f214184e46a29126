package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"budgetlink/internal/domain/institution"
	"budgetlink/internal/domain/job"
	"budgetlink/internal/domain/openfinance"
	"budgetlink/internal/shared/middleware"
)

// InstitutionLinker is the linking use case consumed by the handler.
type InstitutionLinker interface {
	LinkInstitution(ctx context.Context, userID, publicToken string) (*institution.Institution, error)
}

// SyncInitiator starts a background sync for an institution.
type SyncInitiator interface {
	InitiateSyncForItem(ctx context.Context, institutionID int64) (*job.Job, error)
}

// InstitutionHandler serves the institution linking endpoints.
type InstitutionHandler struct {
	institutions *institution.Service
	linker       InstitutionLinker
	syncer       SyncInitiator
}

// NewInstitutionHandler creates a new institution handler
func NewInstitutionHandler(institutions *institution.Service, linker InstitutionLinker, syncer SyncInitiator) *InstitutionHandler {
	return &InstitutionHandler{institutions: institutions, linker: linker, syncer: syncer}
}

// LinkInstitutionRequest is the body of POST /api/institutions/link
type LinkInstitutionRequest struct {
	PublicToken string `json:"publicToken"`
}

// InstitutionResponse is the public view of an institution. The access
// credential is never included.
type InstitutionResponse struct {
	ID                    int64   `json:"id"`
	InstitutionName       string  `json:"institutionName"`
	ExternalInstitutionID string  `json:"externalInstitutionId"`
	SyncStatus            string  `json:"syncStatus"`
	LastSuccessfulSync    *string `json:"lastSuccessfulSync"`
	LastSyncErrorMessage  *string `json:"lastSyncErrorMessage"`
	CreatedAt             string  `json:"createdAt"`
	UpdatedAt             string  `json:"updatedAt"`
}

// RefreshResponse reports the outcome of a refresh request.
type RefreshResponse struct {
	InstitutionID int64  `json:"institutionId"`
	Status        string `json:"status"`
	JobID         *int64 `json:"jobId,omitempty"`
}

// HandleLink exchanges a public token and stores the new institution.
func (h *InstitutionHandler) HandleLink(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "Unauthorized")
		return
	}

	var req LinkInstitutionRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.PublicToken) == "" {
		respondError(w, r, http.StatusBadRequest, ErrCodeInvalidInput, "publicToken is required")
		return
	}

	inst, err := h.linker.LinkInstitution(r.Context(), userID, req.PublicToken)
	if err != nil {
		respondServiceError(w, r, err, "Error linking institution for user %s", userID)
		return
	}

	respondJSON(w, http.StatusCreated, toInstitutionResponse(inst))
}

// HandleList returns the user's active institutions.
func (h *InstitutionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "Unauthorized")
		return
	}

	institutions, err := h.institutions.ListForUser(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err, "Error listing institutions for user %s", userID)
		return
	}

	response := make([]InstitutionResponse, 0, len(institutions))
	for _, inst := range institutions {
		response = append(response, toInstitutionResponse(inst))
	}

	respondJSON(w, http.StatusOK, response)
}

// HandleArchive soft-deletes an institution.
func (h *InstitutionHandler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "Unauthorized")
		return
	}

	id, ok := parseInstitutionID(w, r)
	if !ok {
		return
	}

	if err := h.institutions.Archive(r.Context(), userID, id); err != nil {
		respondServiceError(w, r, err, "Error archiving institution %d for user %s", id, userID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleRefresh queues a sync. A sync already in progress is not an error.
func (h *InstitutionHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "Unauthorized")
		return
	}

	id, ok := parseInstitutionID(w, r)
	if !ok {
		return
	}

	if _, err := h.institutions.GetForUser(r.Context(), userID, id); err != nil {
		respondServiceError(w, r, err, "Error loading institution %d for user %s", id, userID)
		return
	}

	j, err := h.syncer.InitiateSyncForItem(r.Context(), id)
	if errors.Is(err, openfinance.ErrAlreadySyncing) {
		respondJSON(w, http.StatusOK, RefreshResponse{
			InstitutionID: id,
			Status:        string(institution.StatusSyncing),
		})
		return
	}
	if err != nil {
		respondServiceError(w, r, err, "Error initiating sync of institution %d", id)
		return
	}

	respondJSON(w, http.StatusAccepted, RefreshResponse{
		InstitutionID: id,
		Status:        string(j.Status),
		JobID:         &j.ID,
	})
}

func parseInstitutionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, r, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid institution ID")
		return 0, false
	}
	return id, true
}

func toInstitutionResponse(inst *institution.Institution) InstitutionResponse {
	resp := InstitutionResponse{
		ID:                    inst.ID,
		InstitutionName:       inst.InstitutionName,
		ExternalInstitutionID: inst.ExternalInstitutionID,
		SyncStatus:            string(inst.SyncStatus),
		LastSyncErrorMessage:  inst.LastSyncErrorMessage,
		CreatedAt:             inst.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             inst.UpdatedAt.Format(time.RFC3339),
	}
	if inst.LastSuccessfulSync != nil {
		s := inst.LastSuccessfulSync.Format(time.RFC3339)
		resp.LastSuccessfulSync = &s
	}
	return resp
}
