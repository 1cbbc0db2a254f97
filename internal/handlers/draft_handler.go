package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stakepool/treasury/internal/models"
	"github.com/stakepool/treasury/internal/services"
)

type DraftHandler struct {
	service *services.DraftService
}

func NewDraftHandler(service *services.DraftService) *DraftHandler {
	return &DraftHandler{service: service}
}

// Create stages a funding draft
// @Summary Create funding draft
// @Tags drafts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateDraftInput true "Funding intent"
// @Success 201 {object} models.FundingDraft
// @Failure 400 {object} services.ErrorResponse
// @Router /drafts [post]
func (h *DraftHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateDraftInput

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	draft, err := h.service.Create(r.Context(), req)
	if err != nil {
		log.Printf("[DRAFT] Create failed: %v", err)
		services.SendErrorResponse(w, err.Error(), services.ErrorStatus(err), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(draft)
}

// Pending lists staged drafts
// @Summary List pending drafts
// @Tags drafts
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.FundingDraft
// @Router /drafts [get]
func (h *DraftHandler) Pending(w http.ResponseWriter, r *http.Request) {
	drafts, err := h.service.Pending(r.Context())
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.ErrorStatus(err), nil)
		return
	}
	if drafts == nil {
		drafts = []models.FundingDraft{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(drafts)
}

// Accept promotes a draft to a ledger entry
// @Summary Accept funding draft
// @Tags drafts
// @Produce json
// @Security BearerAuth
// @Param draftId path string true "Draft id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /drafts/{draftId}/accept [post]
func (h *DraftHandler) Accept(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	draftID := chi.URLParam(r, "draftId")
	entryID, err := h.service.Accept(r.Context(), draftID, userID)
	if err != nil {
		log.Printf("[DRAFT] Accept %s failed: %v", draftID, err)
		services.SendErrorResponse(w, err.Error(), services.ErrorStatus(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "ledgerEntryId": entryID})
}

// Reject removes a draft without ledger effect
// @Summary Reject funding draft
// @Tags drafts
// @Produce json
// @Security BearerAuth
// @Param draftId path string true "Draft id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} services.ErrorResponse
// @Router /drafts/{draftId}/reject [post]
func (h *DraftHandler) Reject(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	draftID := chi.URLParam(r, "draftId")
	if err := h.service.Reject(r.Context(), draftID, userID); err != nil {
		log.Printf("[DRAFT] Reject %s failed: %v", draftID, err)
		services.SendErrorResponse(w, err.Error(), services.ErrorStatus(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}
