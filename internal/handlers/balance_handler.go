package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stakepool/treasury/internal/services"
)

type BalanceHandler struct {
	service   *services.AttributionService
	validator *services.ValidationHelper
}

func NewBalanceHandler(service *services.AttributionService) *BalanceHandler {
	return &BalanceHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// GetStatuses returns the mismatch classification for every pair
// @Summary Pair balance statuses
// @Tags balances
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.PairStatus
// @Router /balances/status [get]
func (h *BalanceHandler) GetStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.service.PairStatuses(r.Context())
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.ErrorStatus(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statuses)
}

// UpdateCheck records a reported balance for one pair
// @Summary Update reported balance
// @Tags balances
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.UpdateBalanceInput true "Reported balance"
// @Success 200 {object} models.BalanceCheck
// @Failure 400 {object} services.ErrorResponse
// @Router /balances/checks [post]
func (h *BalanceHandler) UpdateCheck(w http.ResponseWriter, r *http.Request) {
	var req services.UpdateBalanceInput

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

	check, err := h.service.UpdateReportedBalance(r.Context(), req)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.ErrorStatus(err), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(check)
}

// GetAttribution runs float attribution across shared bookmakers
// @Summary Float attribution
// @Tags balances
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.FloatAttribution
// @Router /balances/attribution [get]
func (h *BalanceHandler) GetAttribution(w http.ResponseWriter, r *http.Request) {
	attributions, err := h.service.AttributeFloat(r.Context())
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.ErrorStatus(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(attributions)
}

// GetCorrectionPrefill suggests a correction entry for one pair
// @Summary Correction prefill
// @Tags balances
// @Produce json
// @Security BearerAuth
// @Param associateId path string true "Associate id"
// @Param bookmakerId path string true "Bookmaker id"
// @Success 200 {object} models.CorrectionPrefill
// @Success 204 "Pair is exactly balanced"
// @Router /balances/{associateId}/{bookmakerId}/correction-prefill [get]
func (h *BalanceHandler) GetCorrectionPrefill(w http.ResponseWriter, r *http.Request) {
	associateID := chi.URLParam(r, "associateId")
	bookmakerID := chi.URLParam(r, "bookmakerId")

	prefill, err := h.service.CorrectionPrefill(r.Context(), associateID, bookmakerID)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.ErrorStatus(err), nil)
		return
	}
	if prefill == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prefill)
}
