package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stakepool/treasury/internal/services"
)

type ReconciliationHandler struct {
	service *services.ReconciliationService
}

func NewReconciliationHandler(service *services.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{service: service}
}

// GetCalculation returns the associate's entitlement snapshot
// @Summary Reconciliation calculation
// @Tags reconciliation
// @Produce json
// @Security BearerAuth
// @Param associateId path string true "Associate id"
// @Param cutoff query string false "Inclusive cutoff (RFC3339 or YYYY-MM-DD, default now)"
// @Success 200 {object} models.Calculation
// @Failure 404 {object} services.ErrorResponse
// @Router /reconciliation/{associateId} [get]
func (h *ReconciliationHandler) GetCalculation(w http.ResponseWriter, r *http.Request) {
	associateID := chi.URLParam(r, "associateId")

	cutoff, ok := parseCutoff(w, r)
	if !ok {
		return
	}

	calc, err := h.service.Calculate(r.Context(), associateID, cutoff)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.ErrorStatus(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(calc)
}

// GetBreakdown returns the associate's per-bookmaker statement rows
// @Summary Per-bookmaker breakdown
// @Tags reconciliation
// @Produce json
// @Security BearerAuth
// @Param associateId path string true "Associate id"
// @Param cutoff query string false "Inclusive cutoff (default now)"
// @Success 200 {array} models.BookmakerBreakdownRow
// @Router /reconciliation/{associateId}/bookmakers [get]
func (h *ReconciliationHandler) GetBreakdown(w http.ResponseWriter, r *http.Request) {
	associateID := chi.URLParam(r, "associateId")

	cutoff, ok := parseCutoff(w, r)
	if !ok {
		return
	}

	breakdown, err := h.service.BookmakerBreakdown(r.Context(), associateID, cutoff)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.ErrorStatus(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(breakdown)
}
