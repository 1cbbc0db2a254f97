package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stakepool/treasury/internal/services"
)

type SettlementHandler struct {
	service *services.SettlementService
}

func NewSettlementHandler(service *services.SettlementService) *SettlementHandler {
	return &SettlementHandler{service: service}
}

// Settle posts the balancing entry that zeroes an associate out
// @Summary Exit settlement
// @Tags settlements
// @Produce json
// @Security BearerAuth
// @Param associateId path string true "Associate id"
// @Param cutoff query string false "Inclusive cutoff (default now)"
// @Success 200 {object} models.SettlementReceipt
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /settlements/{associateId} [post]
func (h *SettlementHandler) Settle(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	associateID := chi.URLParam(r, "associateId")
	cutoff, ok := parseCutoff(w, r)
	if !ok {
		return
	}

	receipt, err := h.service.SettleNow(r.Context(), associateID, cutoff, nil)
	if err != nil {
		if errors.Is(err, services.ErrSettlementDiverged) {
			// Convergence failures are calculation defects and must stay loud.
			log.Printf("[SETTLEMENT] FATAL: %v", err)
		}
		services.SendErrorResponse(w, err.Error(), services.ErrorStatus(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(receipt)
}
