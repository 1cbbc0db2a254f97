package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stakepool/treasury/internal/models"
	"github.com/stakepool/treasury/internal/services"
)

type LedgerHandler struct {
	ledger    *services.LedgerService
	fx        *services.FxService
	validator *services.ValidationHelper
}

func NewLedgerHandler(ledger *services.LedgerService, fx *services.FxService) *LedgerHandler {
	return &LedgerHandler{
		ledger:    ledger,
		fx:        fx,
		validator: services.NewValidationHelper(),
	}
}

// AppendEntry posts a manual ledger entry (corrections, backfills)
// @Summary Append ledger entry
// @Tags ledger
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object true "Ledger entry"
// @Success 201 {object} map[string]any
// @Failure 400 {object} services.ErrorResponse
// @Router /ledger/entries [post]
func (h *LedgerHandler) AppendEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Type         string          `json:"type" validate:"required,oneof=DEPOSIT WITHDRAWAL BET_STAKE BET_RESULT BOOKMAKER_CORRECTION"`
		AssociateID  string          `json:"associateId" validate:"required"`
		BookmakerID  string          `json:"bookmakerId,omitempty"`
		AmountNative decimal.Decimal `json:"amountNative"`
		Currency     string          `json:"currency" validate:"required,len=3,uppercase"`
		Note         string          `json:"note,omitempty" validate:"max=200"`

		// BET_RESULT only.
		SettlementState      string           `json:"settlementState,omitempty" validate:"omitempty,oneof=WON LOST VOID"`
		PrincipalReturnedEUR *decimal.Decimal `json:"principalReturnedEur,omitempty"`
		PerSurebetShareEUR   *decimal.Decimal `json:"perSurebetShareEur,omitempty"`
		SurebetID            string           `json:"surebetId,omitempty"`
		BetID                string           `json:"betId,omitempty"`
		SettlementBatchID    string           `json:"settlementBatchId,omitempty"`
	}

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
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	rate, fallback, err := h.fx.Rate(r.Context(), req.Currency, time.Now().UTC())
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.ErrorStatus(err), nil)
		return
	}
	if fallback {
		log.Printf("[LEDGER] Manual entry for %s using fallback FX rate", req.AssociateID)
	}

	entry, err := models.NewLedgerEntry(models.EntryType(req.Type), req.AssociateID, req.BookmakerID,
		req.AmountNative, req.Currency, rate.RateToEUR, time.Time{}, userID, req.Note)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	hasBetResultFields := req.SettlementState != "" || req.PrincipalReturnedEUR != nil ||
		req.PerSurebetShareEUR != nil || req.SurebetID != "" || req.BetID != "" || req.SettlementBatchID != ""
	if hasBetResultFields {
		if err := entry.AttachBetResult(models.BetResultDetails{
			SettlementState:      models.SettlementState(req.SettlementState),
			PrincipalReturnedEUR: req.PrincipalReturnedEUR,
			PerSurebetShareEUR:   req.PerSurebetShareEUR,
			SurebetID:            req.SurebetID,
			BetID:                req.BetID,
			SettlementBatchID:    req.SettlementBatchID,
		}); err != nil {
			services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
			return
		}
	}

	id, err := h.ledger.AppendEntry(r.Context(), entry)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.ErrorStatus(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"id": id, "amountEur": entry.AmountEUR})
}

// ListEntries lists an associate's entries up to a cutoff
// @Summary List ledger entries
// @Tags ledger
// @Produce json
// @Security BearerAuth
// @Param associateId query string true "Associate id"
// @Param cutoff query string false "Inclusive cutoff (RFC3339, default now)"
// @Success 200 {array} models.LedgerEntry
// @Router /ledger/entries [get]
func (h *LedgerHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	associateID := r.URL.Query().Get("associateId")
	if associateID == "" {
		services.SendErrorResponse(w, "associateId is required", http.StatusBadRequest, nil)
		return
	}

	cutoff, ok := parseCutoff(w, r)
	if !ok {
		return
	}

	entries, err := h.ledger.EntriesForAssociate(r.Context(), associateID, cutoff)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.ErrorStatus(err), nil)
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// parseCutoff reads the optional cutoff query parameter, accepting RFC3339
// or a bare date, defaulting to now.
func parseCutoff(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("cutoff")
	if raw == "" {
		return time.Now().UTC(), true
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.UTC(), true
	}
	if parsed, err := time.Parse("2006-01-02", raw); err == nil {
		// A bare date means end of that day.
		return parsed.Add(24*time.Hour - time.Nanosecond).UTC(), true
	}
	services.SendErrorResponse(w, "Invalid cutoff, expected RFC3339 or YYYY-MM-DD", http.StatusBadRequest, nil)
	return time.Time{}, false
}
