package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stakepool/treasury/internal/services"
)

type FxHandler struct {
	service   *services.FxService
	validator *services.ValidationHelper
}

func NewFxHandler(service *services.FxService) *FxHandler {
	return &FxHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// CaptureRate stores a rate-to-EUR for a currency and date
// @Summary Capture FX rate
// @Tags fx
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{currency=string,rate=string,date=string} true "Rate capture"
// @Success 200 {object} map[string]any
// @Failure 400 {object} services.ErrorResponse
// @Router /fx/rates [post]
func (h *FxHandler) CaptureRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Currency string          `json:"currency" validate:"required,len=3,uppercase"`
		Rate     decimal.Decimal `json:"rate"`
		Date     string          `json:"date" validate:"required,datetime=2006-01-02"`
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

	date, _ := time.Parse("2006-01-02", req.Date)
	if err := h.service.PutRate(r.Context(), req.Currency, req.Rate, date); err != nil {
		services.SendErrorResponse(w, err.Error(), services.ErrorStatus(err), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

// GetRate resolves the rate for a currency as of a date
// @Summary Resolve FX rate
// @Tags fx
// @Produce json
// @Security BearerAuth
// @Param currency path string true "3-letter currency code"
// @Param date query string false "as-of date (YYYY-MM-DD, default today)"
// @Success 200 {object} map[string]any
// @Failure 404 {object} services.ErrorResponse
// @Router /fx/rates/{currency} [get]
func (h *FxHandler) GetRate(w http.ResponseWriter, r *http.Request) {
	currency := chi.URLParam(r, "currency")

	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			services.SendErrorResponse(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest, nil)
			return
		}
		asOf = parsed
	}

	rate, fallback, err := h.service.Rate(r.Context(), currency, asOf)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), services.ErrorStatus(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"currency": rate.CurrencyCode,
		"rate":     rate.RateToEUR,
		"rateDate": rate.RateDate.Format("2006-01-02"),
		"fallback": fallback,
	})
}
