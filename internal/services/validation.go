package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// ErrorStatus maps service errors onto HTTP status codes.
func ErrorStatus(err error) int {
	switch {
	case IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrAssociateNotFound),
		errors.Is(err, ErrBookmakerNotFound),
		errors.Is(err, ErrDraftNotFound),
		errors.Is(err, ErrRateNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDraftAlreadyProcessed):
		return http.StatusConflict
	case errors.Is(err, ErrDataIntegrity):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	if validationErr != nil {
		errorResp.Details = make(map[string]string)
		var fieldErrs validator.ValidationErrors
		if errors.As(validationErr, &fieldErrs) {
			for _, err := range fieldErrs {
				errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
			}
		}
		var ve *ValidationError
		if errors.As(validationErr, &ve) && ve.Field != "" {
			errorResp.Details[ve.Field] = ve.Message
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}
