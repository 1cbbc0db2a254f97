package services

import (
	"errors"
	"fmt"
)

// Error taxonomy for the reconciliation and settlement core. Callers branch
// on these with errors.Is/errors.As rather than matching message strings.
var (
	// ErrAssociateNotFound / ErrBookmakerNotFound: unknown identity, no
	// partial state created.
	ErrAssociateNotFound = errors.New("associate not found")
	ErrBookmakerNotFound = errors.New("bookmaker not found")

	// ErrDraftNotFound covers unknown draft ids.
	ErrDraftNotFound = errors.New("funding draft not found")

	// ErrDraftAlreadyProcessed is returned to every acceptance attempt
	// that loses the compare-and-swap on a staged draft. Exactly one
	// caller per draft ever receives success.
	ErrDraftAlreadyProcessed = errors.New("funding draft already processed")

	// ErrRateNotFound means no rate was ever captured for the currency.
	ErrRateNotFound = errors.New("fx rate not found")

	// ErrSettlementDiverged means a posted balancing entry failed to zero
	// the imbalance. This indicates a calculation defect, not a transient
	// condition, and is never retried automatically.
	ErrSettlementDiverged = errors.New("settlement did not converge")

	// ErrDataIntegrity wraps uniqueness or constraint violations raised by
	// the store on upserts.
	ErrDataIntegrity = errors.New("data integrity violation")
)

// ValidationError reports malformed input. It is always surfaced before any
// write happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
