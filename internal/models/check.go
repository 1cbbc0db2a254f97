package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceCheck is the reported balance snapshot for one (associate,
// bookmaker) pair. Only the most recent check per pair is kept; the EUR
// equivalent is converted at check time with the rate recorded here.
type BalanceCheck struct {
	AssociateID    string          `json:"associate_id" db:"associate_id"`
	BookmakerID    string          `json:"bookmaker_id" db:"bookmaker_id"`
	BalanceNative  decimal.Decimal `json:"balance_native" db:"balance_native"`
	NativeCurrency string          `json:"native_currency" db:"native_currency"`
	BalanceEUR     decimal.Decimal `json:"balance_eur" db:"balance_eur"`
	FxRateUsed     decimal.Decimal `json:"fx_rate_used" db:"fx_rate_used"`
	CheckedAt      time.Time       `json:"checked_at" db:"checked_at"`
	Note           string          `json:"note,omitempty" db:"note"`
}
