package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FxRate is one captured (currency, date) -> rate-to-EUR row. EUR itself is
// implicitly 1.0 and never stored.
type FxRate struct {
	CurrencyCode string          `json:"currency_code" db:"currency_code"`
	RateToEUR    decimal.Decimal `json:"rate_to_eur" db:"rate_to_eur"`
	RateDate     time.Time       `json:"rate_date" db:"rate_date"`
	FetchedAt    time.Time       `json:"fetched_at" db:"fetched_at"`
}
