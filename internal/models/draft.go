package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DraftStatus string

const (
	DraftStaged   DraftStatus = "STAGED"
	DraftAccepted DraftStatus = "ACCEPTED"
	DraftRejected DraftStatus = "REJECTED"
)

// Terminal reports whether the draft has been consumed. Terminal drafts are
// kept as rows so a second acceptance attempt can be told apart from an
// unknown draft id.
func (s DraftStatus) Terminal() bool {
	return s == DraftAccepted || s == DraftRejected
}

// FundingDraft is a staged, not-yet-posted funding intent. The only legal
// transitions are STAGED -> ACCEPTED (producing exactly one ledger entry)
// and STAGED -> REJECTED; both are enforced by a compare-and-swap at the
// storage layer, never in process memory.
type FundingDraft struct {
	ID            string          `json:"id" db:"id"`
	AssociateID   string          `json:"associate_id" db:"associate_id"`
	BookmakerID   string          `json:"bookmaker_id" db:"bookmaker_id"`
	EventType     EntryType       `json:"event_type" db:"event_type"`
	AmountNative  decimal.Decimal `json:"amount_native" db:"amount_native"`
	Currency      string          `json:"currency" db:"currency"`
	Note          string          `json:"note,omitempty" db:"note"`
	Status        DraftStatus     `json:"status" db:"status"`
	LedgerEntryID string          `json:"ledger_entry_id,omitempty" db:"ledger_entry_id"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	ConsumedAt    *time.Time      `json:"consumed_at,omitempty" db:"consumed_at"`
	ConsumedBy    string          `json:"consumed_by,omitempty" db:"consumed_by"`
}
