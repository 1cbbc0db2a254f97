package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementReceipt records one exit-settlement run. PostedEntryID is empty
// when the associate was already balanced and nothing was posted. FilePath
// is empty when persisting the rendered report failed; the settlement
// itself still stands.
type SettlementReceipt struct {
	AssociateID     string          `json:"associate_id"`
	AssociateName   string          `json:"associate_name"`
	Cutoff          time.Time       `json:"cutoff"`
	PostedEntryID   string          `json:"posted_entry_id,omitempty"`
	PostedEntryType EntryType       `json:"posted_entry_type,omitempty"`
	PostedAmountEUR decimal.Decimal `json:"posted_amount_eur"`
	ImbalanceBefore decimal.Decimal `json:"imbalance_before"`
	ImbalanceAfter  decimal.Decimal `json:"imbalance_after"`
	ExitPayout      decimal.Decimal `json:"exit_payout"`
	GeneratedAt     time.Time       `json:"generated_at"`
	Report          string          `json:"report"`
	FilePath        string          `json:"file_path,omitempty"`
}
