package models

import (
	"github.com/shopspring/decimal"
)

type MismatchStatus string

const (
	MismatchUnverified MismatchStatus = "unverified"
	MismatchBalanced   MismatchStatus = "balanced"
	MismatchMinorOver  MismatchStatus = "minor_over"
	MismatchMinorUnder MismatchStatus = "minor_under"
	MismatchMajorOver  MismatchStatus = "major_over"
	MismatchMajorUnder MismatchStatus = "major_under"
)

// PairBalance is the modeled ledger position for one (associate, bookmaker)
// pair, joined with the latest reported balance check when one exists.
type PairBalance struct {
	AssociateID    string
	AssociateAlias string
	BookmakerID    string
	BookmakerName  string
	ModeledEUR     decimal.Decimal
	Reported       *BalanceCheck
}

// PairStatus classifies the reported-vs-modeled difference for a pair.
// Difference is reported minus modeled and is nil while unverified.
type PairStatus struct {
	AssociateID    string           `json:"associate_id"`
	AssociateAlias string           `json:"associate_alias"`
	BookmakerID    string           `json:"bookmaker_id"`
	BookmakerName  string           `json:"bookmaker_name"`
	ModeledEUR     decimal.Decimal  `json:"modeled_eur"`
	ReportedEUR    *decimal.Decimal `json:"reported_eur,omitempty"`
	Difference     *decimal.Decimal `json:"difference,omitempty"`
	Status         MismatchStatus   `json:"status"`
	NativeCurrency string           `json:"native_currency,omitempty"`
	FxRateUsed     decimal.Decimal  `json:"fx_rate_used,omitempty"`
}

// OwedTo is one greedy allocation of an overholder's surplus to a short
// counterparty at the same bookmaker.
type OwedTo struct {
	AssociateID    string              `json:"associate_id"`
	AssociateAlias string              `json:"associate_alias"`
	AmountEUR      decimal.Decimal     `json:"amount_eur"`
	AmountNative   decimal.NullDecimal `json:"amount_native,omitempty"`
	NativeCurrency string              `json:"native_currency,omitempty"`
}

// FloatAttribution explains one overholder's surplus at a bookmaker as
// float owed to the short associates there. Residual surplus that found no
// counterparty stays unattributed.
type FloatAttribution struct {
	BookmakerName   string          `json:"bookmaker_name"`
	AssociateID     string          `json:"associate_id"`
	AssociateAlias  string          `json:"associate_alias"`
	SurplusEUR      decimal.Decimal `json:"surplus_eur"`
	OwedTo          []OwedTo        `json:"owed_to"`
	UnattributedEUR decimal.Decimal `json:"unattributed_eur"`
}

// CorrectionPrefill is a suggested BOOKMAKER_CORRECTION payload for an
// out-of-balance pair.
type CorrectionPrefill struct {
	AssociateID    string          `json:"associate_id"`
	BookmakerID    string          `json:"bookmaker_id"`
	DeltaNative    decimal.Decimal `json:"delta_native"`
	NativeCurrency string          `json:"native_currency"`
	DeltaEUR       decimal.Decimal `json:"delta_eur"`
	Note           string          `json:"note"`
}
