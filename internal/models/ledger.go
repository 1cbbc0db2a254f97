package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryDeposit    EntryType = "DEPOSIT"
	EntryWithdrawal EntryType = "WITHDRAWAL"
	EntryBetStake   EntryType = "BET_STAKE"
	EntryBetResult  EntryType = "BET_RESULT"
	EntryCorrection EntryType = "BOOKMAKER_CORRECTION"
)

func (t EntryType) Valid() bool {
	switch t {
	case EntryDeposit, EntryWithdrawal, EntryBetStake, EntryBetResult, EntryCorrection:
		return true
	}
	return false
}

type SettlementState string

const (
	SettlementWon  SettlementState = "WON"
	SettlementLost SettlementState = "LOST"
	SettlementVoid SettlementState = "VOID"
)

// SettlementNotePrefix tags ledger entries posted by the exit-settlement
// engine. Entries carrying it are excluded from net-deposit accounting so
// a settlement payout is never counted as fresh funding.
const SettlementNotePrefix = "[exit-settlement]"

// LedgerEntry is immutable once created. AmountEUR is fixed at write time
// from AmountNative and FxRateSnapshot and is never recomputed, even if
// the FX history changes afterwards.
type LedgerEntry struct {
	ID                   string              `json:"id" db:"id"`
	Type                 EntryType           `json:"type" db:"entry_type"`
	AssociateID          string              `json:"associate_id" db:"associate_id"`
	BookmakerID          string              `json:"bookmaker_id,omitempty" db:"bookmaker_id"`
	AmountNative         decimal.Decimal     `json:"amount_native" db:"amount_native"`
	NativeCurrency       string              `json:"native_currency" db:"native_currency"`
	FxRateSnapshot       decimal.Decimal     `json:"fx_rate_snapshot" db:"fx_rate_snapshot"`
	AmountEUR            decimal.Decimal     `json:"amount_eur" db:"amount_eur"`
	SettlementState      SettlementState     `json:"settlement_state,omitempty" db:"settlement_state"`
	PrincipalReturnedEUR decimal.NullDecimal `json:"principal_returned_eur,omitempty" db:"principal_returned_eur"`
	PerSurebetShareEUR   decimal.NullDecimal `json:"per_surebet_share_eur,omitempty" db:"per_surebet_share_eur"`
	SurebetID            string              `json:"surebet_id,omitempty" db:"surebet_id"`
	BetID                string              `json:"bet_id,omitempty" db:"bet_id"`
	SettlementBatchID    string              `json:"settlement_batch_id,omitempty" db:"settlement_batch_id"`
	CreatedAt            time.Time           `json:"created_at" db:"created_at"`
	CreatedBy            string              `json:"created_by" db:"created_by"`
	Note                 string              `json:"note,omitempty" db:"note"`
}

// NewLedgerEntry builds a ledger entry, fixing AmountEUR from the native
// amount and the FX snapshot. CreatedAt may be supplied to backdate a
// settlement posting; the zero value means "now".
func NewLedgerEntry(entryType EntryType, associateID, bookmakerID string,
	amountNative decimal.Decimal, currency string, fxRate decimal.Decimal,
	createdAt time.Time, createdBy, note string) (*LedgerEntry, error) {

	if !entryType.Valid() {
		return nil, fmt.Errorf("invalid entry type %q", entryType)
	}
	if associateID == "" {
		return nil, fmt.Errorf("associate id required")
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("invalid currency code %q", currency)
	}
	if currency == "EUR" && !fxRate.Equal(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("EUR entries must carry rate 1, got %s", fxRate)
	}
	if fxRate.Sign() <= 0 {
		return nil, fmt.Errorf("fx rate must be positive, got %s", fxRate)
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	// The native amount is quantized first and the EUR amount derived from
	// the quantized value, so the stored pair always satisfies
	// amount_eur == round(amount_native * fx_rate_snapshot, 2).
	amountNative = Quantize(amountNative)

	return &LedgerEntry{
		Type:           entryType,
		AssociateID:    associateID,
		BookmakerID:    bookmakerID,
		AmountNative:   amountNative,
		NativeCurrency: currency,
		FxRateSnapshot: fxRate,
		AmountEUR:      ToEUR(amountNative, currency, fxRate),
		CreatedAt:      createdAt.UTC(),
		CreatedBy:      createdBy,
		Note:           note,
	}, nil
}

// BetResultDetails carries the settlement columns of a BET_RESULT entry:
// how the bet resolved, how much principal came back, and this associate's
// allocated cut of the surebet profit.
type BetResultDetails struct {
	SettlementState      SettlementState
	PrincipalReturnedEUR *decimal.Decimal
	PerSurebetShareEUR   *decimal.Decimal
	SurebetID            string
	BetID                string
	SettlementBatchID    string
}

// AttachBetResult sets the BET_RESULT-only columns on the entry. Carrying
// any of them on another entry type is rejected.
func (e *LedgerEntry) AttachBetResult(d BetResultDetails) error {
	if e.Type != EntryBetResult {
		return fmt.Errorf("settlement details only apply to %s entries, not %s", EntryBetResult, e.Type)
	}
	switch d.SettlementState {
	case "", SettlementWon, SettlementLost, SettlementVoid:
	default:
		return fmt.Errorf("invalid settlement state %q", d.SettlementState)
	}

	e.SettlementState = d.SettlementState
	if d.PrincipalReturnedEUR != nil {
		e.PrincipalReturnedEUR = decimal.NewNullDecimal(Quantize(*d.PrincipalReturnedEUR))
	}
	if d.PerSurebetShareEUR != nil {
		e.PerSurebetShareEUR = decimal.NewNullDecimal(Quantize(*d.PerSurebetShareEUR))
	}
	e.SurebetID = d.SurebetID
	e.BetID = d.BetID
	e.SettlementBatchID = d.SettlementBatchID
	return nil
}

// IsSettlementPosting reports whether the entry was posted by the
// exit-settlement engine.
func (e *LedgerEntry) IsSettlementPosting() bool {
	return len(e.Note) >= len(SettlementNotePrefix) && e.Note[:len(SettlementNotePrefix)] == SettlementNotePrefix
}
