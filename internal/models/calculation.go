package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AssociateStatus string

const (
	StatusBalanced   AssociateStatus = "balanced"
	StatusOverholder AssociateStatus = "overholder"
	StatusShort      AssociateStatus = "short"
)

// Calculation is the per-associate entitlement snapshot as of a cutoff.
//
//	NetDeposits   deposits minus withdrawals, settlement postings excluded
//	FairShare     sum of allocated surebet shares from settled bets
//	Entitlement   NetDeposits + FairShare (what the associate should hold)
//	TotalBalance  sum of all ledger movements (what they actually hold)
//	Imbalance     TotalBalance - Entitlement; positive means overholding
//	ExitPayout    -Imbalance, the amount that zeroes the associate out
//
// Every component is quantized to cents before combination, so the
// identities hold exactly with no accumulated drift.
type Calculation struct {
	AssociateID   string          `json:"associate_id"`
	AssociateName string          `json:"associate_name"`
	Cutoff        time.Time       `json:"cutoff"`
	NetDeposits   decimal.Decimal `json:"net_deposits"`
	FairShare     decimal.Decimal `json:"fair_share"`
	Entitlement   decimal.Decimal `json:"entitlement"`
	TotalBalance  decimal.Decimal `json:"total_balance"`
	Imbalance     decimal.Decimal `json:"imbalance"`
	ExitPayout    decimal.Decimal `json:"exit_payout"`
	Status        AssociateStatus `json:"status"`
}

// BookmakerBreakdownRow is the per-bookmaker slice of an associate's
// statement: current balance plus lifetime funding totals, in EUR and in
// the bookmaker's native currency.
type BookmakerBreakdownRow struct {
	BookmakerID       string          `json:"bookmaker_id"`
	BookmakerName     string          `json:"bookmaker_name"`
	NativeCurrency    string          `json:"native_currency"`
	BalanceEUR        decimal.Decimal `json:"balance_eur"`
	BalanceNative     decimal.Decimal `json:"balance_native"`
	DepositsEUR       decimal.Decimal `json:"deposits_eur"`
	DepositsNative    decimal.Decimal `json:"deposits_native"`
	WithdrawalsEUR    decimal.Decimal `json:"withdrawals_eur"`
	WithdrawalsNative decimal.Decimal `json:"withdrawals_native"`
}
