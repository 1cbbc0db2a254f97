package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLedgerEntry(t *testing.T) {
	t.Run("amount_eur fixed from native and snapshot", func(t *testing.T) {
		rate := decimal.RequireFromString("1.0875")
		entry, err := NewLedgerEntry(EntryDeposit, "assoc-1", "bm-1",
			decimal.RequireFromString("100.00"), "GBP", rate, time.Time{}, "tester", "")
		require.NoError(t, err)

		// 100.00 * 1.0875 = 108.75
		assert.True(t, entry.AmountEUR.Equal(decimal.RequireFromString("108.75")), "got %s", entry.AmountEUR)
		assert.True(t, entry.FxRateSnapshot.Equal(rate))
		assert.False(t, entry.CreatedAt.IsZero())
	})

	t.Run("sub-cent native quantized before conversion", func(t *testing.T) {
		entry, err := NewLedgerEntry(EntryDeposit, "assoc-1", "bm-1",
			decimal.RequireFromString("10.004"), "GBP", decimal.RequireFromString("1.1734"), time.Time{}, "tester", "")
		require.NoError(t, err)

		// 10.004 quantizes to 10.00 first; 10.00 * 1.1734 = 11.734 -> 11.73.
		assert.Equal(t, "10.00", entry.AmountNative.StringFixed(2))
		assert.Equal(t, "11.73", entry.AmountEUR.StringFixed(2))
		// The stored pair satisfies the write-time consistency check.
		assert.True(t, entry.AmountEUR.Equal(ToEUR(entry.AmountNative, entry.NativeCurrency, entry.FxRateSnapshot)))
	})

	t.Run("half-up rounding at the cent", func(t *testing.T) {
		entry, err := NewLedgerEntry(EntryDeposit, "assoc-1", "",
			decimal.RequireFromString("10.01"), "USD", decimal.RequireFromString("0.925"), time.Time{}, "tester", "")
		require.NoError(t, err)

		// 10.01 * 0.925 = 9.25925 -> 9.26
		assert.Equal(t, "9.26", entry.AmountEUR.StringFixed(2))
	})

	t.Run("EUR passes through at rate 1", func(t *testing.T) {
		entry, err := NewLedgerEntry(EntryWithdrawal, "assoc-1", "bm-1",
			decimal.RequireFromString("-50"), "EUR", decimal.NewFromInt(1), time.Time{}, "tester", "")
		require.NoError(t, err)
		assert.Equal(t, "-50.00", entry.AmountEUR.StringFixed(2))
	})

	t.Run("EUR with non-unit rate rejected", func(t *testing.T) {
		_, err := NewLedgerEntry(EntryDeposit, "assoc-1", "",
			decimal.NewFromInt(10), "EUR", decimal.RequireFromString("1.1"), time.Time{}, "tester", "")
		assert.Error(t, err)
	})

	t.Run("backdated created_at preserved", func(t *testing.T) {
		cutoff := time.Date(2025, 11, 30, 23, 59, 59, 0, time.UTC)
		entry, err := NewLedgerEntry(EntryWithdrawal, "assoc-1", "",
			decimal.NewFromInt(-220), "EUR", decimal.NewFromInt(1), cutoff, "settlement-engine", SettlementNotePrefix+" exit")
		require.NoError(t, err)
		assert.True(t, entry.CreatedAt.Equal(cutoff))
		assert.True(t, entry.IsSettlementPosting())
	})

	t.Run("invalid inputs rejected", func(t *testing.T) {
		_, err := NewLedgerEntry("TRANSFER", "assoc-1", "", decimal.NewFromInt(1), "EUR", decimal.NewFromInt(1), time.Time{}, "t", "")
		assert.Error(t, err)

		_, err = NewLedgerEntry(EntryDeposit, "", "", decimal.NewFromInt(1), "EUR", decimal.NewFromInt(1), time.Time{}, "t", "")
		assert.Error(t, err)

		_, err = NewLedgerEntry(EntryDeposit, "assoc-1", "", decimal.NewFromInt(1), "EURO", decimal.NewFromInt(1), time.Time{}, "t", "")
		assert.Error(t, err)

		_, err = NewLedgerEntry(EntryDeposit, "assoc-1", "", decimal.NewFromInt(1), "USD", decimal.Zero, time.Time{}, "t", "")
		assert.Error(t, err)
	})
}

func TestAttachBetResult(t *testing.T) {
	newBetResult := func(t *testing.T) *LedgerEntry {
		t.Helper()
		entry, err := NewLedgerEntry(EntryBetResult, "assoc-1", "bm-1",
			decimal.RequireFromString("120.00"), "EUR", decimal.NewFromInt(1), time.Time{}, "tester", "")
		require.NoError(t, err)
		return entry
	}

	t.Run("populates the settlement columns", func(t *testing.T) {
		entry := newBetResult(t)
		principal := decimal.RequireFromString("100.00")
		share := decimal.RequireFromString("20.004")

		err := entry.AttachBetResult(BetResultDetails{
			SettlementState:      SettlementWon,
			PrincipalReturnedEUR: &principal,
			PerSurebetShareEUR:   &share,
			SurebetID:            "sb-1",
			BetID:                "bet-1",
			SettlementBatchID:    "batch-1",
		})
		require.NoError(t, err)
		assert.Equal(t, SettlementWon, entry.SettlementState)
		require.True(t, entry.PerSurebetShareEUR.Valid)
		assert.Equal(t, "20.00", entry.PerSurebetShareEUR.Decimal.StringFixed(2))
		require.True(t, entry.PrincipalReturnedEUR.Valid)
		assert.Equal(t, "100.00", entry.PrincipalReturnedEUR.Decimal.StringFixed(2))
		assert.Equal(t, "sb-1", entry.SurebetID)
	})

	t.Run("rejected on non-result entries", func(t *testing.T) {
		entry, err := NewLedgerEntry(EntryDeposit, "assoc-1", "bm-1",
			decimal.NewFromInt(100), "EUR", decimal.NewFromInt(1), time.Time{}, "tester", "")
		require.NoError(t, err)

		share := decimal.NewFromInt(20)
		err = entry.AttachBetResult(BetResultDetails{PerSurebetShareEUR: &share})
		assert.Error(t, err)
		assert.False(t, entry.PerSurebetShareEUR.Valid)
	})

	t.Run("invalid settlement state rejected", func(t *testing.T) {
		entry := newBetResult(t)
		err := entry.AttachBetResult(BetResultDetails{SettlementState: "PUSHED"})
		assert.Error(t, err)
	})
}

func TestToEUR(t *testing.T) {
	t.Run("EUR requantized only", func(t *testing.T) {
		got := ToEUR(decimal.RequireFromString("10.005"), "EUR", decimal.NewFromInt(1))
		assert.Equal(t, "10.01", got.StringFixed(2))
	})

	t.Run("native converted and quantized", func(t *testing.T) {
		got := ToEUR(decimal.NewFromInt(200), "GBP", decimal.RequireFromString("1.17345"))
		assert.Equal(t, "234.69", got.StringFixed(2))
	})
}
