package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stakepool/treasury/internal/config"
	"github.com/stakepool/treasury/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettlementConfig() *config.SettlementConfig {
	return &config.SettlementConfig{
		BalancedThreshold:      decimal.NewFromInt(10),
		MajorMismatchThreshold: decimal.NewFromInt(50),
		Tolerance:              decimal.RequireFromString("0.01"),
		ReceiptsDir:            "./receipts",
		ModelVersion:           "nd-fs-v2",
	}
}

// expectCalculation queues the four reads behind one Calculate call.
func expectCalculation(mock sqlmock.Sqlmock, associateID, name, nd, fs, tb string) {
	mock.ExpectQuery("SELECT id, name, alias").
		WithArgs(associateID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "alias", "telegram_chat_id", "created_at"}).
			AddRow(associateID, name, name, "", time.Now()))
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount_eur\\), 0\\) FROM ledger_entries").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(nd))
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(per_surebet_share_eur\\), 0\\) FROM ledger_entries").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(fs))
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount_eur\\), 0\\) FROM ledger_entries").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(tb))
}

func TestReconciliationService_Calculate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewReconciliationService(NewLedgerService(db), testSettlementConfig())
	ctx := context.Background()
	cutoff := time.Date(2025, 11, 30, 23, 59, 59, 0, time.UTC)

	t.Run("overholding associate", func(t *testing.T) {
		// Deposits 600+200, withdrawal -50; shares +40, -20, 0; correction +400.
		expectCalculation(mock, "assoc-a", "Alice", "750.00", "20.00", "990.00")

		calc, err := service.Calculate(ctx, "assoc-a", cutoff)
		require.NoError(t, err)
		assert.Equal(t, "750.00", calc.NetDeposits.StringFixed(2))
		assert.Equal(t, "20.00", calc.FairShare.StringFixed(2))
		assert.Equal(t, "770.00", calc.Entitlement.StringFixed(2))
		assert.Equal(t, "990.00", calc.TotalBalance.StringFixed(2))
		assert.Equal(t, "220.00", calc.Imbalance.StringFixed(2))
		assert.Equal(t, "-220.00", calc.ExitPayout.StringFixed(2))
		assert.Equal(t, models.StatusOverholder, calc.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("underholding associate", func(t *testing.T) {
		// Deposit 200; share +40; stake -150 leaves a held balance of 50.
		expectCalculation(mock, "assoc-b", "Bob", "200.00", "40.00", "50.00")

		calc, err := service.Calculate(ctx, "assoc-b", cutoff)
		require.NoError(t, err)
		assert.Equal(t, "240.00", calc.Entitlement.StringFixed(2))
		assert.Equal(t, "-190.00", calc.Imbalance.StringFixed(2))
		assert.Equal(t, "190.00", calc.ExitPayout.StringFixed(2))
		assert.Equal(t, models.StatusShort, calc.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("identities hold to the cent", func(t *testing.T) {
		expectCalculation(mock, "assoc-c", "Cara", "333.33", "66.67", "400.01")

		calc, err := service.Calculate(ctx, "assoc-c", cutoff)
		require.NoError(t, err)
		assert.True(t, calc.Entitlement.Equal(calc.NetDeposits.Add(calc.FairShare)))
		assert.True(t, calc.Imbalance.Equal(calc.TotalBalance.Sub(calc.Entitlement)))
		assert.Equal(t, "0.01", calc.Imbalance.StringFixed(2))
		assert.Equal(t, models.StatusBalanced, calc.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("imbalance inside threshold is balanced", func(t *testing.T) {
		expectCalculation(mock, "assoc-d", "Dana", "100.00", "0.00", "110.00")

		calc, err := service.Calculate(ctx, "assoc-d", cutoff)
		require.NoError(t, err)
		// Exactly +10.00 is still balanced; the threshold is strict.
		assert.Equal(t, models.StatusBalanced, calc.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown associate", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name, alias").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "alias", "telegram_chat_id", "created_at"}))

		_, err := service.Calculate(ctx, "ghost", cutoff)
		assert.ErrorIs(t, err, ErrAssociateNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
