package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stakepool/treasury/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pairStatus(associate, bookmaker, diff string) models.PairStatus {
	d := decimal.RequireFromString(diff)
	return models.PairStatus{
		AssociateID:    associate,
		AssociateAlias: associate,
		BookmakerID:    "bm-" + bookmaker,
		BookmakerName:  bookmaker,
		Difference:     &d,
	}
}

func TestAttributeGroup(t *testing.T) {
	t.Run("surplus flows to the short counterparty", func(t *testing.T) {
		// A modeled 500 / reported 600, B modeled 400 / reported 350.
		rows := []models.PairStatus{
			pairStatus("A", "betfair", "100.00"),
			pairStatus("B", "betfair", "-50.00"),
		}

		attributions := attributeGroup(rows)
		require.Len(t, attributions, 1)
		assert.Equal(t, "A", attributions[0].AssociateID)
		require.Len(t, attributions[0].OwedTo, 1)
		assert.Equal(t, "B", attributions[0].OwedTo[0].AssociateID)
		assert.Equal(t, "50.00", attributions[0].OwedTo[0].AmountEUR.StringFixed(2))
		assert.Equal(t, "50.00", attributions[0].UnattributedEUR.StringFixed(2))
	})

	t.Run("greedy order across several shorts", func(t *testing.T) {
		rows := []models.PairStatus{
			pairStatus("A", "pinnacle", "80.00"),
			pairStatus("B", "pinnacle", "-30.00"),
			pairStatus("C", "pinnacle", "-70.00"),
			pairStatus("D", "pinnacle", "40.00"),
		}

		attributions := attributeGroup(rows)
		require.Len(t, attributions, 2)

		// A consumes B fully then 50 of C.
		require.Len(t, attributions[0].OwedTo, 2)
		assert.Equal(t, "B", attributions[0].OwedTo[0].AssociateID)
		assert.Equal(t, "30.00", attributions[0].OwedTo[0].AmountEUR.StringFixed(2))
		assert.Equal(t, "C", attributions[0].OwedTo[1].AssociateID)
		assert.Equal(t, "50.00", attributions[0].OwedTo[1].AmountEUR.StringFixed(2))
		assert.Equal(t, "0.00", attributions[0].UnattributedEUR.StringFixed(2))

		// D gets what is left of C, then runs out of counterparties.
		require.Len(t, attributions[1].OwedTo, 1)
		assert.Equal(t, "C", attributions[1].OwedTo[0].AssociateID)
		assert.Equal(t, "20.00", attributions[1].OwedTo[0].AmountEUR.StringFixed(2))
		assert.Equal(t, "20.00", attributions[1].UnattributedEUR.StringFixed(2))
	})

	t.Run("no allocation exceeds either pool", func(t *testing.T) {
		rows := []models.PairStatus{
			pairStatus("A", "bet365", "33.34"),
			pairStatus("B", "bet365", "-10.01"),
			pairStatus("C", "bet365", "-5.99"),
		}

		attributions := attributeGroup(rows)
		require.Len(t, attributions, 1)

		totalPerShort := map[string]decimal.Decimal{}
		for _, owed := range attributions[0].OwedTo {
			totalPerShort[owed.AssociateID] = totalPerShort[owed.AssociateID].Add(owed.AmountEUR)
		}
		assert.True(t, totalPerShort["B"].LessThanOrEqual(decimal.RequireFromString("10.01")))
		assert.True(t, totalPerShort["C"].LessThanOrEqual(decimal.RequireFromString("5.99")))
		assert.Equal(t, "17.34", attributions[0].UnattributedEUR.StringFixed(2))
	})

	t.Run("one-sided groups produce nothing", func(t *testing.T) {
		assert.Nil(t, attributeGroup([]models.PairStatus{
			pairStatus("A", "unibet", "100.00"),
			pairStatus("B", "unibet", "40.00"),
		}))
		assert.Nil(t, attributeGroup([]models.PairStatus{
			pairStatus("A", "unibet", "-100.00"),
		}))
	})

	t.Run("native equivalent derived from the overholder's check", func(t *testing.T) {
		d := decimal.RequireFromString("100.00")
		over := models.PairStatus{
			AssociateID: "A", AssociateAlias: "A", BookmakerName: "betfair",
			Difference: &d, NativeCurrency: "GBP", FxRateUsed: decimal.RequireFromString("1.25"),
		}
		rows := []models.PairStatus{over, pairStatus("B", "betfair", "-50.00")}

		attributions := attributeGroup(rows)
		require.Len(t, attributions, 1)
		owed := attributions[0].OwedTo[0]
		require.True(t, owed.AmountNative.Valid)
		assert.Equal(t, "40.00", owed.AmountNative.Decimal.StringFixed(2)) // 50 / 1.25
		assert.Equal(t, "GBP", owed.NativeCurrency)
	})
}

func TestAttributionService_ClassifyPair(t *testing.T) {
	service := NewAttributionService(nil, nil, nil, testSettlementConfig())

	check := func(modeled, reported string) models.PairStatus {
		return service.classifyPair(models.PairBalance{
			AssociateID: "A", BookmakerID: "bm-1", BookmakerName: "betfair",
			ModeledEUR: decimal.RequireFromString(modeled),
			Reported: &models.BalanceCheck{
				BalanceEUR:     decimal.RequireFromString(reported),
				NativeCurrency: "EUR",
				FxRateUsed:     decimal.NewFromInt(1),
			},
		})
	}

	t.Run("unverified without a check", func(t *testing.T) {
		status := service.classifyPair(models.PairBalance{ModeledEUR: decimal.NewFromInt(100)})
		assert.Equal(t, models.MismatchUnverified, status.Status)
		assert.Nil(t, status.Difference)
	})

	t.Run("threshold bands", func(t *testing.T) {
		assert.Equal(t, models.MismatchBalanced, check("500.00", "509.99").Status)
		assert.Equal(t, models.MismatchMinorOver, check("500.00", "510.00").Status)
		assert.Equal(t, models.MismatchMinorUnder, check("500.00", "460.01").Status)
		assert.Equal(t, models.MismatchMajorOver, check("500.00", "550.00").Status)
		assert.Equal(t, models.MismatchMajorUnder, check("500.00", "450.00").Status)
	})
}

func TestAttributionService_UpdateReportedBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledger := NewLedgerService(db)
	fx := NewFxService(db, nil)
	service := NewAttributionService(db, ledger, fx, testSettlementConfig())
	ctx := context.Background()

	t.Run("resolves FX at submission and upserts", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM associate_bookmakers").
			WithArgs("assoc-1", "bm-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery("WHERE currency_code = \\$1 AND rate_date = \\$2").
			WithArgs("GBP", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"currency_code", "rate_to_eur", "rate_date", "fetched_at"}).
				AddRow("GBP", "1.20", time.Now(), time.Now()))
		mock.ExpectExec("INSERT INTO balance_checks").
			WillReturnResult(sqlmock.NewResult(1, 1))

		check, err := service.UpdateReportedBalance(ctx, UpdateBalanceInput{
			AssociateID:   "assoc-1",
			BookmakerID:   "bm-1",
			BalanceNative: decimal.NewFromInt(500),
			Currency:      "GBP",
		})
		require.NoError(t, err)
		assert.Equal(t, "600.00", check.BalanceEUR.StringFixed(2))
		assert.Equal(t, "1.2", check.FxRateUsed.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unlinked bookmaker rejected before any write", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM associate_bookmakers").
			WithArgs("assoc-1", "bm-9").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := service.UpdateReportedBalance(ctx, UpdateBalanceInput{
			AssociateID:   "assoc-1",
			BookmakerID:   "bm-9",
			BalanceNative: decimal.NewFromInt(500),
			Currency:      "GBP",
		})
		assert.True(t, IsValidation(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("malformed input rejected", func(t *testing.T) {
		_, err := service.UpdateReportedBalance(ctx, UpdateBalanceInput{
			AssociateID:   "assoc-1",
			BookmakerID:   "bm-1",
			BalanceNative: decimal.NewFromInt(1),
			Currency:      "POUNDS",
		})
		assert.True(t, IsValidation(err))
	})
}
