package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFxService_Rate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewFxService(db, nil)
	ctx := context.Background()
	asOf := time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC)

	t.Run("EUR is always exactly 1 with no store hit", func(t *testing.T) {
		rate, fallback, err := service.Rate(ctx, "EUR", asOf)
		require.NoError(t, err)
		assert.False(t, fallback)
		assert.True(t, rate.RateToEUR.Equal(decimal.NewFromInt(1)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exact date match", func(t *testing.T) {
		mock.ExpectQuery("SELECT currency_code, rate_to_eur, rate_date, fetched_at FROM fx_rates WHERE currency_code = \\$1 AND rate_date = \\$2").
			WithArgs("GBP", "2025-11-15").
			WillReturnRows(sqlmock.NewRows([]string{"currency_code", "rate_to_eur", "rate_date", "fetched_at"}).
				AddRow("GBP", "1.1734", asOf, asOf))

		rate, fallback, err := service.Rate(ctx, "GBP", asOf)
		require.NoError(t, err)
		assert.False(t, fallback)
		assert.Equal(t, "1.1734", rate.RateToEUR.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fallback to latest capture", func(t *testing.T) {
		later := time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)

		mock.ExpectQuery("WHERE currency_code = \\$1 AND rate_date = \\$2").
			WithArgs("USD", "2025-11-15").
			WillReturnRows(sqlmock.NewRows([]string{"currency_code", "rate_to_eur", "rate_date", "fetched_at"}))
		// Fallback ordering has no upper date bound: a later capture wins.
		mock.ExpectQuery("ORDER BY rate_date DESC, fetched_at DESC LIMIT 1").
			WithArgs("USD").
			WillReturnRows(sqlmock.NewRows([]string{"currency_code", "rate_to_eur", "rate_date", "fetched_at"}).
				AddRow("USD", "0.9311", later, later))

		rate, fallback, err := service.Rate(ctx, "USD", asOf)
		require.NoError(t, err)
		assert.True(t, fallback)
		assert.Equal(t, "0.9311", rate.RateToEUR.String())
		assert.True(t, rate.RateDate.After(asOf))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("never captured currency fails", func(t *testing.T) {
		mock.ExpectQuery("WHERE currency_code = \\$1 AND rate_date = \\$2").
			WithArgs("CHF", "2025-11-15").
			WillReturnRows(sqlmock.NewRows([]string{"currency_code", "rate_to_eur", "rate_date", "fetched_at"}))
		mock.ExpectQuery("ORDER BY rate_date DESC, fetched_at DESC LIMIT 1").
			WithArgs("CHF").
			WillReturnRows(sqlmock.NewRows([]string{"currency_code", "rate_to_eur", "rate_date", "fetched_at"}))

		_, _, err := service.Rate(ctx, "CHF", asOf)
		assert.ErrorIs(t, err, ErrRateNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFxService_RateCache(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rdb, rmock := redismock.NewClientMock()
	service := NewFxService(db, rdb)
	ctx := context.Background()
	asOf := time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC)
	fetched := time.Date(2025, 11, 15, 8, 30, 0, 0, time.UTC)

	payload, err := json.Marshal(cachedFxRate{
		Rate:      decimal.RequireFromString("1.1734"),
		FetchedAt: fetched,
	})
	require.NoError(t, err)

	t.Run("cache miss populates cache", func(t *testing.T) {
		rmock.ExpectGet("fx:GBP:2025-11-15").RedisNil()
		mock.ExpectQuery("WHERE currency_code = \\$1 AND rate_date = \\$2").
			WithArgs("GBP", "2025-11-15").
			WillReturnRows(sqlmock.NewRows([]string{"currency_code", "rate_to_eur", "rate_date", "fetched_at"}).
				AddRow("GBP", "1.1734", asOf, fetched))
		rmock.ExpectSet("fx:GBP:2025-11-15", string(payload), fxCacheTTL).SetVal("OK")

		rate, fallback, err := service.Rate(ctx, "GBP", asOf)
		require.NoError(t, err)
		assert.False(t, fallback)
		assert.Equal(t, "1.1734", rate.RateToEUR.String())
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, rmock.ExpectationsWereMet())
	})

	t.Run("cache hit skips the database and keeps fetched_at", func(t *testing.T) {
		rmock.ExpectGet("fx:GBP:2025-11-15").SetVal(string(payload))

		rate, fallback, err := service.Rate(ctx, "GBP", asOf)
		require.NoError(t, err)
		assert.False(t, fallback)
		assert.Equal(t, "1.1734", rate.RateToEUR.String())
		assert.True(t, rate.FetchedAt.Equal(fetched))
		assert.NoError(t, rmock.ExpectationsWereMet())
	})
}

func TestFxService_PutRate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewFxService(db, nil)
	ctx := context.Background()
	day := time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC)

	t.Run("captures and upserts", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO fx_rates").
			WithArgs("GBP", sqlmock.AnyArg(), "2025-11-15", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := service.PutRate(ctx, "GBP", decimal.RequireFromString("1.17"), day)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("EUR capture rejected", func(t *testing.T) {
		err := service.PutRate(ctx, "EUR", decimal.NewFromInt(1), day)
		assert.True(t, IsValidation(err))
	})

	t.Run("non-positive rate rejected", func(t *testing.T) {
		err := service.PutRate(ctx, "GBP", decimal.Zero, day)
		assert.True(t, IsValidation(err))
	})
}
