package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stakepool/treasury/internal/metrics"
	"github.com/stakepool/treasury/internal/models"
)

const fxCacheTTL = 6 * time.Hour

// FxService resolves currency -> EUR rates from the captured fx_rates
// table, with a read-through Redis cache for exact-date hits. EUR always
// resolves to exactly 1.0 without touching the store.
type FxService struct {
	db    *sql.DB
	redis *redis.Client
}

func NewFxService(db *sql.DB, redis *redis.Client) *FxService {
	return &FxService{db: db, redis: redis}
}

// Rate looks up the rate for currency as of the given date. When no exact
// (currency, date) row exists it falls back to the most recently captured
// rate for the currency and reports fallback=true; that is a warning, not
// an error. Only a currency with no captured rate at all fails.
//
// The fallback ordering is by rate_date descending with no upper bound, so
// a backdated lookup can resolve to a later-dated rate when one exists.
func (s *FxService) Rate(ctx context.Context, currency string, asOf time.Time) (models.FxRate, bool, error) {
	if currency == "EUR" {
		return models.FxRate{
			CurrencyCode: "EUR",
			RateToEUR:    decimal.NewFromInt(1),
			RateDate:     asOf.UTC(),
		}, false, nil
	}

	day := asOf.UTC().Format("2006-01-02")

	if cached, ok := s.cacheGet(ctx, currency, day); ok {
		return cached, false, nil
	}

	var rate models.FxRate
	err := s.db.QueryRowContext(ctx,
		`SELECT currency_code, rate_to_eur, rate_date, fetched_at FROM fx_rates WHERE currency_code = $1 AND rate_date = $2`,
		currency, day,
	).Scan(&rate.CurrencyCode, &rate.RateToEUR, &rate.RateDate, &rate.FetchedAt)
	if err == nil {
		s.cacheSet(ctx, currency, day, rate)
		return rate, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.FxRate{}, false, fmt.Errorf("fx rate lookup failed: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT currency_code, rate_to_eur, rate_date, fetched_at FROM fx_rates WHERE currency_code = $1 ORDER BY rate_date DESC, fetched_at DESC LIMIT 1`,
		currency,
	).Scan(&rate.CurrencyCode, &rate.RateToEUR, &rate.RateDate, &rate.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FxRate{}, false, fmt.Errorf("%w: %s", ErrRateNotFound, currency)
	}
	if err != nil {
		return models.FxRate{}, false, fmt.Errorf("fx rate fallback lookup failed: %w", err)
	}

	log.Printf("[FX] No rate for %s on %s, falling back to %s capture", currency, day, rate.RateDate.Format("2006-01-02"))
	metrics.FxFallbacks.Inc()
	return rate, true, nil
}

// ToEUR converts a native amount at the given rate, quantized to cents.
func (s *FxService) ToEUR(amount decimal.Decimal, currency string, rate decimal.Decimal) decimal.Decimal {
	return models.ToEUR(amount, currency, rate)
}

// PutRate captures a rate row for (currency, date), replacing an earlier
// capture for the same day. EUR is implicit and never stored.
func (s *FxService) PutRate(ctx context.Context, currency string, rate decimal.Decimal, date time.Time) error {
	if currency == "EUR" {
		return NewValidationError("currency", "EUR rate is implicit and cannot be captured")
	}
	if len(currency) != 3 {
		return NewValidationError("currency", "must be a 3-letter code")
	}
	if rate.Sign() <= 0 {
		return NewValidationError("rate", "must be positive")
	}

	day := date.UTC().Format("2006-01-02")
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fx_rates (currency_code, rate_to_eur, rate_date, fetched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (currency_code, rate_date) DO UPDATE SET rate_to_eur = EXCLUDED.rate_to_eur, fetched_at = EXCLUDED.fetched_at`,
		currency, rate, day, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("fx rate capture failed: %w", err)
	}

	s.cacheInvalidate(ctx, currency, day)
	return nil
}

func (s *FxService) cacheKey(currency, day string) string {
	return fmt.Sprintf("fx:%s:%s", currency, day)
}

// cachedFxRate is the cache value for one exact-date hit. The capture
// timestamp rides along so a cache hit reports the same FetchedAt as the
// database row it stands in for.
type cachedFxRate struct {
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt time.Time       `json:"fetched_at"`
}

func (s *FxService) cacheGet(ctx context.Context, currency, day string) (models.FxRate, bool) {
	if s.redis == nil {
		return models.FxRate{}, false
	}
	val, err := s.redis.Get(ctx, s.cacheKey(currency, day)).Result()
	if err != nil {
		return models.FxRate{}, false
	}
	var cached cachedFxRate
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		return models.FxRate{}, false
	}
	rateDate, err := time.Parse("2006-01-02", day)
	if err != nil {
		return models.FxRate{}, false
	}
	return models.FxRate{
		CurrencyCode: currency,
		RateToEUR:    cached.Rate,
		RateDate:     rateDate,
		FetchedAt:    cached.FetchedAt,
	}, true
}

func (s *FxService) cacheSet(ctx context.Context, currency, day string, rate models.FxRate) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(cachedFxRate{Rate: rate.RateToEUR, FetchedAt: rate.FetchedAt})
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, s.cacheKey(currency, day), string(payload), fxCacheTTL).Err(); err != nil {
		log.Printf("[FX] Cache write failed for %s/%s: %v", currency, day, err)
	}
}

func (s *FxService) cacheInvalidate(ctx context.Context, currency, day string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, s.cacheKey(currency, day)).Err(); err != nil {
		log.Printf("[FX] Cache invalidation failed for %s/%s: %v", currency, day, err)
	}
}
