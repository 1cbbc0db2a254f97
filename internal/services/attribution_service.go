package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stakepool/treasury/internal/config"
	"github.com/stakepool/treasury/internal/models"
)

// AttributionService compares modeled per-(associate, bookmaker) positions
// against reported balance checks and explains cross-associate float at
// shared bookmakers. All reads are lock-free; UpdateReportedBalance is the
// only writer and touches balance_checks alone.
type AttributionService struct {
	db        *sql.DB
	ledger    *LedgerService
	fx        *FxService
	config    *config.SettlementConfig
	validator *ValidationHelper
}

func NewAttributionService(db *sql.DB, ledger *LedgerService, fx *FxService, cfg *config.SettlementConfig) *AttributionService {
	if cfg == nil {
		cfg = config.LoadSettlementConfig()
	}
	return &AttributionService{
		db:        db,
		ledger:    ledger,
		fx:        fx,
		config:    cfg,
		validator: NewValidationHelper(),
	}
}

// PairStatuses classifies every pair with ledger activity. Pairs without a
// balance check stay "unverified" with no difference.
func (s *AttributionService) PairStatuses(ctx context.Context) ([]models.PairStatus, error) {
	pairs, err := s.ledger.PairBalances(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]models.PairStatus, 0, len(pairs))
	for _, p := range pairs {
		statuses = append(statuses, s.classifyPair(p))
	}
	return statuses, nil
}

func (s *AttributionService) classifyPair(p models.PairBalance) models.PairStatus {
	status := models.PairStatus{
		AssociateID:    p.AssociateID,
		AssociateAlias: p.AssociateAlias,
		BookmakerID:    p.BookmakerID,
		BookmakerName:  p.BookmakerName,
		ModeledEUR:     p.ModeledEUR,
		Status:         models.MismatchUnverified,
	}
	if p.Reported == nil {
		return status
	}

	reported := p.Reported.BalanceEUR
	diff := models.Quantize(reported.Sub(p.ModeledEUR))
	status.ReportedEUR = &reported
	status.Difference = &diff
	status.NativeCurrency = p.Reported.NativeCurrency
	status.FxRateUsed = p.Reported.FxRateUsed

	abs := diff.Abs()
	switch {
	case abs.LessThan(s.config.BalancedThreshold):
		status.Status = models.MismatchBalanced
	case abs.LessThan(s.config.MajorMismatchThreshold):
		if diff.Sign() > 0 {
			status.Status = models.MismatchMinorOver
		} else {
			status.Status = models.MismatchMinorUnder
		}
	default:
		if diff.Sign() > 0 {
			status.Status = models.MismatchMajorOver
		} else {
			status.Status = models.MismatchMajorUnder
		}
	}
	return status
}

// AttributeFloat explains which short associate's deficit corresponds to
// which overholder's surplus at each shared bookmaker. Grouping is by
// case-insensitive bookmaker name across associates. Within a group the
// allocation is a deterministic greedy pass: overholders in alias-sorted
// order each consume from the remaining shortfalls in alias-sorted order,
// min(surplus, shortfall) at a time. Residuals stay unattributed.
func (s *AttributionService) AttributeFloat(ctx context.Context) ([]models.FloatAttribution, error) {
	statuses, err := s.PairStatuses(ctx)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]models.PairStatus)
	var order []string
	for _, st := range statuses {
		if st.Difference == nil {
			continue
		}
		key := strings.ToLower(st.BookmakerName)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], st)
	}

	var attributions []models.FloatAttribution
	for _, key := range order {
		attributions = append(attributions, attributeGroup(groups[key])...)
	}
	return attributions, nil
}

// attributeGroup runs the greedy bipartite allocation for one bookmaker
// group. Rows keep the alias-sorted order they arrived in.
func attributeGroup(rows []models.PairStatus) []models.FloatAttribution {
	type pool struct {
		row       models.PairStatus
		remaining decimal.Decimal
	}

	var overholders, shorts []*pool
	for _, row := range rows {
		switch row.Difference.Sign() {
		case 1:
			overholders = append(overholders, &pool{row: row, remaining: *row.Difference})
		case -1:
			shorts = append(shorts, &pool{row: row, remaining: row.Difference.Abs()})
		}
	}
	if len(overholders) == 0 || len(shorts) == 0 {
		return nil
	}

	var attributions []models.FloatAttribution
	for _, over := range overholders {
		attribution := models.FloatAttribution{
			BookmakerName:  over.row.BookmakerName,
			AssociateID:    over.row.AssociateID,
			AssociateAlias: over.row.AssociateAlias,
			SurplusEUR:     *over.row.Difference,
		}

		for _, short := range shorts {
			if over.remaining.Sign() <= 0 {
				break
			}
			if short.remaining.Sign() <= 0 {
				continue
			}
			alloc := models.Quantize(decimal.Min(over.remaining, short.remaining))
			if alloc.Sign() <= 0 {
				continue
			}
			owed := models.OwedTo{
				AssociateID:    short.row.AssociateID,
				AssociateAlias: short.row.AssociateAlias,
				AmountEUR:      alloc,
			}
			if over.row.NativeCurrency != "" && over.row.FxRateUsed.Sign() > 0 {
				owed.AmountNative = decimal.NewNullDecimal(models.Quantize(alloc.Div(over.row.FxRateUsed)))
				owed.NativeCurrency = over.row.NativeCurrency
			}
			attribution.OwedTo = append(attribution.OwedTo, owed)
			over.remaining = over.remaining.Sub(alloc)
			short.remaining = short.remaining.Sub(alloc)
		}

		attribution.UnattributedEUR = models.Quantize(over.remaining)
		if len(attribution.OwedTo) > 0 {
			attributions = append(attributions, attribution)
		}
	}
	return attributions
}

// UpdateBalanceInput is a reported balance submission for one pair.
type UpdateBalanceInput struct {
	AssociateID   string          `json:"associateId" validate:"required"`
	BookmakerID   string          `json:"bookmakerId" validate:"required"`
	BalanceNative decimal.Decimal `json:"balanceNative"`
	Currency      string          `json:"currency" validate:"required,len=3,uppercase"`
	Note          string          `json:"note,omitempty" validate:"max=200"`
}

// UpdateReportedBalance resolves the FX rate at submission time, converts
// the reported native balance to EUR and upserts the pair's check row.
func (s *AttributionService) UpdateReportedBalance(ctx context.Context, input UpdateBalanceInput) (*models.BalanceCheck, error) {
	if err := s.validator.ValidateStruct(&input); err != nil {
		return nil, fmt.Errorf("%w", &ValidationError{Message: err.Error()})
	}

	linked, err := s.ledger.AssociateLinked(ctx, input.AssociateID, input.BookmakerID)
	if err != nil {
		return nil, err
	}
	if !linked {
		return nil, NewValidationError("bookmakerId", "bookmaker %s is not linked to associate %s", input.BookmakerID, input.AssociateID)
	}

	now := time.Now().UTC()
	rate, fallback, err := s.fx.Rate(ctx, input.Currency, now)
	if err != nil {
		return nil, err
	}
	if fallback {
		log.Printf("[BALANCE] Using fallback FX rate for %s balance check (%s/%s)",
			input.Currency, input.AssociateID, input.BookmakerID)
	}

	check := &models.BalanceCheck{
		AssociateID:    input.AssociateID,
		BookmakerID:    input.BookmakerID,
		BalanceNative:  models.Quantize(input.BalanceNative),
		NativeCurrency: input.Currency,
		BalanceEUR:     models.ToEUR(input.BalanceNative, input.Currency, rate.RateToEUR),
		FxRateUsed:     rate.RateToEUR,
		CheckedAt:      now,
		Note:           input.Note,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO balance_checks (associate_id, bookmaker_id, balance_native, native_currency, balance_eur, fx_rate_used, checked_at, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (associate_id, bookmaker_id) DO UPDATE SET
			balance_native = EXCLUDED.balance_native,
			native_currency = EXCLUDED.native_currency,
			balance_eur = EXCLUDED.balance_eur,
			fx_rate_used = EXCLUDED.fx_rate_used,
			checked_at = EXCLUDED.checked_at,
			note = EXCLUDED.note`,
		check.AssociateID, check.BookmakerID, check.BalanceNative, check.NativeCurrency,
		check.BalanceEUR, check.FxRateUsed, check.CheckedAt, nullString(check.Note))
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code.Class() == "23" {
			return nil, fmt.Errorf("%w: %v", ErrDataIntegrity, err)
		}
		return nil, fmt.Errorf("balance check upsert failed: %w", err)
	}
	return check, nil
}

// CorrectionPrefill suggests a BOOKMAKER_CORRECTION payload for the pair,
// or nil when the pair is exactly balanced or unverified.
func (s *AttributionService) CorrectionPrefill(ctx context.Context, associateID, bookmakerID string) (*models.CorrectionPrefill, error) {
	pairs, err := s.ledger.PairBalances(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range pairs {
		if p.AssociateID != associateID || p.BookmakerID != bookmakerID {
			continue
		}
		status := s.classifyPair(p)
		if status.Difference == nil || status.Difference.IsZero() {
			return nil, nil
		}

		prefill := &models.CorrectionPrefill{
			AssociateID: associateID,
			BookmakerID: bookmakerID,
			DeltaEUR:    *status.Difference,
			Note: fmt.Sprintf("Correction to match reported balance at %s (modeled %s EUR, reported %s EUR)",
				p.BookmakerName, status.ModeledEUR, *status.ReportedEUR),
		}
		if status.NativeCurrency != "" && status.FxRateUsed.Sign() > 0 {
			prefill.NativeCurrency = status.NativeCurrency
			prefill.DeltaNative = models.Quantize(status.Difference.Div(status.FxRateUsed))
		} else {
			prefill.NativeCurrency = "EUR"
			prefill.DeltaNative = *status.Difference
		}
		return prefill, nil
	}
	return nil, fmt.Errorf("%w: %s/%s has no ledger activity", ErrBookmakerNotFound, associateID, bookmakerID)
}
