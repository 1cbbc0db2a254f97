package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stakepool/treasury/internal/metrics"
	"github.com/stakepool/treasury/internal/models"
)

// LedgerService owns the append-only ledger_entries table and the
// aggregation primitives the read-side services are built on. Entries are
// never updated or deleted.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

const ledgerInsert = `
	INSERT INTO ledger_entries (
		id, entry_type, associate_id, bookmaker_id, amount_native, native_currency,
		fx_rate_snapshot, amount_eur, settlement_state, principal_returned_eur,
		per_surebet_share_eur, surebet_id, bet_id, settlement_batch_id,
		created_at, created_by, note
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

// AppendEntry posts a single entry in its own transaction and returns the
// new entry id.
func (s *LedgerService) AppendEntry(ctx context.Context, entry *models.LedgerEntry) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("ledger tx begin failed: %w", err)
	}
	defer tx.Rollback()

	id, err := s.AppendEntryTx(tx, entry)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("ledger tx commit failed: %w", err)
	}
	return id, nil
}

// AppendEntryTx posts a single entry inside the caller's transaction. It is
// the one posting primitive shared by the funding-draft workflow and the
// exit-settlement engine. The write-time invariant amount_eur ==
// round(amount_native * fx_rate_snapshot, 2) is enforced here.
func (s *LedgerService) AppendEntryTx(tx *sql.Tx, entry *models.LedgerEntry) (string, error) {
	if entry == nil {
		return "", errors.New("nil ledger entry")
	}
	expected := models.ToEUR(entry.AmountNative, entry.NativeCurrency, entry.FxRateSnapshot)
	if !entry.AmountEUR.Equal(expected) {
		return "", fmt.Errorf("amount_eur %s inconsistent with %s %s at rate %s",
			entry.AmountEUR, entry.AmountNative, entry.NativeCurrency, entry.FxRateSnapshot)
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := tx.Exec(ledgerInsert,
		entry.ID, string(entry.Type), entry.AssociateID, nullString(entry.BookmakerID),
		entry.AmountNative, entry.NativeCurrency, entry.FxRateSnapshot, entry.AmountEUR,
		nullString(string(entry.SettlementState)), entry.PrincipalReturnedEUR,
		entry.PerSurebetShareEUR, nullString(entry.SurebetID), nullString(entry.BetID),
		nullString(entry.SettlementBatchID), createdAt, entry.CreatedBy, nullString(entry.Note),
	)
	if err != nil {
		return "", fmt.Errorf("ledger entry insert failed: %w", err)
	}

	metrics.LedgerEntriesPosted.WithLabelValues(string(entry.Type)).Inc()
	return entry.ID, nil
}

// EntriesForAssociate lists an associate's entries up to and including the
// cutoff, oldest first.
func (s *LedgerService) EntriesForAssociate(ctx context.Context, associateID string, cutoff time.Time) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entry_type, associate_id, COALESCE(bookmaker_id, ''), amount_native,
			native_currency, fx_rate_snapshot, amount_eur, COALESCE(settlement_state, ''),
			principal_returned_eur, per_surebet_share_eur, COALESCE(surebet_id, ''),
			COALESCE(bet_id, ''), COALESCE(settlement_batch_id, ''), created_at,
			created_by, COALESCE(note, '')
		FROM ledger_entries
		WHERE associate_id = $1 AND created_at <= $2
		ORDER BY created_at ASC`,
		associateID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("ledger entry query failed: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.Type, &e.AssociateID, &e.BookmakerID, &e.AmountNative,
			&e.NativeCurrency, &e.FxRateSnapshot, &e.AmountEUR, &e.SettlementState,
			&e.PrincipalReturnedEUR, &e.PerSurebetShareEUR, &e.SurebetID,
			&e.BetID, &e.SettlementBatchID, &e.CreatedAt, &e.CreatedBy, &e.Note); err != nil {
			return nil, fmt.Errorf("ledger entry scan failed: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumEUR aggregates amount_eur for the associate over the given entry
// types up to the cutoff, quantized to cents. When excludeSettlements is
// set, entries tagged with the settlement note prefix are left out, which
// keeps settlement payouts from counting as funding.
func (s *LedgerService) SumEUR(ctx context.Context, associateID string, cutoff time.Time, types []models.EntryType, excludeSettlements bool) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount_eur), 0) FROM ledger_entries WHERE associate_id = $1 AND created_at <= $2`
	args := []any{associateID, cutoff}

	if len(types) > 0 {
		typeNames := make([]string, len(types))
		for i, t := range types {
			typeNames[i] = string(t)
		}
		args = append(args, pq.Array(typeNames))
		query += fmt.Sprintf(" AND entry_type = ANY($%d)", len(args))
	}
	if excludeSettlements {
		args = append(args, models.SettlementNotePrefix+"%")
		query += fmt.Sprintf(" AND (note IS NULL OR note NOT LIKE $%d)", len(args))
	}

	var sum decimal.Decimal
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("ledger sum failed: %w", err)
	}
	return models.Quantize(sum), nil
}

// SumSurebetShares aggregates per_surebet_share_eur over BET_RESULT
// entries up to the cutoff, quantized to cents.
func (s *LedgerService) SumSurebetShares(ctx context.Context, associateID string, cutoff time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(per_surebet_share_eur), 0) FROM ledger_entries
		WHERE associate_id = $1 AND created_at <= $2 AND entry_type = $3`,
		associateID, cutoff, string(models.EntryBetResult),
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("surebet share sum failed: %w", err)
	}
	return models.Quantize(sum), nil
}

// PairBalances returns the modeled EUR position for every (associate,
// bookmaker) pair with at least one ledger entry, joined with the latest
// balance check for the pair, ordered by associate alias then bookmaker.
func (s *LedgerService) PairBalances(ctx context.Context) ([]models.PairBalance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT le.associate_id, a.alias, le.bookmaker_id, b.name,
			SUM(le.amount_eur),
			bc.balance_native, bc.native_currency, bc.balance_eur, bc.fx_rate_used, bc.checked_at
		FROM ledger_entries le
		JOIN associates a ON a.id = le.associate_id
		JOIN bookmakers b ON b.id = le.bookmaker_id
		LEFT JOIN balance_checks bc ON bc.associate_id = le.associate_id AND bc.bookmaker_id = le.bookmaker_id
		WHERE le.bookmaker_id IS NOT NULL
		GROUP BY le.associate_id, a.alias, le.bookmaker_id, b.name,
			bc.balance_native, bc.native_currency, bc.balance_eur, bc.fx_rate_used, bc.checked_at
		ORDER BY a.alias ASC, b.name ASC`)
	if err != nil {
		return nil, fmt.Errorf("pair balance query failed: %w", err)
	}
	defer rows.Close()

	var pairs []models.PairBalance
	for rows.Next() {
		var p models.PairBalance
		var reportedNative, reportedEUR, rateUsed decimal.NullDecimal
		var reportedCurrency sql.NullString
		var checkedAt sql.NullTime
		if err := rows.Scan(&p.AssociateID, &p.AssociateAlias, &p.BookmakerID, &p.BookmakerName,
			&p.ModeledEUR, &reportedNative, &reportedCurrency, &reportedEUR, &rateUsed, &checkedAt); err != nil {
			return nil, fmt.Errorf("pair balance scan failed: %w", err)
		}
		p.ModeledEUR = models.Quantize(p.ModeledEUR)
		if reportedEUR.Valid {
			p.Reported = &models.BalanceCheck{
				AssociateID:    p.AssociateID,
				BookmakerID:    p.BookmakerID,
				BalanceNative:  reportedNative.Decimal,
				NativeCurrency: reportedCurrency.String,
				BalanceEUR:     models.Quantize(reportedEUR.Decimal),
				FxRateUsed:     rateUsed.Decimal,
				CheckedAt:      checkedAt.Time,
			}
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// BookmakerBreakdown aggregates an associate's per-bookmaker position for
// statement rendering: balance plus funding totals in EUR and native.
func (s *LedgerService) BookmakerBreakdown(ctx context.Context, associateID string, cutoff time.Time) ([]models.BookmakerBreakdownRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT le.bookmaker_id, b.name, MAX(le.native_currency),
			SUM(le.amount_eur), SUM(le.amount_native),
			COALESCE(SUM(le.amount_eur) FILTER (WHERE le.entry_type = 'DEPOSIT'), 0),
			COALESCE(SUM(le.amount_native) FILTER (WHERE le.entry_type = 'DEPOSIT'), 0),
			COALESCE(SUM(le.amount_eur) FILTER (WHERE le.entry_type = 'WITHDRAWAL'), 0),
			COALESCE(SUM(le.amount_native) FILTER (WHERE le.entry_type = 'WITHDRAWAL'), 0)
		FROM ledger_entries le
		JOIN bookmakers b ON b.id = le.bookmaker_id
		WHERE le.associate_id = $1 AND le.created_at <= $2 AND le.bookmaker_id IS NOT NULL
		GROUP BY le.bookmaker_id, b.name
		ORDER BY b.name ASC`,
		associateID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("bookmaker breakdown query failed: %w", err)
	}
	defer rows.Close()

	var breakdown []models.BookmakerBreakdownRow
	for rows.Next() {
		var r models.BookmakerBreakdownRow
		if err := rows.Scan(&r.BookmakerID, &r.BookmakerName, &r.NativeCurrency,
			&r.BalanceEUR, &r.BalanceNative, &r.DepositsEUR, &r.DepositsNative,
			&r.WithdrawalsEUR, &r.WithdrawalsNative); err != nil {
			return nil, fmt.Errorf("bookmaker breakdown scan failed: %w", err)
		}
		r.BalanceEUR = models.Quantize(r.BalanceEUR)
		r.DepositsEUR = models.Quantize(r.DepositsEUR)
		r.WithdrawalsEUR = models.Quantize(r.WithdrawalsEUR)
		breakdown = append(breakdown, r)
	}
	return breakdown, rows.Err()
}

// GetAssociate resolves an associate by id.
func (s *LedgerService) GetAssociate(ctx context.Context, associateID string) (*models.Associate, error) {
	var a models.Associate
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, alias, COALESCE(telegram_chat_id, ''), created_at FROM associates WHERE id = $1`,
		associateID,
	).Scan(&a.ID, &a.Name, &a.Alias, &a.TelegramChatID, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAssociateNotFound, associateID)
	}
	if err != nil {
		return nil, fmt.Errorf("associate lookup failed: %w", err)
	}
	return &a, nil
}

// AssociateLinked reports whether the bookmaker account is linked to the
// associate.
func (s *LedgerService) AssociateLinked(ctx context.Context, associateID, bookmakerID string) (bool, error) {
	var linked bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM associate_bookmakers WHERE associate_id = $1 AND bookmaker_id = $2)`,
		associateID, bookmakerID,
	).Scan(&linked)
	if err != nil {
		return false, fmt.Errorf("link lookup failed: %w", err)
	}
	return linked, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
