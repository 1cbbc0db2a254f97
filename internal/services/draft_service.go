package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stakepool/treasury/internal/metrics"
	"github.com/stakepool/treasury/internal/models"
	"github.com/stakepool/treasury/internal/notify"
)

// DraftService runs the staged funding workflow: drafts are created,
// then either accepted (producing exactly one ledger entry) or rejected.
// The STAGED -> terminal transition is a compare-and-swap on the
// funding_drafts row, so exactly-once promotion holds across independent
// processes; no in-memory registry is involved.
type DraftService struct {
	db        *sql.DB
	ledger    *LedgerService
	fx        *FxService
	notifier  notify.Notifier
	validator *ValidationHelper
}

func NewDraftService(db *sql.DB, ledger *LedgerService, fx *FxService, notifier notify.Notifier) *DraftService {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &DraftService{
		db:        db,
		ledger:    ledger,
		fx:        fx,
		notifier:  notifier,
		validator: NewValidationHelper(),
	}
}

// CreateDraftInput is a staged funding intent.
type CreateDraftInput struct {
	AssociateID  string          `json:"associateId" validate:"required"`
	BookmakerID  string          `json:"bookmakerId" validate:"required"`
	EventType    string          `json:"eventType" validate:"required,oneof=DEPOSIT WITHDRAWAL"`
	AmountNative decimal.Decimal `json:"amountNative"`
	Currency     string          `json:"currency" validate:"required,len=3,uppercase"`
	Note         string          `json:"note,omitempty" validate:"max=200"`
}

// Create validates and stages a draft. Validation failures surface before
// any write; a draft is never partially created.
func (s *DraftService) Create(ctx context.Context, input CreateDraftInput) (*models.FundingDraft, error) {
	if err := s.validator.ValidateStruct(&input); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	if input.AmountNative.Sign() <= 0 {
		return nil, NewValidationError("amountNative", "must be strictly positive")
	}

	linked, err := s.ledger.AssociateLinked(ctx, input.AssociateID, input.BookmakerID)
	if err != nil {
		return nil, err
	}
	if !linked {
		return nil, NewValidationError("bookmakerId", "bookmaker %s is not linked to associate %s", input.BookmakerID, input.AssociateID)
	}

	draft := &models.FundingDraft{
		ID:           uuid.NewString(),
		AssociateID:  input.AssociateID,
		BookmakerID:  input.BookmakerID,
		EventType:    models.EntryType(input.EventType),
		AmountNative: models.Quantize(input.AmountNative),
		Currency:     input.Currency,
		Note:         input.Note,
		Status:       models.DraftStaged,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO funding_drafts (id, associate_id, bookmaker_id, event_type, amount_native, currency, note, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		draft.ID, draft.AssociateID, draft.BookmakerID, string(draft.EventType),
		draft.AmountNative, draft.Currency, nullString(draft.Note), string(draft.Status), draft.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("draft insert failed: %w", err)
	}

	log.Printf("[DRAFT] Staged %s %s %s %s for %s/%s", draft.ID, draft.EventType,
		draft.AmountNative, draft.Currency, draft.AssociateID, draft.BookmakerID)
	return draft, nil
}

// Accept promotes a staged draft to exactly one ledger entry. The FX rate
// is resolved at acceptance time for the current date, not when the draft
// was staged, and a WITHDRAWAL posts as a negative native amount.
//
// Racing acceptors are arbitrated by the store: the UPDATE below only
// matches a STAGED row, so exactly one attempt transitions the draft and
// every other attempt observes a terminal row and fails with
// ErrDraftAlreadyProcessed.
func (s *DraftService) Accept(ctx context.Context, draftID, acceptedBy string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("accept tx begin failed: %w", err)
	}
	defer tx.Rollback()

	var draft models.FundingDraft
	err = tx.QueryRow(`
		UPDATE funding_drafts
		SET status = $1, consumed_at = $2, consumed_by = $3
		WHERE id = $4 AND status = $5
		RETURNING id, associate_id, bookmaker_id, event_type, amount_native, currency, COALESCE(note, '')`,
		string(models.DraftAccepted), time.Now().UTC(), acceptedBy, draftID, string(models.DraftStaged),
	).Scan(&draft.ID, &draft.AssociateID, &draft.BookmakerID, &draft.EventType,
		&draft.AmountNative, &draft.Currency, &draft.Note)
	if errors.Is(err, sql.ErrNoRows) {
		return "", s.resolveConsumedState(ctx, draftID)
	}
	if err != nil {
		return "", fmt.Errorf("draft acceptance failed: %w", err)
	}

	rate, fallback, err := s.fx.Rate(ctx, draft.Currency, time.Now().UTC())
	if err != nil {
		return "", err
	}
	if fallback {
		log.Printf("[DRAFT] Using fallback FX rate %s for draft %s", rate.RateToEUR, draftID)
	}

	amount := draft.AmountNative
	if draft.EventType == models.EntryWithdrawal {
		amount = amount.Neg()
	}

	entry, err := models.NewLedgerEntry(draft.EventType, draft.AssociateID, draft.BookmakerID,
		amount, draft.Currency, rate.RateToEUR, time.Time{}, acceptedBy, draft.Note)
	if err != nil {
		return "", err
	}

	entryID, err := s.ledger.AppendEntryTx(tx, entry)
	if err != nil {
		return "", err
	}

	if _, err := tx.Exec(`UPDATE funding_drafts SET ledger_entry_id = $1 WHERE id = $2`, entryID, draftID); err != nil {
		return "", fmt.Errorf("draft ledger link failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("accept tx commit failed: %w", err)
	}

	metrics.DraftsAccepted.Inc()
	log.Printf("[DRAFT] Accepted %s -> ledger entry %s", draftID, entryID)
	s.notifyAccepted(ctx, &draft, entry)
	return entryID, nil
}

// Reject removes a staged draft from the pipeline with no ledger effect,
// through the same compare-and-swap as Accept.
func (s *DraftService) Reject(ctx context.Context, draftID, rejectedBy string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE funding_drafts
		SET status = $1, consumed_at = $2, consumed_by = $3
		WHERE id = $4 AND status = $5`,
		string(models.DraftRejected), time.Now().UTC(), rejectedBy, draftID, string(models.DraftStaged))
	if err != nil {
		return fmt.Errorf("draft rejection failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("draft rejection failed: %w", err)
	}
	if affected == 0 {
		return s.resolveConsumedState(ctx, draftID)
	}

	metrics.DraftsRejected.Inc()
	log.Printf("[DRAFT] Rejected %s", draftID)
	return nil
}

// Pending lists staged drafts awaiting approval, oldest first.
func (s *DraftService) Pending(ctx context.Context) ([]models.FundingDraft, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, associate_id, bookmaker_id, event_type, amount_native, currency, COALESCE(note, ''), status, created_at
		FROM funding_drafts WHERE status = $1 ORDER BY created_at ASC`,
		string(models.DraftStaged))
	if err != nil {
		return nil, fmt.Errorf("pending draft query failed: %w", err)
	}
	defer rows.Close()

	var drafts []models.FundingDraft
	for rows.Next() {
		var d models.FundingDraft
		if err := rows.Scan(&d.ID, &d.AssociateID, &d.BookmakerID, &d.EventType,
			&d.AmountNative, &d.Currency, &d.Note, &d.Status, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("pending draft scan failed: %w", err)
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// resolveConsumedState distinguishes "never existed" from "lost the race".
func (s *DraftService) resolveConsumedState(ctx context.Context, draftID string) error {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM funding_drafts WHERE id = $1`, draftID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
	}
	if err != nil {
		return fmt.Errorf("draft state probe failed: %w", err)
	}
	if models.DraftStatus(status).Terminal() {
		metrics.DraftAcceptConflicts.Inc()
		return fmt.Errorf("%w: %s is %s", ErrDraftAlreadyProcessed, draftID, status)
	}
	// Staged again is impossible: nothing transitions drafts backwards.
	return fmt.Errorf("draft %s in unexpected state %s", draftID, status)
}

func (s *DraftService) notifyAccepted(ctx context.Context, draft *models.FundingDraft, entry *models.LedgerEntry) {
	associate, err := s.ledger.GetAssociate(ctx, draft.AssociateID)
	if err != nil || associate.TelegramChatID == "" {
		return
	}
	msg := fmt.Sprintf("Funding %s of %s %s approved (%s EUR booked).",
		draft.EventType, draft.AmountNative, draft.Currency, entry.AmountEUR)
	if _, err := s.notifier.Send(ctx, associate.TelegramChatID, msg); err != nil {
		log.Printf("[DRAFT] Notification for %s failed (ignored): %v", draft.ID, err)
	}
}
