package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stakepool/treasury/internal/config"
	"github.com/stakepool/treasury/internal/metrics"
	"github.com/stakepool/treasury/internal/models"
)

// SettlementService posts the single balancing entry that zeroes an
// associate's imbalance as of a cutoff, verifies convergence by re-reading
// the ledger, and renders a receipt artifact.
//
// Not safe for two concurrent settlements of the same associate at the
// same cutoff: the convergence check happens after a second read that a
// racing writer could invalidate. Callers serialize per associate.
type SettlementService struct {
	recon  *ReconciliationService
	ledger *LedgerService
	config *config.SettlementConfig
}

func NewSettlementService(recon *ReconciliationService, ledger *LedgerService, cfg *config.SettlementConfig) *SettlementService {
	if cfg == nil {
		cfg = config.LoadSettlementConfig()
	}
	return &SettlementService{recon: recon, ledger: ledger, config: cfg}
}

// SettleNow computes (or reuses) the associate's position at the cutoff
// and posts one balancing entry when the imbalance exceeds the tolerance.
// The entry is backdated to the cutoff so subsequent cutoff-filtered reads
// include it, and tagged with the settlement note prefix so net-deposit
// accounting skips it. Calling twice in sequence posts exactly one entry;
// the second call lands on the already-balanced branch.
func (s *SettlementService) SettleNow(ctx context.Context, associateID string, cutoff time.Time, precomputed *models.Calculation) (*models.SettlementReceipt, error) {
	calc := precomputed
	if calc == nil || calc.AssociateID != associateID || !calc.Cutoff.Equal(cutoff) {
		var err error
		calc, err = s.recon.Calculate(ctx, associateID, cutoff)
		if err != nil {
			return nil, err
		}
	}

	deltaBefore := models.Quantize(calc.Imbalance)
	receipt := &models.SettlementReceipt{
		AssociateID:     calc.AssociateID,
		AssociateName:   calc.AssociateName,
		Cutoff:          cutoff,
		ImbalanceBefore: deltaBefore,
		ImbalanceAfter:  deltaBefore,
		ExitPayout:      deltaBefore.Neg(),
		GeneratedAt:     time.Now().UTC(),
	}

	if deltaBefore.Abs().LessThanOrEqual(s.config.Tolerance) {
		log.Printf("[SETTLEMENT] %s already balanced at %s (imbalance %s)",
			associateID, cutoff.Format("2006-01-02"), deltaBefore)
		s.finishReceipt(receipt)
		return receipt, nil
	}

	entryType := models.EntryDeposit
	if deltaBefore.Sign() > 0 {
		entryType = models.EntryWithdrawal
	}
	amount := deltaBefore.Abs()
	signed := amount
	if entryType == models.EntryWithdrawal {
		signed = amount.Neg()
	}

	note := fmt.Sprintf("%s exit settlement for %s as of %s",
		models.SettlementNotePrefix, calc.AssociateName, cutoff.Format("2006-01-02"))
	entry, err := models.NewLedgerEntry(entryType, associateID, "",
		signed, "EUR", decimal.NewFromInt(1), cutoff, "settlement-engine", note)
	if err != nil {
		return nil, err
	}

	entryID, err := s.ledger.AppendEntry(ctx, entry)
	if err != nil {
		return nil, err
	}
	receipt.PostedEntryID = entryID
	receipt.PostedEntryType = entryType
	receipt.PostedAmountEUR = amount
	metrics.SettlementsPosted.Inc()
	log.Printf("[SETTLEMENT] Posted %s %s EUR for %s (entry %s)", entryType, amount, associateID, entryID)

	after, err := s.recon.Calculate(ctx, associateID, cutoff)
	if err != nil {
		return nil, err
	}
	receipt.ImbalanceAfter = models.Quantize(after.Imbalance)
	if receipt.ImbalanceAfter.Abs().GreaterThan(s.config.Tolerance) {
		// A calculation defect, not a transient condition: surface, never retry.
		return nil, fmt.Errorf("%w: associate %s still at %s after posting %s %s",
			ErrSettlementDiverged, associateID, receipt.ImbalanceAfter, entryType, amount)
	}

	s.finishReceipt(receipt)
	return receipt, nil
}

// finishReceipt renders the report and persists it. A persistence failure
// is logged and leaves FilePath empty; the settlement still stands.
func (s *SettlementService) finishReceipt(receipt *models.SettlementReceipt) {
	receipt.Report = s.renderReport(receipt)

	path := filepath.Join(s.config.ReceiptsDir,
		fmt.Sprintf("%s_%s.txt", receipt.AssociateID, receipt.Cutoff.Format("2006-01-02")))
	if err := os.MkdirAll(s.config.ReceiptsDir, 0o755); err != nil {
		log.Printf("[SETTLEMENT] Receipt dir creation failed (receipt kept in memory): %v", err)
		return
	}
	if err := os.WriteFile(path, []byte(receipt.Report), 0o644); err != nil {
		log.Printf("[SETTLEMENT] Receipt write failed (receipt kept in memory): %v", err)
		return
	}
	receipt.FilePath = path
}

func (s *SettlementService) renderReport(r *models.SettlementReceipt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "EXIT SETTLEMENT RECEIPT\n")
	fmt.Fprintf(&b, "=======================\n")
	fmt.Fprintf(&b, "Associate:        %s (%s)\n", r.AssociateName, r.AssociateID)
	fmt.Fprintf(&b, "Cutoff:           %s\n", r.Cutoff.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Generated:        %s\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Imbalance before: %s EUR\n", r.ImbalanceBefore)
	if r.PostedEntryID == "" {
		fmt.Fprintf(&b, "Posted entry:     none (already balanced)\n")
	} else {
		fmt.Fprintf(&b, "Posted entry:     %s %s EUR (%s)\n", r.PostedEntryType, r.PostedAmountEUR, r.PostedEntryID)
	}
	fmt.Fprintf(&b, "Imbalance after:  %s EUR\n", r.ImbalanceAfter)
	fmt.Fprintf(&b, "Exit payout:      %s EUR\n", r.ExitPayout)
	fmt.Fprintf(&b, "Model:            %s\n", s.config.ModelVersion)
	fmt.Fprintf(&b, "\nEntitlement = net deposits + fair share; the posted entry moves the\n")
	fmt.Fprintf(&b, "held balance onto the entitlement as of the cutoff above.\n")
	return b.String()
}
