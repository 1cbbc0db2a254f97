package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stakepool/treasury/internal/config"
	"github.com/stakepool/treasury/internal/models"
)

// ReconciliationService computes per-associate entitlement snapshots over
// the ledger. It is read-only and safe to run concurrently with writers;
// it sees whatever is committed when it reads.
type ReconciliationService struct {
	ledger *LedgerService
	config *config.SettlementConfig
}

func NewReconciliationService(ledger *LedgerService, cfg *config.SettlementConfig) *ReconciliationService {
	if cfg == nil {
		cfg = config.LoadSettlementConfig()
	}
	return &ReconciliationService{ledger: ledger, config: cfg}
}

// Calculate computes the associate's position over every ledger entry with
// created_at <= cutoff. Each component sum is already quantized to cents,
// so Entitlement = NetDeposits + FairShare and Imbalance = TotalBalance -
// Entitlement hold exactly.
func (s *ReconciliationService) Calculate(ctx context.Context, associateID string, cutoff time.Time) (*models.Calculation, error) {
	associate, err := s.ledger.GetAssociate(ctx, associateID)
	if err != nil {
		return nil, err
	}

	netDeposits, err := s.ledger.SumEUR(ctx, associateID, cutoff,
		[]models.EntryType{models.EntryDeposit, models.EntryWithdrawal}, true)
	if err != nil {
		return nil, err
	}

	fairShare, err := s.ledger.SumSurebetShares(ctx, associateID, cutoff)
	if err != nil {
		return nil, err
	}

	totalBalance, err := s.ledger.SumEUR(ctx, associateID, cutoff, nil, false)
	if err != nil {
		return nil, err
	}

	entitlement := netDeposits.Add(fairShare)
	imbalance := totalBalance.Sub(entitlement)

	return &models.Calculation{
		AssociateID:   associate.ID,
		AssociateName: associate.Name,
		Cutoff:        cutoff,
		NetDeposits:   netDeposits,
		FairShare:     fairShare,
		Entitlement:   entitlement,
		TotalBalance:  totalBalance,
		Imbalance:     imbalance,
		ExitPayout:    imbalance.Neg(),
		Status:        s.classify(imbalance),
	}, nil
}

// BookmakerBreakdown exposes the associate's per-bookmaker statement rows;
// report rendering itself lives outside this core.
func (s *ReconciliationService) BookmakerBreakdown(ctx context.Context, associateID string, cutoff time.Time) ([]models.BookmakerBreakdownRow, error) {
	if _, err := s.ledger.GetAssociate(ctx, associateID); err != nil {
		return nil, err
	}
	return s.ledger.BookmakerBreakdown(ctx, associateID, cutoff)
}

func (s *ReconciliationService) classify(imbalance decimal.Decimal) models.AssociateStatus {
	switch {
	case imbalance.GreaterThan(s.config.BalancedThreshold):
		return models.StatusOverholder
	case imbalance.LessThan(s.config.BalancedThreshold.Neg()):
		return models.StatusShort
	default:
		return models.StatusBalanced
	}
}
