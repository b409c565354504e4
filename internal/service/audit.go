package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/greyfinance/wallet-ledger/internal/observability"
	"github.com/greyfinance/wallet-ledger/internal/store"
)

// AuditService verifies the core ledger invariant: every wallet's balance
// equals the sum of its entries' signed amounts.
type AuditService struct {
	store store.Store
}

// NewAuditService creates an audit service.
func NewAuditService(st store.Store) *AuditService {
	return &AuditService{store: st}
}

// Run walks all wallets and reports divergences. A divergence is operational
// evidence of a bug, never something to auto-correct.
func (s *AuditService) Run(ctx context.Context) error {
	wallets, err := s.store.Wallets(ctx)
	if err != nil {
		return fmt.Errorf("list wallets for audit: %w", err)
	}

	diverged := 0
	for _, w := range wallets {
		sum, err := s.store.EntrySum(ctx, w.UID)
		if err != nil {
			return fmt.Errorf("sum entries for %s: %w", w.UID, err)
		}
		if sum != w.Balance {
			diverged++
			observability.IncrementLedgerImbalance(w.Currency)
			zap.L().Error("CRITICAL: wallet balance diverged from ledger",
				zap.String("uid", w.UID),
				zap.Int64("balance_micros", w.Balance),
				zap.Int64("entry_sum_micros", sum),
			)
		}
	}

	if diverged == 0 {
		zap.L().Info("ledger audit clean", zap.Int("wallets", len(wallets)))
	}
	return nil
}
